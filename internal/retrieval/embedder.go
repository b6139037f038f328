package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// EmbedClient is the wire contract for an embedding service: one vector
// per input text, same order, no internal retries.
type EmbedClient interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// batchSize bounds how many texts go into one embed request.
const batchSize = 16

// Embedder wraps an embedding service client and enforces the deployment
// embedding dimension on every vector it returns.
type Embedder struct {
	client EmbedClient
	model  string
	dim    int
}

// NewEmbedder creates an Embedder for the given client, model, and
// expected vector dimension.
func NewEmbedder(client EmbedClient, model string, dim int) *Embedder {
	return &Embedder{client: client, model: model, dim: dim}
}

// Dimension returns the expected vector dimension.
func (e *Embedder) Dimension() int { return e.dim }

// EmbedOne returns the embedding vector for a single text, typically a
// user question at query time.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding service returned %d vectors for one input", len(vecs))
	}
	if len(vecs[0]) != e.dim {
		return nil, dimensionError(len(vecs[0]), e.dim)
	}
	return vecs[0], nil
}

// EmbedMany returns embedding vectors for all texts in input order,
// issuing batched requests with bounded concurrency. Returns nil
// (not error) for empty input.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the service.

	for start := 0; start < len(texts); start += batchSize {
		start := start
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := e.client.Embed(gCtx, e.model, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch at %d: %w", start, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding batch at %d: got %d vectors for %d inputs", start, len(vecs), end-start)
			}
			for i, v := range vecs {
				if len(v) != e.dim {
					return fmt.Errorf("text %d: %w", start+i, dimensionError(len(v), e.dim))
				}
				results[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dimensionError marks a vector-size mismatch between the embedding
// service and the configured deployment dimension.
func dimensionError(got, want int) error {
	return fmt.Errorf("embedding dimension mismatch: service returned %d, configured %d", got, want)
}

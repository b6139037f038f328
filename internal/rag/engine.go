// Package rag stitches chunking, embedding, retrieval, and generation
// into the conversational engine.
package rag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docchat/internal/document"
	"docchat/internal/retrieval"
	"docchat/internal/storage"
)

// Embedder turns text into vectors of the deployment dimension.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer for a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Engine orchestrates document ingestion and question answering over the
// session store. It holds long-lived clients built once at startup and
// keeps no per-session state of its own; the session id is threaded
// through every call explicitly.
type Engine struct {
	store     *storage.Store
	embedder  Embedder
	generator Generator
	chunker   *document.Chunker
	topK      int
	logger    *slog.Logger
}

// NewEngine wires the engine. topK defaults to 4 if non-positive.
func NewEngine(store *storage.Store, embedder Embedder, generator Generator, chunker *document.Chunker, topK int) *Engine {
	if topK <= 0 {
		topK = 4
	}
	return &Engine{
		store:     store,
		embedder:  embedder,
		generator: generator,
		chunker:   chunker,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	Session    storage.Session `json:"session"`
	ChunkCount int             `json:"chunk_count"`
}

// IngestPDF extracts text from a PDF document and ingests it under the
// given display file name.
func (e *Engine) IngestPDF(ctx context.Context, fileName string, r io.Reader) (IngestResult, error) {
	text, err := document.ExtractText(r)
	if err != nil {
		return IngestResult{}, newError(KindIngestionFailed, err, "extracting text from %q", fileName)
	}
	return e.Ingest(ctx, fileName, text)
}

// Ingest chunks the text, embeds every chunk, and atomically creates the
// session with its populated index. Any failure aborts the whole
// ingestion; no partial session is left behind.
func (e *Engine) Ingest(ctx context.Context, fileName string, text string) (IngestResult, error) {
	start := time.Now()

	texts := e.chunker.Split(text)
	if len(texts) == 0 {
		return IngestResult{}, newError(KindIngestionFailed, nil, "document %q contains no extractable text", fileName)
	}

	vecs, err := e.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return IngestResult{}, newError(KindIngestionFailed, err, "embedding %d chunks of %q", len(texts), fileName)
	}

	now := time.Now().UTC()
	chunks := make([]retrieval.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = retrieval.Chunk{
			ID:        uuid.New().String(),
			Seq:       i,
			Text:      t,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	session, err := e.store.CreateSession(ctx, fileName, chunks)
	if err != nil {
		return IngestResult{}, newError(KindIngestionFailed, err, "creating session for %q", fileName)
	}

	e.logger.Info("document ingested",
		"session_id", session.ID,
		"file_name", fileName,
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return IngestResult{Session: session, ChunkCount: len(chunks)}, nil
}

// Ask answers a question against a session. In every outcome other than
// an unknown session id, the transcript is updated before Ask returns:
// the user turn always, followed by either the answer or an
// assistant-visible error description. The turn is never silently lost.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (string, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return "", fmt.Errorf("looking up session %s: %w", sessionID, err)
	}

	contextBlock, err := e.retrieveContext(ctx, sessionID, question)
	if err != nil {
		ragErr := newError(KindRetrievalFailed, err, "retrieving context for session %s", sessionID)
		e.recordFailedTurn(ctx, sessionID, question, ragErr)
		return "", ragErr
	}

	prompt := buildPrompt(contextBlock, question)

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		ragErr := newError(KindGenerationFailed, err, "generating answer for session %s", sessionID)
		e.recordFailedTurn(ctx, sessionID, question, ragErr)
		return "", ragErr
	}

	if err := e.store.AppendTurn(ctx, sessionID, question, answer); err != nil {
		return "", fmt.Errorf("recording transcript turn: %w", err)
	}
	return answer, nil
}

// retrieveContext embeds the question, searches the session's index, and
// joins the retrieved chunk texts nearest-first with blank lines. An
// empty index is not an error; it yields an empty context block.
func (e *Engine) retrieveContext(ctx context.Context, sessionID, question string) (string, error) {
	queryVec, err := e.embedder.EmbedOne(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embedding question: %w", err)
	}

	ix, err := e.store.Index(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading index: %w", err)
	}

	hits, err := ix.Search(ctx, queryVec, e.topK)
	if err != nil {
		return "", fmt.Errorf("searching index: %w", err)
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// recordFailedTurn appends the user question and an assistant turn
// describing the failure, so the transcript reflects that the turn was
// attempted. Append failures are logged but do not mask the original error.
func (e *Engine) recordFailedTurn(ctx context.Context, sessionID, question string, ragErr *Error) {
	content := fmt.Sprintf("Sorry, I couldn't answer that (%s). Please try again.", ragErr.Kind)
	if err := e.store.AppendTurn(ctx, sessionID, question, content); err != nil {
		e.logger.Error("failed to record error turn", "session_id", sessionID, "error", err)
	}
}

// buildPrompt stuffs the retrieved context and the question into the
// single-pass grounding template.
func buildPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Based on this context:\n\n%s\n\nAnswer this question: %s", contextBlock, question)
}

// Sessions lists all sessions, newest first.
func (e *Engine) Sessions(ctx context.Context) ([]storage.Session, error) {
	return e.store.ListSessions(ctx)
}

// Session returns one session's metadata.
func (e *Engine) Session(ctx context.Context, id string) (storage.Session, error) {
	return e.store.GetSession(ctx, id)
}

// Transcript returns a session's messages in chronological order.
func (e *Engine) Transcript(ctx context.Context, sessionID string) ([]storage.Message, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.store.Messages(ctx, sessionID)
}

// Delete removes a session with its transcript and index. Unknown ids
// are a no-op.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.store.DeleteSession(ctx, sessionID)
}

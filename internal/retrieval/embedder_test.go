package retrieval

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
)

// fakeEmbedClient derives deterministic vectors from the text itself so
// order preservation can be verified across concurrent batches.
type fakeEmbedClient struct {
	dim int
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedClient) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, f.dim)
		n, _ := strconv.Atoi(text)
		v[0] = float32(n)
		vecs[i] = v
	}
	return vecs, nil
}

func TestEmbedOne(t *testing.T) {
	client := &fakeEmbedClient{dim: 4}
	e := NewEmbedder(client, "m", 4)

	vec, err := e.EmbedOne(context.Background(), "7")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	if vec[0] != 7 {
		t.Errorf("vec[0] = %f, want 7", vec[0])
	}
}

func TestEmbedOne_DimensionMismatch(t *testing.T) {
	client := &fakeEmbedClient{dim: 4}
	e := NewEmbedder(client, "m", 768)

	if _, err := e.EmbedOne(context.Background(), "1"); err == nil {
		t.Error("EmbedOne should reject a vector of the wrong dimension")
	}
}

func TestEmbedMany_OrderPreserved(t *testing.T) {
	client := &fakeEmbedClient{dim: 4}
	e := NewEmbedder(client, "m", 4)

	// Enough texts to span several batches so concurrency is exercised.
	texts := make([]string, 100)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	vecs, err := e.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Fatalf("vecs[%d][0] = %f, want %d: batches reassembled out of order", i, v[0], i)
		}
	}
	if client.calls < 2 {
		t.Errorf("expected multiple batched calls, got %d", client.calls)
	}
}

func TestEmbedMany_Empty(t *testing.T) {
	e := NewEmbedder(&fakeEmbedClient{dim: 4}, "m", 4)

	vecs, err := e.EmbedMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestEmbedMany_ServiceFailure(t *testing.T) {
	client := &fakeEmbedClient{dim: 4, err: errors.New("connection refused")}
	e := NewEmbedder(client, "m", 4)

	if _, err := e.EmbedMany(context.Background(), []string{"1", "2"}); err == nil {
		t.Error("EmbedMany should propagate service failures")
	}
}

func TestEmbedMany_DimensionMismatch(t *testing.T) {
	client := &fakeEmbedClient{dim: 3}
	e := NewEmbedder(client, "m", 4)

	if _, err := e.EmbedMany(context.Background(), []string{"1"}); err == nil {
		t.Error("EmbedMany should reject vectors of the wrong dimension")
	}
}

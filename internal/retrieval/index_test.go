package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the chunks table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE chunks (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const testDim = 8

func makeTestVector(seed float32) []float32 {
	v := make([]float32, testDim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func insertChunks(t *testing.T, ix *Index, seeds ...float32) {
	t.Helper()
	var chunks []Chunk
	for i, s := range seeds {
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s-c%d", ix.SessionID(), i),
			Seq:       i,
			Text:      fmt.Sprintf("chunk %d of %s", i, ix.SessionID()),
			Embedding: makeTestVector(s),
			CreatedAt: time.Now().UTC(),
		})
	}
	if err := ix.Insert(context.Background(), chunks); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestIndex_RoundTripExactMatch(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	insertChunks(t, ix, 0.1, 0.5, 0.9)

	results, err := ix.Search(context.Background(), makeTestVector(0.5), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Seq != 1 {
		t.Errorf("nearest seq = %d, want 1", results[0].Seq)
	}
	if results[0].Distance != 0 {
		t.Errorf("distance = %f, want 0 for an identical vector", results[0].Distance)
	}
}

func TestIndex_SearchAscendingDistance(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	insertChunks(t, ix, 0.9, 0.1, 0.4, 0.7, 0.2)

	results, err := ix.Search(context.Background(), makeTestVector(0.15), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not ascending: d[%d]=%f < d[%d]=%f",
				i, results[i].Distance, i-1, results[i-1].Distance)
		}
	}
	if results[0].Seq != 1 {
		t.Errorf("nearest seq = %d, want 1 (seed 0.1)", results[0].Seq)
	}
}

func TestIndex_KLargerThanIndex(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	insertChunks(t, ix, 0.1, 0.2)

	results, err := ix.Search(context.Background(), makeTestVector(0.1), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want all 2 entries", len(results))
	}
}

func TestIndex_EmptyIndex(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	results, err := ix.Search(context.Background(), makeTestVector(0.1), 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from an empty index, want 0", len(results))
	}
}

func TestIndex_SessionIsolation(t *testing.T) {
	db := openTestDB(t)
	a := NewIndex(db, "session-a", testDim)
	b := NewIndex(db, "session-b", testDim)

	insertChunks(t, a, 0.1, 0.2, 0.3)
	insertChunks(t, b, 0.1, 0.2, 0.3)

	results, err := a.Search(context.Background(), makeTestVector(0.1), 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want only session-a's 3 chunks", len(results))
	}
	for _, r := range results {
		if r.Text != fmt.Sprintf("chunk %d of session-a", r.Seq) {
			t.Errorf("result %q leaked from another session", r.Text)
		}
	}

	// An empty third session sees nothing at all.
	c := NewIndex(db, "session-c", testDim)
	results, err = c.Search(context.Background(), makeTestVector(0.1), 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty session retrieved %d chunks from other sessions", len(results))
	}
}

func TestIndex_QueryDimensionMismatch(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	insertChunks(t, ix, 0.1)

	if _, err := ix.Search(context.Background(), make([]float32, testDim+1), 4); err == nil {
		t.Error("Search should reject a query vector of the wrong dimension")
	}
}

func TestIndex_InsertDimensionMismatch(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	err := ix.Insert(context.Background(), []Chunk{{
		ID:        "c0",
		Text:      "bad",
		Embedding: make([]float32, testDim-1),
	}})
	if err == nil {
		t.Error("Insert should reject an embedding of the wrong dimension")
	}
}

func TestIndex_InsertIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	err := ix.Insert(context.Background(), []Chunk{
		{ID: "c0", Seq: 0, Text: "ok", Embedding: makeTestVector(0.1)},
		{ID: "c1", Seq: 1, Text: "bad", Embedding: make([]float32, 3)},
	})
	if err == nil {
		t.Fatal("Insert should fail on the bad chunk")
	}
	n, err := ix.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("partial insert left %d rows, want 0", n)
	}
}

func TestIndex_CorruptEmbedding(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)

	_, err := db.Exec(`INSERT INTO chunks (id, session_id, seq, content, embedding, created_at)
		VALUES ('bad', 's1', 0, 'x', X'0102', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("inserting corrupt row: %v", err)
	}

	if _, err := ix.Search(context.Background(), makeTestVector(0.1), 1); err == nil {
		t.Error("Search should fail on a corrupt stored embedding")
	}
}

func TestIndex_Count(t *testing.T) {
	db := openTestDB(t)
	ix := NewIndex(db, "s1", testDim)
	other := NewIndex(db, "s2", testDim)

	insertChunks(t, ix, 0.1, 0.2, 0.3)
	insertChunks(t, other, 0.1)

	n, err := ix.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := makeTestVector(0.42)
	decoded, err := decodeFloat32s(encodeFloat32s(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(v) {
		t.Fatalf("got %d floats, want %d", len(decoded), len(v))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("decoded[%d] = %f, want %f", i, decoded[i], v[i])
		}
	}
}

func TestDecodeFloat32s_BadLength(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("decodeFloat32s should reject a length that is not a multiple of 4")
	}
}

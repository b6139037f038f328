package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Chunk is one indexed span of document text with its embedding vector.
type Chunk struct {
	ID        string
	Seq       int
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Scored is a search hit: the chunk text and its L2 distance from the
// query vector. Smaller is nearer.
type Scored struct {
	ID       string
	Seq      int
	Text     string
	Distance float32
}

// Index is a vector index handle scoped to exactly one session. Every
// statement it issues is predicated on the session id, so content from
// other sessions can never appear in its results.
type Index struct {
	db        *sql.DB
	sessionID string
	dim       int
}

// NewIndex creates an Index over db for the given session. dim is the
// deployment embedding dimension; vectors of any other size are rejected.
func NewIndex(db *sql.DB, sessionID string, dim int) *Index {
	return &Index{db: db, sessionID: sessionID, dim: dim}
}

// SessionID returns the session this index is scoped to.
func (ix *Index) SessionID() string { return ix.sessionID }

// Insert appends chunks to the index in one transaction. Entries are never
// deduplicated or mutated.
func (ix *Index) Insert(ctx context.Context, chunks []Chunk) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	if err := InsertTx(tx, ix.sessionID, ix.dim, chunks); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InsertTx writes chunk rows for a session inside an existing transaction.
// The session store uses this to populate an index atomically with the
// session row itself.
func InsertTx(tx *sql.Tx, sessionID string, dim int, chunks []Chunk) error {
	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, session_id, seq, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d: embedding has dimension %d, index requires %d", c.Seq, len(c.Embedding), dim)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		blob := encodeFloat32s(c.Embedding)
		if _, err := stmt.Exec(c.ID, sessionID, c.Seq, c.Text, blob, createdAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Seq, err)
		}
	}
	return nil
}

// Search scans this session's chunks and returns the k nearest by L2
// distance, ascending. Fewer than k entries in the index yields fewer
// results, not an error.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Scored, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query embedding has dimension %d, index requires %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, seq, content, embedding FROM chunks WHERE session_id = ?`, ix.sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	// Max-heap on distance: the current worst candidate sits at the root
	// and is evicted when a nearer chunk appears.
	h := &scoredHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var s Scored
		var blob []byte
		if err := rows.Scan(&s.ID, &s.Seq, &s.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", s.ID, err)
		}
		if len(buf) != ix.dim {
			return nil, fmt.Errorf("stored embedding for %s has dimension %d, index requires %d", s.ID, len(buf), ix.dim)
		}

		s.Distance = l2Distance(query, buf)
		if h.Len() < k {
			heap.Push(h, s)
		} else if s.Distance < (*h)[0].Distance {
			(*h)[0] = s
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk rows: %w", err)
	}

	// Popping the max-heap yields farthest-first; fill backwards for
	// nearest-first order.
	results := make([]Scored, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Scored)
	}
	return results, nil
}

// Count returns the number of chunks indexed for this session.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := ix.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE session_id = ?`, ix.sessionID).Scan(&n)
	return n, err
}

// scoredHeap is a max-heap of Scored ordered by Distance.
type scoredHeap []Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

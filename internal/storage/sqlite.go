// Package storage persists sessions, transcripts, and chunk indexes in a
// single SQLite database.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"docchat/internal/retrieval"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for sessions, transcripts,
// and per-session vector indexes.
type Store struct {
	db  *sql.DB
	dim int
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. dim is the deployment embedding dimension enforced on every
// stored vector. Pass ":memory:" as dataDir for an in-memory database
// (used by tests).
func Open(dataDir string, dim int) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docchat.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, dim: dim}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Sessions ---

// CreateSession writes the session record and its entire chunk index in
// one transaction: either all artifacts exist afterwards or none do. The
// chunks must already carry embeddings of the configured dimension.
func (s *Store) CreateSession(ctx context.Context, fileName string, chunks []retrieval.Chunk) (Session, error) {
	session := Session{
		ID:        uuid.New().String(),
		FileName:  fileName,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("beginning create transaction: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO sessions (id, file_name, created_at) VALUES (?, ?, ?)`,
		session.ID, session.FileName, session.CreatedAt.Format(time.RFC3339)); err != nil {
		tx.Rollback()
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}

	if err := retrieval.InsertTx(tx, session.ID, s.dim, chunks); err != nil {
		tx.Rollback()
		return Session{}, fmt.Errorf("populating index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("committing session: %w", err)
	}
	return session, nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.FileName, &createdAt)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	sess.CreatedAt = t
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, created_at FROM sessions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var createdAt string
		if err := rows.Scan(&sess.ID, &sess.FileName, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		sess.CreatedAt = t
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session's chunks, transcript, and metadata, in
// that fixed order, inside one transaction. The order means an interrupted
// delete on a torn backend can orphan at most the metadata row, never an
// index that nothing references. Deleting an unknown id is a no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM chunks WHERE session_id = ?`,
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("deleting session %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Index returns the vector index handle for a session. A missing session
// is an ErrNotFound: session creation is atomic, so a valid session id
// always has an index (possibly empty only if created that way).
func (s *Store) Index(ctx context.Context, sessionID string) (*retrieval.Index, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return retrieval.NewIndex(s.db, sessionID, s.dim), nil
}

// --- Messages ---

const insertMessageSQL = `INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`

func newMessage(sessionID, role, content string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("invalid role %q", role)
	}
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// AppendMessage adds one turn to a session's transcript and returns it.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) (Message, error) {
	msg, err := newMessage(sessionID, role, content)
	if err != nil {
		return Message{}, err
	}
	if _, err := s.db.ExecContext(ctx, insertMessageSQL,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return Message{}, fmt.Errorf("appending message: %w", err)
	}
	return msg, nil
}

// AppendTurn records a complete question/response exchange as one
// transaction: the user turn and the assistant turn land together or not
// at all, so the transcript can never show a question with no answer.
func (s *Store) AppendTurn(ctx context.Context, sessionID, question, response string) error {
	userMsg, err := newMessage(sessionID, RoleUser, question)
	if err != nil {
		return err
	}
	asstMsg, err := newMessage(sessionID, RoleAssistant, response)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning turn transaction: %w", err)
	}
	for _, msg := range []Message{userMsg, asstMsg} {
		if _, err := tx.Exec(insertMessageSQL,
			msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			return fmt.Errorf("appending %s turn: %w", msg.Role, err)
		}
	}
	return tx.Commit()
}

// Messages returns a session's transcript in chronological order. The
// table is append-only, so rowid order is insertion order; ordering by
// the timestamp column would compare variable-width TEXT renderings
// lexicographically and can misorder sub-second neighbors.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY rowid ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

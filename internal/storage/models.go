package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message roles. The set is closed; there is no extension point.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is a document-scoped conversation: one uploaded document, its
// chunk index, and its transcript share the session id.
type Session struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a session transcript. Transcripts are
// append-only and ordered by CreatedAt.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

package rag

import "fmt"

// Kind classifies engine failures into a closed set so callers can branch
// on the kind instead of parsing message text.
type Kind int

const (
	// KindIngestionFailed covers empty documents, chunking failures,
	// embedding-service failures, and partial index writes. Nothing is
	// persisted when ingestion fails.
	KindIngestionFailed Kind = iota + 1
	// KindRetrievalFailed covers query embedding failures, unreadable
	// indexes, and dimension mismatches during a question turn.
	KindRetrievalFailed
	// KindGenerationFailed covers generation-service failures and timeouts.
	KindGenerationFailed
	// KindConfigInvalid covers deployment misconfiguration; fatal at
	// startup, never recoverable per-request.
	KindConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case KindIngestionFailed:
		return "ingestion failed"
	case KindRetrievalFailed:
		return "retrieval failed"
	case KindGenerationFailed:
		return "generation failed"
	case KindConfigInvalid:
		return "invalid configuration"
	default:
		return "unknown"
	}
}

// Error is an engine failure with a kind and a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// Package api exposes the engine over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docchat/internal/rag"
	"docchat/internal/storage"
)

// maxUploadSize caps document uploads. The whole PDF is buffered for
// text extraction, so this also bounds per-request memory.
const maxUploadSize = 32 << 20 // 32MB

const maxQuestionBodySize = 1 << 20 // 1MB

// Deps holds the handler dependencies, constructed once at startup.
type Deps struct {
	Engine *rag.Engine
	Token  string
}

// NewHandler builds the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/documents", handleUpload(deps))
		r.Get("/v1/sessions", handleListSessions(deps))
		r.Get("/v1/sessions/{id}", handleGetSession(deps))
		r.Delete("/v1/sessions/{id}", handleDeleteSession(deps))
		r.Get("/v1/sessions/{id}/messages", handleTranscript(deps))
		r.Post("/v1/sessions/{id}/ask", handleAsk(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleUpload ingests a PDF from a multipart form: field "file" carries
// the document, optional field "name" overrides the display name.
func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field %q is required: %v", "file", err)
			return
		}
		defer file.Close()

		name := r.FormValue("name")
		if name == "" {
			name = header.Filename
		}
		if name == "" {
			name = "document.pdf"
		}

		res, err := deps.Engine.IngestPDF(r.Context(), name, file)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "ingestion_error", "ingestion failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":  res.Session.ID,
			"file_name":   res.Session.FileName,
			"created_at":  res.Session.CreatedAt,
			"chunk_count": res.ChunkCount,
		})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Engine.Sessions(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}
		if sessions == nil {
			sessions = []storage.Session{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, err := deps.Engine.Session(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Deleting an unknown id is a no-op, not an error.
		if err := deps.Engine.Delete(r.Context(), id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		msgs, err := deps.Engine.Transcript(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load transcript: %v", err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msgs)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxQuestionBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		answer, err := deps.Engine.Ask(r.Context(), id, req.Question)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			// The transcript already records the failed turn; the status
			// reflects the upstream service failure.
			httpError(w, http.StatusBadGateway, errType(err), "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"answer": answer})
	}
}

// errType maps engine error kinds to wire error types.
func errType(err error) string {
	var ragErr *rag.Error
	if errors.As(err, &ragErr) {
		switch ragErr.Kind {
		case rag.KindRetrievalFailed:
			return "retrieval_error"
		case rag.KindGenerationFailed:
			return "generation_error"
		case rag.KindIngestionFailed:
			return "ingestion_error"
		}
	}
	return "api_error"
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

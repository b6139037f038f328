package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docchat/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskCommand_SendsQuestion(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/sessions/sess-1/ask": `{"answer":"forty-two"}`,
	})

	client := ts.client()

	resp, err := client.postJSON(ctx, "/v1/sessions/sess-1/ask", map[string]string{
		"question": "what is the answer?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["answer"] != "forty-two" {
		t.Errorf("answer = %q, want forty-two", result["answer"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["question"] != "what is the answer?" {
		t.Errorf("body.question = %q", body["question"])
	}
}

func TestSessionsListCommand_Decodes(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/sessions": `[{"id":"s1","file_name":"a.pdf","created_at":"2026-01-01T00:00:00Z"}]`,
	})

	client := ts.client()

	resp, err := client.get(ctx, "/v1/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessions []storage.Session
	if err := decodeJSON(resp, &sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].FileName != "a.pdf" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestDecodeJSON_ErrorStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	client := ts.client()
	resp, err := client.get(ctx, "/v1/sessions/unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestUploadCommand_MissingFile(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"upload", "/nonexistent/file.pdf"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "hi"); got != "hi" {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "hi"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

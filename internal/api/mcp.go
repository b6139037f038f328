package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"docchat/internal/rag"
)

// NewMCPServer creates an MCP server exposing the engine's operations as
// tools, so agent clients can work with uploaded documents directly.
// PDF upload stays on the HTTP API; MCP ingestion takes plain text.
func NewMCPServer(engine *rag.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("docchat — question answering over uploaded documents, one chat session per document."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Create a new document session from plain text. Returns the session id to ask questions against."),
			mcp.WithString("name", mcp.Description("Display name for the document"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The document text"), mcp.Required()),
		),
		mcpIngestText(engine),
	)

	s.AddTool(
		mcp.NewTool("ask_document",
			mcp.WithDescription("Ask a question against a document session; the answer is grounded in the document's most relevant chunks."),
			mcp.WithString("session_id", mcp.Description("Session id returned at ingestion"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskDocument(engine),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List all document sessions, newest first."),
		),
		mcpListDocuments(engine),
	)

	s.AddTool(
		mcp.NewTool("delete_document",
			mcp.WithDescription("Delete a document session with its transcript and index. Unknown ids are a no-op."),
			mcp.WithString("session_id", mcp.Description("Session id to delete"), mcp.Required()),
		),
		mcpDeleteDocument(engine),
	)

	return s
}

func mcpIngestText(engine *rag.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		res, err := engine.Ingest(ctx, name, content)
		if err != nil {
			return mcpError(fmt.Sprintf("ingestion failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created session %s with %d chunks", res.Session.ID, res.ChunkCount)), nil
	}
}

func mcpAskDocument(engine *rag.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := engine.Ask(ctx, sessionID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpListDocuments(engine *rag.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessions, err := engine.Sessions(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list sessions: %v", err)), nil
		}
		if len(sessions) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(sessions)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteDocument(engine *rag.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		if err := engine.Delete(ctx, sessionID); err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted session %s", sessionID)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

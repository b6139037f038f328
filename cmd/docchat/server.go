package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"docchat/internal/api"
	"docchat/internal/config"
	"docchat/internal/document"
	"docchat/internal/ollama"
	"docchat/internal/rag"
	"docchat/internal/retrieval"
	"docchat/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the docchat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "docchat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness. Missing models are a warning, not a hard
	// failure: the server can come up while models are still pulling.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if !ollamaClient.IsRunning(ctx) {
		printWarning("Ollama is not reachable at %s — ingestion and questions will fail until it is up", cfg.Ollama.BaseURL)
	} else {
		for _, model := range []string{cfg.Ollama.EmbedModel, cfg.Ollama.GenerateModel} {
			if !ollamaClient.HasModel(ctx, model) {
				printWarning("model %q not found — run: ollama pull %s", model, model)
			}
		}
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir, cfg.Embedding.Dimension)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Build the engine.
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel, cfg.Embedding.Dimension)
	generator := rag.GeneratorFunc(func(genCtx context.Context, prompt string) (string, error) {
		return ollamaClient.Generate(genCtx, cfg.Ollama.GenerateModel, prompt)
	})
	chunker := document.NewChunker(cfg.Chunking.WindowSize, cfg.Chunking.OverlapSize)
	engine := rag.NewEngine(store, embedder, generator, chunker, cfg.Retrieval.TopK)

	// HTTP API server.
	handler := api.NewHandler(api.Deps{Engine: engine, Token: cfg.Server.Token})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// MCP server on its own port (streamable HTTP transport).
	mcpSrv := api.NewMCPServer(engine)
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	httpMCP := server.NewStreamableHTTPServer(mcpSrv)
	go func() {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := httpMCP.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpMCP.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

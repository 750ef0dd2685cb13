// Deckhand server — hosts the WebSocket dialog endpoint and drives
// presentation-construction sessions from greeting to generated deck.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deckhand-io/deckhand/pkg/api"
	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/deckbuilder"
	"github.com/deckhand-io/deckhand/pkg/generator"
	"github.com/deckhand-io/deckhand/pkg/llm"
	"github.com/deckhand-io/deckhand/pkg/retry"
	"github.com/deckhand-io/deckhand/pkg/store"
	"github.com/deckhand-io/deckhand/pkg/version"
)

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Load .env when present; deployed environments configure via real env.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	ctx := context.Background()

	// 1. Configuration: settings plus the validated taxonomy registry
	cfg, err := config.Initialize(ctx)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(logLevel(cfg.Settings.LogLevel))

	slog.Info("Starting deckhand",
		"version", version.Full(),
		"host", cfg.Settings.Host,
		"port", cfg.Settings.Port)

	// 2. Session store
	sessionStore, err := store.New(ctx, cfg.Settings)
	if err != nil {
		slog.Error("Failed to connect session store", "backend", cfg.Settings.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			slog.Error("Error closing session store", "error", err)
		}
	}()
	slog.Info("Session store ready", "backend", cfg.Settings.StoreBackend)

	// 3. LLM client, with the pacer shared across all outbound calls
	pacer := retry.NewPacer(cfg.Settings.RateLimitDelay())
	llmClient, err := llm.NewGenAIClient(ctx, cfg.Settings.GoogleAPIKey, retry.Config{
		MaxRetries: cfg.Settings.MaxVertexRetries,
		BaseDelay:  cfg.Settings.VertexRetryBaseDelay(),
		Name:       "llm",
	}, pacer)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := llmClient.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()

	// 4. Content generation and deck building
	contentRouter := generator.NewRouter(cfg, pacer)
	builder := deckbuilder.New(cfg.Settings)

	// 5. HTTP server (non-blocking start)
	httpServer := api.NewServer(cfg, llmClient, contentRouter, builder, sessionStore)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Settings.Host + ":" + cfg.Settings.Port
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown. Open WebSockets observe the closed listener
	// and persist their sessions on the way out.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

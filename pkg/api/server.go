// Package api exposes the deckhand HTTP surface: the WebSocket dialog
// endpoint, a read-only session endpoint and the health check.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/dialog"
	"github.com/deckhand-io/deckhand/pkg/llm"
	"github.com/deckhand-io/deckhand/pkg/store"
)

// defaultWriteTimeout bounds a single WebSocket write.
const defaultWriteTimeout = 10 * time.Second

// Server is the HTTP server. The collaborators are process-wide; each
// WebSocket connection gets its own dialog machine and fallback store on
// top of them.
type Server struct {
	cfg     *config.Config
	llm     llm.Client
	content dialog.ContentRouter
	builder dialog.DeckBuilder
	store   store.SessionStore

	echo       *echo.Echo
	httpServer *http.Server

	writeTimeout time.Duration
}

// NewServer wires the server and registers its routes.
func NewServer(cfg *config.Config, llmClient llm.Client, content dialog.ContentRouter, builder dialog.DeckBuilder, sessionStore store.SessionStore) *Server {
	s := &Server{
		cfg:          cfg,
		llm:          llmClient,
		content:      content,
		builder:      builder,
		store:        sessionStore,
		writeTimeout: defaultWriteTimeout,
	}

	e := echo.New()
	e.Use(requestLogger())
	e.Use(securityHeaders())
	e.Use(recoverPanics())

	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)
	e.GET("/api/v1/sessions/:session_id", s.getSessionHandler)

	s.echo = e
	s.httpServer = &http.Server{Handler: e}
	return s
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener. Tests use this to
// bind a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

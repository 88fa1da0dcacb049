// Package http provides the HTTP API surface for the gateway.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lanternai/lantern/internal/config"
	"github.com/lanternai/lantern/internal/http/middleware"
	"github.com/lanternai/lantern/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      *cfg,
		handler:     handler,
		middlewares: middlewares,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", s.handler.HandleInvoke)
	mux.HandleFunc("/v1/count_tokens", s.handler.HandleCountTokens)
	mux.HandleFunc("/health", s.handler.HandleHealth)

	s.srv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.middlewares(mux),
		ReadTimeout: time.Duration(s.config.ReadTimeout) * time.Second,
		// WriteTimeout bounds the whole response, including long-lived
		// streams, so it follows the invocation timeout rather than the
		// read timeout.
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	observability.Logger().Info("starting HTTP server",
		observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Package server exposes the bridge over HTTP: the SSE transport, its
// message side channel and the /api and /metrics endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/app"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// Server manages the HTTP server and routes.
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
	logger *common.Logger
}

// New creates a new HTTP server with the given app.
func New(application *app.App) *Server {
	s := &Server{
		app:    application,
		logger: application.Logger,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              application.Config.Server.Address(),
		Handler:           otelhttp.NewHandler(s.withMiddleware(s.router), "openapi-mcp-bridge"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /sse responses stay open for the life of the session.
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Str("sse", fmt.Sprintf("http://%s%s", s.server.Addr, ssePath)).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown closes the bound session, which ends any open /sse stream, then
// gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.app.Sessions.Shutdown(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close session")
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

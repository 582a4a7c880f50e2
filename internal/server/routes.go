package server

import (
	"net/http"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/telemetry"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// MCP over SSE
	mux.HandleFunc(ssePath, s.handleSSE)
	mux.HandleFunc(messagesPath, s.handleMessages)

	// API routes
	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)
	mux.HandleFunc("/api/tools", s.app.ToolsHandler.ServeHTTP)

	if s.app.MetricsRegistry != nil {
		path := s.app.Config.Telemetry.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, telemetry.Handler(s.app.MetricsRegistry))
	}

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}

package handlers

import (
	"net/http"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// SessionStater reports the session slot state ("idle", "active", "closed").
type SessionStater func() string

// HealthHandler handles health check requests.
type HealthHandler struct {
	logger  *common.Logger
	tools   int
	session SessionStater
}

// NewHealthHandler creates a new health handler. session may be nil.
func NewHealthHandler(logger *common.Logger, tools int, session SessionStater) *HealthHandler {
	return &HealthHandler{logger: logger, tools: tools, session: session}
}

// ServeHTTP handles GET /api/health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]any{
		"status": "ok",
		"tools":  h.tools,
	}
	if h.session != nil {
		body["session"] = h.session()
	}
	WriteJSON(w, http.StatusOK, body)
}

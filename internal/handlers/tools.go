package handlers

import (
	"net/http"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
)

type toolEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Method      string `json:"method"`
	Path        string `json:"path"`
}

// ToolsHandler lists the registered tools and the operation behind each.
type ToolsHandler struct {
	logger   *common.Logger
	registry *registry.Registry
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(logger *common.Logger, reg *registry.Registry) *ToolsHandler {
	return &ToolsHandler{logger: logger, registry: reg}
}

// ServeHTTP handles GET /api/tools.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	defs := h.registry.List()
	entries := make([]toolEntry, 0, len(defs))
	for _, def := range defs {
		entries = append(entries, toolEntry{
			Name:        def.Name,
			Description: def.Description,
			Method:      def.Method,
			Path:        def.Path,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"tools": entries,
	})
}

package handlers

import (
	"net/http"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// VersionHandler handles version information requests.
type VersionHandler struct {
	logger     *common.Logger
	serverName string
	serverVer  string
}

// NewVersionHandler creates a new version handler. serverName and serverVer
// are the name and version advertised to MCP clients.
func NewVersionHandler(logger *common.Logger, serverName, serverVer string) *VersionHandler {
	return &VersionHandler{logger: logger, serverName: serverName, serverVer: serverVer}
}

// ServeHTTP handles GET /api/version.
func (h *VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":        common.GetVersion(),
		"build":          common.Build,
		"git_commit":     common.GitCommit,
		"server_name":    h.serverName,
		"server_version": h.serverVer,
	})
}

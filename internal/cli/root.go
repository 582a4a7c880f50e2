// Package cli implements the openapi-mcp-bridge commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "openapi-mcp-bridge",
		Short: "Serve a generated OpenAPI tool manifest as MCP tools",
		Long: "openapi-mcp-bridge exposes the tools in a generated manifest over MCP (stdio or SSE)\n" +
			"and forwards every tool call to the upstream HTTP API named by TARGET_API_BASE_URL.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
	}

	root.Version = common.GetVersion()
	root.SetVersionTemplate(fmt.Sprintf("openapi-mcp-bridge version %s\n", common.GetFullVersion()))

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewTestServerCmd())
	root.AddCommand(NewVersionCmd())
	return root
}

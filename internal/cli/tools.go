package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Validate the tool manifest and list its tools",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the listing as JSON")

	return cmd
}

type toolListing struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

func runTools(cmd *cobra.Command, _ []string) error {
	manifest, _ := cmd.Flags().GetString("manifest")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	config.ApplyFlagOverrides(cfg, "", "", 0, manifest)

	reg, err := registry.Load(cfg.Tools.Manifest)
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	defs := reg.List()
	listing := make([]toolListing, 0, len(defs))
	for _, def := range defs {
		listing = append(listing, toolListing{
			Name:        def.Name,
			Method:      def.Method,
			Path:        def.Path,
			Description: def.Description,
		})
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMETHOD\tPATH")
	for _, l := range listing {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.Name, l.Method, l.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d tool(s) in %s\n", len(listing), cfg.Tools.Manifest)
	return nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
)

const configFileName = "openapi-mcp-bridge.toml"

// addConfigFlags registers the flags shared by commands that read config.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("config", "c", nil, "Configuration file path (can be specified multiple times)")
	cmd.Flags().StringP("manifest", "m", "", "Tool manifest path (overrides config)")
}

// loadConfig loads the files named by --config, or the first discovered
// config file when none are given.
func loadConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	configFiles, _ := cmd.Flags().GetStringArray("config")
	if len(configFiles) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				configFiles = append(configFiles, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, configFiles, exitError(exitConfig, "failed to load configuration: %v", err)
	}
	return cfg, configFiles, nil
}

// reportIssues prints configuration problems in the same layout for every command.
func reportIssues(w io.Writer, issues []string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration error: mandatory fields are missing or invalid:")
	fmt.Fprintln(w, "")
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Set %s (and optionally %s) in the environment.\n", config.EnvTargetBaseURL, config.EnvTargetAuthHeader)
	fmt.Fprintln(w, "Other values can be set via TOML file, BRIDGE_* environment variables, or CLI flags.")
	fmt.Fprintln(w, "")
}

// configSearchPaths returns TOML files to auto-discover (first match wins).
// Binary-relative paths are tried first, with CWD fallbacks after.
// Paths are deduplicated via filepath.Abs.
func configSearchPaths() []string {
	candidates := []string{
		configFileName,
		filepath.Join("config", configFileName),
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, configFileName),
		filepath.Join(binDir, "config", configFileName),
	}
	paths = append(paths, candidates...)

	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, p)
	}
	return deduped
}

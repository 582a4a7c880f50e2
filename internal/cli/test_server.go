package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/client"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// NewTestServerCmd creates the "test-server" subcommand.
func NewTestServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-server",
		Short: "Connect to an MCP server as a client and run list or call requests",
		Example: "  openapi-mcp-bridge test-server --server-cmd \"openapi-mcp-bridge serve -m tools.json\" --list\n" +
			"  openapi-mcp-bridge test-server --transport sse --sse-url http://localhost:8080 \\\n" +
			"    --tool-name getPetById --tool-args '{\"petId\": 1}'",
		Args: cobra.NoArgs,
		RunE: runTestServer,
	}

	cmd.Flags().String("transport", client.TransportStdio, "Transport: stdio or sse")
	cmd.Flags().String("server-cmd", "", "Command that starts a stdio server")
	cmd.Flags().String("sse-url", "http://localhost:8080", "SSE server base URL (/sse is appended)")
	cmd.Flags().String("env-source", "", "Environment for the spawned server: JSON object, .json file or .env file")
	cmd.Flags().Bool("list", false, "List the server's tools")
	cmd.Flags().String("tool-name", "", "Tool to call")
	cmd.Flags().String("tool-args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().Duration("timeout", client.DefaultTimeout, "Timeout for each request")
	cmd.Flags().String("log-level", "warn", "Log level for client diagnostics (written to stderr)")

	return cmd
}

func runTestServer(cmd *cobra.Command, _ []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	serverCmd, _ := cmd.Flags().GetString("server-cmd")
	sseURL, _ := cmd.Flags().GetString("sse-url")
	envSource, _ := cmd.Flags().GetString("env-source")
	list, _ := cmd.Flags().GetBool("list")
	toolName, _ := cmd.Flags().GetString("tool-name")
	toolArgs, _ := cmd.Flags().GetString("tool-args")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var args map[string]any
	if err := json.Unmarshal([]byte(toolArgs), &args); err != nil {
		return exitError(exitUsage, "--tool-args must be a JSON object: %v", err)
	}

	env, err := client.ParseEnvSource(envSource)
	if err != nil {
		return exitError(exitUsage, "invalid --env-source: %v", err)
	}

	logger := common.NewLoggerFromConfig(common.LoggingConfig{Level: logLevel})
	tester, err := client.NewTester(client.Options{
		Transport: transport,
		ServerCmd: serverCmd,
		SSEURL:    sseURL,
		Env:       env,
		Stderr:    os.Stderr,
		Timeout:   timeout,
	}, logger)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}

	var requests []client.Request
	if list {
		requests = append(requests, client.Request{Method: client.MethodList})
	}
	if toolName != "" {
		requests = append(requests, client.Request{Method: client.MethodCall, ToolName: toolName, Arguments: args})
	}
	if len(requests) == 0 {
		requests = append(requests, client.Request{Method: client.MethodInitialize})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for i, req := range requests {
		req.ID = i + 1
		start := time.Now()
		resp, err := tester.Run(ctx, req)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", req.Method, err)
		}
		logger.Debug().
			Str("method", req.Method).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request completed")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return nil
}

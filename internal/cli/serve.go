package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/app"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/server"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/session"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool manifest over MCP",
		Long: "Serve the tool manifest over MCP. The stdio transport reads JSON-RPC lines on stdin;\n" +
			"the sse transport listens on host:port and serves GET /sse and POST /messages.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	addConfigFlags(cmd)
	cmd.Flags().StringP("transport", "t", "", "Transport: stdio or sse (overrides config)")
	cmd.Flags().String("host", "", "SSE listen host (overrides config)")
	cmd.Flags().IntP("port", "p", 0, "SSE listen port (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	manifest, _ := cmd.Flags().GetString("manifest")

	cfg, configFiles, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Apply CLI flag overrides (highest priority)
	config.ApplyFlagOverrides(cfg, transport, host, port, manifest)
	cfg.Server.Transport = strings.ToLower(cfg.Server.Transport)

	if issues := cfg.Validate(); len(issues) > 0 {
		reportIssues(cmd.ErrOrStderr(), issues)
		return exitError(exitConfig, "invalid configuration")
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)
	logger.Info().
		Str("transport", cfg.Server.Transport).
		Str("manifest", cfg.Tools.Manifest).
		Str("config_files", fmt.Sprintf("%v", configFiles)).
		Str("version", common.GetVersion()).
		Msg("configuration loaded")

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return exitError(exitConfig, "failed to initialize: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("application shutdown failed")
		}
	}()

	if cfg.Server.Transport == config.TransportSSE {
		return serveSSE(ctx, application, logger)
	}
	return serveStdio(ctx, application, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}

// serveStdio runs the stdio transport until stdin ends or a signal arrives.
func serveStdio(ctx context.Context, application *app.App, in io.Reader, out io.Writer, logger *common.Logger) error {
	t := session.NewStdioTransport(in, out, logger)
	logger.Info().Int("tools", application.Registry.Len()).Msg("serving MCP over stdio")

	err := t.Serve(ctx, application.Sessions)
	if shutdownErr := application.Sessions.Shutdown(); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("failed to close session")
	}

	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("shutdown signal received")
		return nil
	}
	if err != nil {
		return fmt.Errorf("stdio transport failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// serveSSE runs the HTTP server until a signal arrives, then shuts down
// gracefully.
func serveSSE(ctx context.Context, application *app.App, logger *common.Logger) error {
	srv := server.New(application)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		application.Sessions.Shutdown()
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	logger.Info().Msg("server stopped")
	return nil
}

// Package app wires configuration, the tool registry, the dispatcher and the
// session manager into one application value shared by every transport.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/handlers"
	bridgemcp "github.com/bobmcallan/openapi-mcp-bridge/internal/mcp"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/session"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/telemetry"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Registry   *registry.Registry
	Dispatcher *bridgemcp.Dispatcher
	MCPServer  *bridgemcp.Server
	Sessions   *session.Manager

	// Metrics and MetricsRegistry are nil when metrics are disabled.
	Metrics         *telemetry.Metrics
	MetricsRegistry *prometheus.Registry
	Tracing         *telemetry.Provider

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	ToolsHandler   *handlers.ToolsHandler
}

// New loads the tool manifest named by cfg and initializes the application.
func New(ctx context.Context, cfg *config.Config, logger *common.Logger) (*App, error) {
	reg, err := registry.Load(cfg.Tools.Manifest)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("manifest", cfg.Tools.Manifest).
		Int("tools", reg.Len()).
		Msg("tool manifest loaded")

	return NewWithRegistry(ctx, cfg, logger, reg)
}

// NewWithRegistry initializes the application around an already loaded
// registry. Extra dispatcher options are applied after the defaults.
func NewWithRegistry(ctx context.Context, cfg *config.Config, logger *common.Logger, reg *registry.Registry, opts ...bridgemcp.Option) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Telemetry.TracingEnabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.OTLPInsecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: common.GetVersion(),
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.Tracing = tracing

	observer, err := telemetry.NewToolObserver(otel.Meter(telemetry.TracerName), tracing.Tracer())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tool observer: %w", err)
	}

	dispatcherOpts := []bridgemcp.Option{bridgemcp.WithObserver(observer)}
	var sessionOpts []session.Option
	if cfg.Telemetry.MetricsEnabled {
		a.MetricsRegistry = telemetry.NewRegistry()
		a.Metrics = telemetry.NewMetrics(a.MetricsRegistry)
		dispatcherOpts = append(dispatcherOpts, bridgemcp.WithObserver(a.Metrics))
		sessionOpts = append(sessionOpts, session.WithListener(a.Metrics))
	}
	dispatcherOpts = append(dispatcherOpts, opts...)

	a.Dispatcher = bridgemcp.NewDispatcher(reg, cfg.Target, logger, dispatcherOpts...)
	a.MCPServer = bridgemcp.NewServer(cfg.Server.Name, cfg.Server.Version, reg, a.Dispatcher, logger)
	a.Sessions = session.NewManager(a.MCPServer, logger, sessionOpts...)

	a.initHandlers()

	logger.Info().
		Str("server", cfg.Server.Name).
		Str("target", cfg.Target.BaseURL).
		Msg("application initialization complete")

	return a, nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.Registry.Len(), func() string {
		return a.Sessions.State().String()
	})
	a.VersionHandler = handlers.NewVersionHandler(a.Logger, a.Config.Server.Name, a.Config.Server.Version)
	a.ToolsHandler = handlers.NewToolsHandler(a.Logger, a.Registry)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close closes all application resources.
func (a *App) Close(ctx context.Context) error {
	if a.Tracing != nil {
		if err := a.Tracing.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down tracing: %w", err)
		}
	}
	return nil
}

package config

import "github.com/bobmcallan/openapi-mcp-bridge/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "openapi-mcp-server",
			Version:   "1.0.0",
			Transport: TransportStdio,
			Host:      "0.0.0.0",
			Port:      8080,
		},
		Tools: ToolsConfig{
			Manifest: "tools.json",
		},
		Logging: common.LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console"},
			FilePath:   "logs/openapi-mcp-bridge.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
			SampleRate:     1.0,
			ServiceName:    "openapi-mcp-bridge",
		},
	}
}

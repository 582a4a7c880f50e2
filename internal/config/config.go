// Package config loads bridge settings from TOML files, BRIDGE_* environment
// variables and command-line flags, plus the TARGET_API_* upstream settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// Transport names accepted by [server].transport.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config represents the bridge configuration.
type Config struct {
	Server    ServerConfig         `toml:"server"`
	Tools     ToolsConfig          `toml:"tools"`
	Logging   common.LoggingConfig `toml:"logging"`
	Telemetry TelemetryConfig      `toml:"telemetry"`

	// Target is read from the environment only.
	Target TargetConfig `toml:"-"`
}

// ServerConfig contains protocol server settings.
type ServerConfig struct {
	Name      string `toml:"name"`
	Version   string `toml:"version"`
	Transport string `toml:"transport"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
}

// ToolsConfig points at the generated tool manifest.
type ToolsConfig struct {
	Manifest string `toml:"manifest"`
}

// TelemetryConfig contains metrics and tracing settings.
type TelemetryConfig struct {
	MetricsEnabled bool    `toml:"metrics_enabled"`
	MetricsPath    string  `toml:"metrics_path"`
	TracingEnabled bool    `toml:"tracing_enabled"`
	OTLPEndpoint   string  `toml:"otlp_endpoint"`
	OTLPInsecure   bool    `toml:"otlp_insecure"`
	SampleRate     float64 `toml:"sample_rate"`
	ServiceName    string  `toml:"service_name"`
}

// Address returns host:port for the SSE listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadFromFiles loads configuration with priority:
// defaults -> file1 -> file2 -> ... -> env.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.Target = LoadTarget()

	return config, nil
}

// applyEnvOverrides applies BRIDGE_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if name := os.Getenv("BRIDGE_SERVER_NAME"); name != "" {
		config.Server.Name = name
	}
	if version := os.Getenv("BRIDGE_SERVER_VERSION"); version != "" {
		config.Server.Version = version
	}
	if transport := os.Getenv("BRIDGE_TRANSPORT"); transport != "" {
		config.Server.Transport = transport
	}
	if host := os.Getenv("BRIDGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("BRIDGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if manifest := os.Getenv("BRIDGE_TOOLS_MANIFEST"); manifest != "" {
		config.Tools.Manifest = manifest
	}
	if level := os.Getenv("BRIDGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if enabled := os.Getenv("BRIDGE_METRICS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Telemetry.MetricsEnabled = b
		}
	}
	if endpoint := os.Getenv("BRIDGE_OTLP_ENDPOINT"); endpoint != "" {
		config.Telemetry.OTLPEndpoint = endpoint
		config.Telemetry.TracingEnabled = true
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Zero values leave the loaded setting in place.
func ApplyFlagOverrides(config *Config, transport, host string, port int, manifest string) {
	if transport != "" {
		config.Server.Transport = transport
	}
	if host != "" {
		config.Server.Host = host
	}
	if port > 0 {
		config.Server.Port = port
	}
	if manifest != "" {
		config.Tools.Manifest = manifest
	}
}

// Validate returns every configuration problem found, or nil.
func (c *Config) Validate() []string {
	var issues []string

	issues = append(issues, c.Target.Validate()...)

	switch strings.ToLower(c.Server.Transport) {
	case TransportStdio:
	case TransportSSE:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			issues = append(issues, fmt.Sprintf("server.port %d is out of range (1-65535)", c.Server.Port))
		}
	default:
		issues = append(issues, fmt.Sprintf("server.transport %q must be %q or %q", c.Server.Transport, TransportStdio, TransportSSE))
	}

	if strings.TrimSpace(c.Tools.Manifest) == "" {
		issues = append(issues, "tools.manifest is required (path to the generated tool manifest)")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("telemetry.sample_rate %v must be between 0 and 1", c.Telemetry.SampleRate))
	}

	return issues
}

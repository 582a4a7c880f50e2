package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables describing the upstream API.
const (
	EnvTargetBaseURL    = "TARGET_API_BASE_URL"
	EnvTargetAuthHeader = "TARGET_API_AUTH_HEADER"
)

// PlaceholderBaseURL is the value the generator writes when the API
// description has no servers entry. It is never a usable target.
const PlaceholderBaseURL = "YOUR_API_BASE_URL_HERE"

// TargetConfig is the upstream API the bridge forwards tool calls to.
type TargetConfig struct {
	BaseURL       string
	AuthHeaderRaw string
}

// LoadTarget reads the TARGET_API_* environment variables.
func LoadTarget() TargetConfig {
	return TargetConfig{
		BaseURL:       strings.TrimSpace(os.Getenv(EnvTargetBaseURL)),
		AuthHeaderRaw: os.Getenv(EnvTargetAuthHeader),
	}
}

// Validate reports a missing or placeholder base URL.
func (t TargetConfig) Validate() []string {
	switch t.BaseURL {
	case "":
		return []string{fmt.Sprintf("%s is required", EnvTargetBaseURL)}
	case PlaceholderBaseURL:
		return []string{fmt.Sprintf("%s is still the placeholder %q; set it to the upstream API URL", EnvTargetBaseURL, PlaceholderBaseURL)}
	}
	return nil
}

// AuthHeader splits AuthHeaderRaw at the first colon into a trimmed name and
// value. ok is false when the variable is unset or has no usable header name.
func (t TargetConfig) AuthHeader() (name, value string, ok bool) {
	if strings.TrimSpace(t.AuthHeaderRaw) == "" {
		return "", "", false
	}
	name, value, found := strings.Cut(t.AuthHeaderRaw, ":")
	if !found {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// AuthHeaderMalformed reports a set-but-unusable TARGET_API_AUTH_HEADER.
func (t TargetConfig) AuthHeaderMalformed() bool {
	if strings.TrimSpace(t.AuthHeaderRaw) == "" {
		return false
	}
	_, _, ok := t.AuthHeader()
	return !ok
}

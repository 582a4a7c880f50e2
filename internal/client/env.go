package client

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// ParseEnvSource reads environment variables for a spawned server from a
// JSON object string, a .json file or a .env file. An empty source yields nil.
func ParseEnvSource(source string) (map[string]string, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	var inline map[string]any
	if err := json.Unmarshal([]byte(source), &inline); err == nil && inline != nil {
		return stringValues(inline)
	}

	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("env source %s not found: %w", source, err)
	}

	if strings.HasSuffix(strings.ToLower(source), ".json") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", source, err)
		}
		var values map[string]any
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("env file %s must contain a JSON object: %w", source, err)
		}
		return stringValues(values)
	}

	values, err := godotenv.Read(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", source, err)
	}
	return values, nil
}

func stringValues(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("env value %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

// EnvList renders env as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

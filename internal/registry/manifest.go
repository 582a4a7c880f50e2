package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxManifestSize caps the tool manifest read at startup (10MB).
const maxManifestSize = 10 << 20

// manifestEntry is one tool as written by the generator. The underscore keys
// are the generator's original field names and are read as fallbacks.
type manifestEntry struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	InputSchema any             `json:"inputSchema" yaml:"inputSchema"`
	Method      string          `json:"method" yaml:"method"`
	Path        string          `json:"path" yaml:"path"`
	Parameters  []manifestParam `json:"parameters" yaml:"parameters"`
	RequestBody *manifestBody   `json:"requestBody" yaml:"requestBody"`

	OriginalMethod      string          `json:"_original_method" yaml:"_original_method"`
	OriginalPath        string          `json:"_original_path" yaml:"_original_path"`
	OriginalParameters  []manifestParam `json:"_original_parameters" yaml:"_original_parameters"`
	OriginalRequestBody *manifestBody   `json:"_original_request_body" yaml:"_original_request_body"`
}

type manifestParam struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Required bool   `json:"required" yaml:"required"`
}

type manifestBody struct {
	Required        bool   `json:"required" yaml:"required"`
	ContentType     string `json:"contentType" yaml:"contentType"`
	ContentTypeSnek string `json:"content_type" yaml:"content_type"`
}

// Load reads a JSON or YAML tool manifest and builds a Registry.
// The manifest is either a list of tools or an object with a "tools" list.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool manifest %s: %w", path, err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("tool manifest %s too large: %d bytes (max %d)", path, len(data), maxManifestSize)
	}

	var entries []manifestEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = decodeYAML(data)
	default:
		entries, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse tool manifest %s: %w", path, err)
	}

	defs := make([]ToolDefinition, 0, len(entries))
	for i, e := range entries {
		def, err := e.definition()
		if err != nil {
			return nil, fmt.Errorf("tool #%d in %s: %w", i+1, path, err)
		}
		defs = append(defs, def)
	}

	r, err := New(defs)
	if err != nil {
		return nil, fmt.Errorf("tool manifest %s: %w", path, err)
	}
	return r, nil
}

func decodeJSON(data []byte) ([]manifestEntry, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var entries []manifestEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}
	var doc struct {
		Tools []manifestEntry `json:"tools"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Tools, nil
}

func decodeYAML(data []byte) ([]manifestEntry, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var entries []manifestEntry
		if err := node.Decode(&entries); err != nil {
			return nil, err
		}
		return entries, nil
	case yaml.MappingNode:
		var doc struct {
			Tools []manifestEntry `yaml:"tools"`
		}
		if err := node.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Tools, nil
	default:
		return nil, fmt.Errorf("expected a list of tools or a tools mapping, got %s", describeKind(node.Kind))
	}
}

func describeKind(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an unsupported node"
	}
}

func (e manifestEntry) definition() (ToolDefinition, error) {
	def := ToolDefinition{
		Name:        e.Name,
		Description: e.Description,
		Method:      firstNonEmpty(e.Method, e.OriginalMethod),
		Path:        firstNonEmpty(e.Path, e.OriginalPath),
	}

	params := e.Parameters
	if len(params) == 0 {
		params = e.OriginalParameters
	}
	for _, p := range params {
		def.Parameters = append(def.Parameters, ParameterSpec(p))
	}

	body := e.RequestBody
	if body == nil {
		body = e.OriginalRequestBody
	}
	if body != nil {
		def.RequestBody = &RequestBodySpec{
			Required:    body.Required,
			ContentType: firstNonEmpty(body.ContentType, body.ContentTypeSnek),
		}
	}

	if e.InputSchema != nil {
		schema, err := json.Marshal(e.InputSchema)
		if err != nil {
			return ToolDefinition{}, fmt.Errorf("tool %q has an unencodable inputSchema: %w", e.Name, err)
		}
		def.InputSchema = schema
	}
	return def, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

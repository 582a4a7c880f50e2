// Package registry holds the immutable set of tool definitions loaded at startup.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidDefinition wraps every validation failure raised while loading tools.
var ErrInvalidDefinition = errors.New("invalid tool definition")

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
)

// DefaultContentType is used for request bodies that do not declare one.
const DefaultContentType = "application/json"

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// ParameterSpec describes one argument that maps onto the outbound request.
type ParameterSpec struct {
	Name     string
	In       string
	Required bool
}

// RequestBodySpec describes the outbound request body.
type RequestBodySpec struct {
	Required    bool
	ContentType string
}

// ToolDefinition is one tool and the HTTP operation behind it.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Method      string
	Path        string
	Parameters  []ParameterSpec
	RequestBody *RequestBodySpec
}

// PathPlaceholders returns the {name} tokens of the path template in order.
func (d ToolDefinition) PathPlaceholders() []string {
	matches := placeholderPattern.FindAllStringSubmatch(d.Path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Registry maps tool names to definitions. It is read-only after New returns.
type Registry struct {
	order  []ToolDefinition
	byName map[string]int
}

// New validates defs and builds a registry preserving their order.
// Any malformed definition fails the whole load.
func New(defs []ToolDefinition) (*Registry, error) {
	r := &Registry{
		order:  make([]ToolDefinition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
	}

	var errs []error
	for i, def := range defs {
		def = normalize(def)
		if err := Validate(def); err != nil {
			errs = append(errs, fmt.Errorf("tool #%d: %w", i+1, err))
			continue
		}
		if _, dup := r.byName[def.Name]; dup {
			errs = append(errs, fmt.Errorf("tool #%d: %w: duplicate name %q", i+1, ErrInvalidDefinition, def.Name))
			continue
		}
		r.byName[def.Name] = len(r.order)
		r.order = append(r.order, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Validate checks a single definition.
func Validate(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	}
	if def.Method == "" {
		return fmt.Errorf("%w: tool %q has empty method", ErrInvalidDefinition, def.Name)
	}
	if !allowedMethods[strings.ToUpper(def.Method)] {
		return fmt.Errorf("%w: tool %q has unsupported method %q", ErrInvalidDefinition, def.Name, def.Method)
	}
	if def.Path == "" {
		return fmt.Errorf("%w: tool %q has empty path", ErrInvalidDefinition, def.Name)
	}
	if !strings.HasPrefix(def.Path, "/") {
		return fmt.Errorf("%w: tool %q has invalid path %q (must start with /)", ErrInvalidDefinition, def.Name, def.Path)
	}
	if strings.Contains(def.Path, "..") {
		return fmt.Errorf("%w: tool %q has invalid path %q (contains ..)", ErrInvalidDefinition, def.Name, def.Path)
	}

	pathParams := make(map[string]bool)
	for _, p := range def.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: tool %q has a parameter with empty name", ErrInvalidDefinition, def.Name)
		}
		switch p.In {
		case InPath:
			pathParams[p.Name] = true
		case InQuery, InHeader:
		default:
			return fmt.Errorf("%w: tool %q parameter %q has unsupported location %q", ErrInvalidDefinition, def.Name, p.Name, p.In)
		}
	}

	placeholders := make(map[string]bool)
	for _, name := range def.PathPlaceholders() {
		placeholders[name] = true
		if !pathParams[name] {
			return fmt.Errorf("%w: tool %q path placeholder {%s} has no path parameter", ErrInvalidDefinition, def.Name, name)
		}
	}
	for name := range pathParams {
		if !placeholders[name] {
			return fmt.Errorf("%w: tool %q path parameter %q has no {%s} placeholder", ErrInvalidDefinition, def.Name, name, name)
		}
	}
	return nil
}

// normalize upper-cases the method, lower-cases locations, fills the body
// content type and copies slices so callers cannot mutate the registry.
func normalize(def ToolDefinition) ToolDefinition {
	def.Method = strings.ToUpper(strings.TrimSpace(def.Method))

	params := make([]ParameterSpec, len(def.Parameters))
	for i, p := range def.Parameters {
		p.In = strings.ToLower(strings.TrimSpace(p.In))
		params[i] = p
	}
	def.Parameters = params

	if def.RequestBody != nil {
		body := *def.RequestBody
		if body.ContentType == "" {
			body.ContentType = DefaultContentType
		}
		def.RequestBody = &body
	}

	if len(def.InputSchema) == 0 {
		def.InputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return def
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (ToolDefinition, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return r.order[i], true
}

// List returns every definition in load order.
func (r *Registry) List() []ToolDefinition {
	out := make([]ToolDefinition, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/config"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
	"github.com/spf13/cast"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout bounds every outbound call.
	DefaultTimeout = 30 * time.Second

	// BodyArgument is the argument key holding the outbound request body.
	BodyArgument = "requestBody"

	// maxResponseSize caps the upstream response body to prevent OOM from unexpectedly large responses.
	maxResponseSize = 50 << 20 // 50MB
)

// Observation describes one finished invocation.
type Observation struct {
	Tool     string
	Method   string
	Status   int
	Duration time.Duration
	Success  bool
	Code     ErrorCode
}

// Observer is notified after every invocation, successful or not.
type Observer interface {
	ObserveInvoke(ctx context.Context, o Observation)
}

// Dispatcher turns invocations into upstream HTTP requests. It holds no
// mutable state, so concurrent Invoke calls are safe.
type Dispatcher struct {
	registry   *registry.Registry
	baseURL    string
	authName   string
	authValue  string
	hasAuth    bool
	timeout    time.Duration
	httpClient *http.Client
	logger     *common.Logger
	observers  []Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the outbound client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithObserver adds an invocation observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// NewDispatcher creates a dispatcher for the tools in reg, calling the
// upstream described by target.
func NewDispatcher(reg *registry.Registry, target config.TargetConfig, logger *common.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		baseURL:  strings.TrimRight(target.BaseURL, "/"),
		timeout:  DefaultTimeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	d.authName, d.authValue, d.hasAuth = target.AuthHeader()
	if target.AuthHeaderMalformed() {
		logger.Warn().Str("env", config.EnvTargetAuthHeader).Msg("auth header is not in 'Name: Value' form, ignoring it")
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke executes one tool call. It always returns a Result; failures at any
// step, including panics, are mapped to an error result.
func (d *Dispatcher) Invoke(ctx context.Context, req InvocationRequest) (result Result) {
	start := time.Now()
	obs := Observation{Tool: req.ToolName}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Str("tool", req.ToolName).Str("panic", fmt.Sprint(r)).Msg("recovered panic in dispatcher")
			result = failed(InternalFault(r))
		}
		obs.Duration = time.Since(start)
		obs.Success = !result.IsError
		obs.Code = result.Code
		for _, o := range d.observers {
			o.ObserveInvoke(ctx, obs)
		}
	}()

	def, ok := d.registry.Lookup(req.ToolName)
	if !ok {
		d.logger.Warn().Str("tool", req.ToolName).Msg("unknown tool")
		return failed(UnknownTool(req.ToolName))
	}
	obs.Method = def.Method

	// The outbound call outlives the inbound request.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	httpReq, err := d.buildRequest(callCtx, def, req.Arguments)
	if err != nil {
		f := asFailure(err)
		d.logger.Debug().Str("tool", def.Name).Str("error", f.Message).Msg("invocation rejected")
		return failed(f)
	}

	d.logger.Debug().Str("tool", def.Name).Str("method", httpReq.Method).Str("path", httpReq.URL.Path).Msg("proxy request")

	resp, err := d.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		d.logger.Error().Str("tool", def.Name).Str("method", httpReq.Method).Str("path", httpReq.URL.Path).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("proxy request failed")
		return failed(MapTransportError(err))
	}
	defer resp.Body.Close()
	obs.Status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return failed(MapTransportError(fmt.Errorf("failed to read response: %w", err)))
	}

	d.logger.Debug().Str("tool", def.Name).Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("proxy response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(MapStatus(resp.StatusCode, body))
	}
	return succeeded(formatBody(resp.Header.Get("Content-Type"), body))
}

// buildRequest assembles the outbound request. Parameters are processed in
// declaration order and the first missing required one is reported.
func (d *Dispatcher) buildRequest(ctx context.Context, def registry.ToolDefinition, args map[string]any) (*http.Request, error) {
	path := def.Path
	query := url.Values{}
	headers := make(http.Header)
	headers.Set("Accept", "application/json")
	if d.hasAuth {
		headers.Set(d.authName, d.authValue)
	}

	for _, p := range def.Parameters {
		val, ok := args[p.Name]
		if !ok || val == nil {
			if p.Required {
				return nil, MissingParameter(p.Name, p.In)
			}
			continue
		}

		switch p.In {
		case registry.InPath:
			s, err := stringify(val)
			if err != nil {
				return nil, Failure{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid value for path parameter %s: %v", p.Name, err)}
			}
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(s))
		case registry.InQuery:
			values, ok := val.([]any)
			if !ok {
				values = []any{val}
			}
			for _, v := range values {
				s, err := stringify(v)
				if err != nil {
					return nil, Failure{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid value for query parameter %s: %v", p.Name, err)}
				}
				query.Add(p.Name, s)
			}
		case registry.InHeader:
			s, err := stringify(val)
			if err != nil {
				return nil, Failure{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid value for header %s: %v", p.Name, err)}
			}
			headers.Set(p.Name, s)
		}
	}

	var body io.Reader
	if rb := def.RequestBody; rb != nil {
		val, ok := args[BodyArgument]
		switch {
		case ok && val != nil:
			payload, err := encodeBody(val)
			if err != nil {
				return nil, Failure{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid request body: %v", err)}
			}
			body = bytes.NewReader(payload)
			headers.Set("Content-Type", rb.ContentType)
		case rb.Required:
			return nil, MissingBody()
		}
	}

	target := d.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, def.Method, target, body)
	if err != nil {
		return nil, InternalFault(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header = headers
	return req, nil
}

// stringify renders an argument for a path, query or header slot.
// Composite values are sent as compact JSON.
func stringify(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		return string(b), err
	}
	s, err := cast.ToStringE(v)
	if err == nil {
		return s, nil
	}
	b, jerr := json.Marshal(v)
	if jerr != nil {
		return "", err
	}
	return string(b), nil
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(v)
	}
}

// formatBody pretty-prints structured JSON and passes everything else through.
func formatBody(contentType string, body []byte) string {
	if !isJSON(contentType) {
		return string(body)
	}
	trimmed := bytes.TrimSpace(body)
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return string(body)
	}
	if s, ok := decoded.(string); ok {
		return s
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return media == "application/json" || strings.HasSuffix(media, "+json")
}

func asFailure(err error) Failure {
	var f Failure
	if errors.As(err, &f) {
		return f
	}
	return InternalFault(err)
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode is the JSON-RPC style code attached to a failed invocation.
type ErrorCode int

const (
	CodeInvalidParams  ErrorCode = mcp.INVALID_PARAMS
	CodeMethodNotFound ErrorCode = mcp.METHOD_NOT_FOUND
	CodeInternalError  ErrorCode = mcp.INTERNAL_ERROR
	CodeRequestTimeout ErrorCode = -32001
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeMethodNotFound:
		return "MethodNotFound"
	case CodeInternalError:
		return "InternalError"
	case CodeRequestTimeout:
		return "RequestTimeout"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// maxDetailLength bounds how much of a raw upstream body ends up in a message.
const maxDetailLength = 512

// Failure is a mapped error: a code plus a human readable message.
type Failure struct {
	Code    ErrorCode
	Message string
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// MapStatus maps a non-2xx upstream response to a Failure.
func MapStatus(status int, body []byte) Failure {
	var code ErrorCode
	switch status {
	case http.StatusBadRequest:
		code = CodeInvalidParams
	case http.StatusNotFound:
		code = CodeMethodNotFound
	case http.StatusRequestTimeout:
		code = CodeRequestTimeout
	default:
		code = CodeInternalError
	}
	return Failure{
		Code:    code,
		Message: fmt.Sprintf("upstream API returned %d: %s", status, upstreamDetail(status, body)),
	}
}

// MapTransportError maps a failure to reach the upstream at all.
func MapTransportError(err error) Failure {
	if err == nil {
		return InternalFault("unknown transport failure")
	}
	if isTimeout(err) {
		return Failure{Code: CodeRequestTimeout, Message: fmt.Sprintf("upstream request timed out: %v", err)}
	}
	return Failure{Code: CodeInternalError, Message: fmt.Sprintf("upstream request failed: %v", err)}
}

// UnknownTool is returned for names absent from the registry.
func UnknownTool(name string) Failure {
	return Failure{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown tool: %s", name)}
}

// MissingParameter reports the first absent required parameter.
func MissingParameter(name, in string) Failure {
	return Failure{Code: CodeInvalidParams, Message: fmt.Sprintf("missing required %s parameter: %s", in, name)}
}

// MissingBody reports an absent required request body.
func MissingBody() Failure {
	return Failure{Code: CodeInvalidParams, Message: "missing required request body"}
}

// InternalFault wraps anything unexpected, including recovered panics.
func InternalFault(v any) Failure {
	return Failure{Code: CodeInternalError, Message: fmt.Sprintf("internal error: %v", v)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// upstreamDetail picks the most specific message in an error body: a
// "message" or "detail" field, then the raw body, then the status text.
func upstreamDetail(status int, body []byte) string {
	var fields map[string]any
	if json.Unmarshal(body, &fields) == nil {
		for _, key := range []string{"message", "detail"} {
			v, ok := fields[key]
			if !ok || v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				if s != "" {
					return s
				}
				continue
			}
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}

	raw := strings.TrimSpace(string(body))
	if raw != "" {
		if len(raw) > maxDetailLength {
			raw = raw[:maxDetailLength] + "..."
		}
		return raw
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "no response body"
}

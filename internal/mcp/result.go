package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// InvocationRequest is one tools/call: a tool name and its argument map.
type InvocationRequest struct {
	ToolName  string
	Arguments map[string]any
}

// Result is the outcome of a single invocation. Failed results carry the
// mapped code and message, and Content repeats the message for display.
type Result struct {
	Content string
	IsError bool
	Code    ErrorCode
	Message string
}

func succeeded(text string) Result {
	return Result{Content: text}
}

func failed(f Failure) Result {
	return Result{
		Content: f.Message,
		IsError: true,
		Code:    f.Code,
		Message: f.Message,
	}
}

// ToolResult converts r to the protocol envelope. Error details ride in _meta.
func (r Result) ToolResult() *mcp.CallToolResult {
	out := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(r.Content)},
		IsError: r.IsError,
	}
	if r.IsError {
		out.Meta = &mcp.Meta{AdditionalFields: map[string]any{
			"errorCode":    int(r.Code),
			"errorMessage": r.Message,
		}}
	}
	return out
}

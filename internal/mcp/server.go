// Package mcp projects the tool registry onto an MCP server and dispatches
// tool calls to the upstream HTTP API.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server answers MCP messages for one registry. It is transport agnostic:
// the session layer feeds it raw JSON-RPC messages.
type Server struct {
	mcp        *server.MCPServer
	registry   *registry.Registry
	dispatcher *Dispatcher
	logger     *common.Logger
}

// NewServer registers every tool in reg on a fresh MCP server.
func NewServer(name, version string, reg *registry.Registry, d *Dispatcher, logger *common.Logger) *Server {
	hooks := &server.Hooks{}
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		logger.Warn().Str("method", string(method)).Str("error", err.Error()).Msg("mcp request failed")
	})

	s := &Server{
		registry:   reg,
		dispatcher: d,
		logger:     logger,
	}
	s.mcp = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithToolFilter(s.loadOrder),
		server.WithRecovery(),
		server.WithHooks(hooks),
	)

	for _, def := range reg.List() {
		s.mcp.AddTool(BuildMCPTool(def), s.toolHandler(def.Name))
	}

	logger.Info().Str("name", name).Str("version", version).Int("tools", reg.Len()).Msg("MCP server initialized")
	return s
}

// BuildMCPTool is the protocol-facing projection of a definition.
func BuildMCPTool(def registry.ToolDefinition) mcp.Tool {
	return mcp.NewToolWithRawSchema(def.Name, def.Description, def.InputSchema)
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.dispatcher.Invoke(ctx, InvocationRequest{
			ToolName:  name,
			Arguments: r.GetArguments(),
		})
		return result.ToolResult(), nil
	}
}

// loadOrder undoes the name sort applied by tools/list.
func (s *Server) loadOrder(_ context.Context, tools []mcp.Tool) []mcp.Tool {
	byName := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	ordered := make([]mcp.Tool, 0, len(tools))
	for _, def := range s.registry.List() {
		if t, ok := byName[def.Name]; ok {
			ordered = append(ordered, t)
			delete(byName, def.Name)
		}
	}
	for _, t := range tools {
		if _, ok := byName[t.Name]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// HandleMessage processes one JSON-RPC message and returns the reply, or
// nil for notifications. Calls to unknown tools get a MethodNotFound tool
// result instead of a protocol error.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	var msg struct {
		Method mcp.MCPMethod  `json:"method"`
		ID     *mcp.RequestId `json:"id"`
		Params struct {
			Name string `json:"name"`
		} `json:"params"`
	}
	if json.Unmarshal(raw, &msg) == nil && msg.Method == mcp.MethodToolsCall && msg.ID != nil && !msg.ID.IsNil() {
		if _, ok := s.registry.Lookup(msg.Params.Name); !ok {
			result := s.dispatcher.Invoke(ctx, InvocationRequest{ToolName: msg.Params.Name})
			return mcp.NewJSONRPCResultResponse(*msg.ID, result.ToolResult())
		}
	}
	return s.mcp.HandleMessage(ctx, raw)
}

// MCPServer exposes the underlying server for transports that need it.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

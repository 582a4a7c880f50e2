// Package client connects to a running bridge as an MCP client and runs
// single requests against it, for smoke-testing a deployment.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mattn/go-shellwords"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
)

// Methods a Tester can run after initialize.
const (
	MethodInitialize = "initialize"
	MethodList       = "list"
	MethodCall       = "call"
)

// Transports a Tester can connect over.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// DefaultTimeout bounds a whole Tester run.
const DefaultTimeout = 60 * time.Second

// ErrUnsupportedMethod is returned for methods other than initialize, list and call.
var ErrUnsupportedMethod = errors.New("unsupported method")

// Options selects how a Tester reaches the server.
type Options struct {
	Transport string
	// ServerCmd is the command line that starts a stdio server.
	ServerCmd string
	// SSEURL is the server base URL; "/sse" is appended.
	SSEURL string
	// Env is added to the spawned server's environment.
	Env map[string]string
	// Stderr receives the spawned server's stderr. Defaults to io.Discard.
	Stderr  io.Writer
	Timeout time.Duration
}

// Request is one test run.
type Request struct {
	Method    string
	ToolName  string
	Arguments map[string]any
	ID        int
}

// Response is the JSON-RPC shaped output of a run.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Result  any    `json:"result"`
}

// Tester runs MCP requests against a server.
type Tester struct {
	opts   Options
	logger *common.Logger
}

// NewTester validates opts and creates a Tester.
func NewTester(opts Options, logger *common.Logger) (*Tester, error) {
	switch opts.Transport {
	case TransportStdio:
		if strings.TrimSpace(opts.ServerCmd) == "" {
			return nil, errors.New("server command is required for stdio transport")
		}
	case TransportSSE:
		if strings.TrimSpace(opts.SSEURL) == "" {
			return nil, errors.New("SSE URL is required for sse transport")
		}
	default:
		return nil, fmt.Errorf("unsupported transport %q (want %q or %q)", opts.Transport, TransportStdio, TransportSSE)
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Tester{opts: opts, logger: logger}, nil
}

// Run connects, initializes the session and performs req.
func (t *Tester) Run(ctx context.Context, req Request) (*Response, error) {
	if req.Method == MethodCall && req.ToolName == "" {
		return nil, errors.New("tool name is required for call")
	}
	switch req.Method {
	case MethodInitialize, MethodList, MethodCall:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	c, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "openapi-mcp-bridge-tester",
		Version: common.GetVersion(),
	}
	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}
	t.logger.Info().
		Str("server", initResult.ServerInfo.Name).
		Str("version", initResult.ServerInfo.Version).
		Msg("MCP session initialized")

	var result any
	switch req.Method {
	case MethodInitialize:
		result = initResult
	case MethodList:
		t.logger.Info().Msg("sending tools/list")
		result, err = c.ListTools(ctx, mcp.ListToolsRequest{})
	case MethodCall:
		t.logger.Info().Str("tool", req.ToolName).Msg("sending tools/call")
		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = req.ToolName
		callReq.Params.Arguments = req.Arguments
		result, err = c.CallTool(ctx, callReq)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", req.Method, err)
	}

	return &Response{JSONRPC: mcp.JSONRPC_VERSION, ID: req.ID, Result: result}, nil
}

func (t *Tester) connect(ctx context.Context) (*client.Client, error) {
	switch t.opts.Transport {
	case TransportStdio:
		argv, err := shellwords.Parse(t.opts.ServerCmd)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server command: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("server command is empty")
		}
		t.logger.Info().Str("command", t.opts.ServerCmd).Msg("starting server process")

		c, err := client.NewStdioMCPClient(argv[0], EnvList(t.opts.Env), argv[1:]...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect via stdio: %w", err)
		}
		if stderr, ok := client.GetStderr(c); ok {
			go io.Copy(t.opts.Stderr, stderr)
		}
		return c, nil

	default:
		url := strings.TrimRight(t.opts.SSEURL, "/") + "/sse"
		t.logger.Info().Str("url", url).Msg("connecting to SSE server")

		c, err := client.NewSSEMCPClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to connect via SSE: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect via SSE: %w", err)
		}
		return c, nil
	}
}

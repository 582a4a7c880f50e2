package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxLineSize bounds a single newline-delimited message (10MB).
const maxLineSize = 10 << 20

// StdioTransport carries newline-delimited JSON-RPC over a reader and a
// writer, normally the process stdin and stdout.
type StdioTransport struct {
	in     io.Reader
	out    io.Writer
	logger *common.Logger

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

// NewStdioTransport creates a transport over in and out.
func NewStdioTransport(in io.Reader, out io.Writer, logger *common.Logger) *StdioTransport {
	return &StdioTransport{
		in:     in,
		out:    out,
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (t *StdioTransport) ID() string { return "stdio" }

// Send writes msg as one line. Writes are serialized.
func (t *StdioTransport) Send(_ context.Context, msg mcp.JSONRPCMessage) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.out.Write(data)
	return err
}

// Close stops Serve. It is safe to call more than once.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// Serve binds the transport to m and reads messages until the input ends,
// the transport is closed or ctx is done. Tool calls run concurrently;
// other messages are handled in arrival order.
func (t *StdioTransport) Serve(ctx context.Context, m *Manager) error {
	if err := m.Bind(t); err != nil {
		return err
	}
	defer m.Unbind(t)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-t.closed:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	handleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closed:
			return nil
		case err := <-readErr:
			t.inflight.Wait()
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			t.logger.Info().Msg("stdin closed")
			return nil
		case line := <-lines:
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			raw := json.RawMessage(line)
			if isToolCall(raw) {
				t.inflight.Add(1)
				go func() {
					defer t.inflight.Done()
					m.Handle(handleCtx, t, raw)
				}()
				continue
			}
			m.Handle(handleCtx, t, raw)
		}
	}
}

func isToolCall(raw json.RawMessage) bool {
	var msg struct {
		Method mcp.MCPMethod `json:"method"`
	}
	return json.Unmarshal(raw, &msg) == nil && msg.Method == mcp.MethodToolsCall
}

// Package session owns the single active transport and routes protocol
// messages between it and the MCP server.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/common"
	"github.com/mark3labs/mcp-go/mcp"
)

var (
	// ErrNoActiveSession is returned by Deliver when no transport is bound.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionClosed is returned by Bind after Shutdown.
	ErrSessionClosed = errors.New("session manager is closed")
)

// State is the lifecycle state of the manager.
type State int

const (
	Idle State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is one client connection able to carry replies.
type Transport interface {
	ID() string
	Send(ctx context.Context, msg mcp.JSONRPCMessage) error
	Close() error
}

// MessageHandler answers raw JSON-RPC messages. A nil reply means the
// message was a notification.
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage
}

// Listener observes bind and unbind transitions.
type Listener interface {
	SessionBound(superseded bool)
	SessionUnbound()
}

// Manager holds the current transport slot. Binding while Active replaces
// the slot and closes the superseded transport; Closed is terminal.
type Manager struct {
	handler   MessageHandler
	logger    *common.Logger
	listeners []Listener

	mu      sync.Mutex
	state   State
	current Transport
}

// Option configures a Manager.
type Option func(*Manager)

// WithListener registers a Listener.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, l) }
}

// NewManager creates an idle manager delivering messages to handler.
func NewManager(handler MessageHandler, logger *common.Logger, opts ...Option) *Manager {
	m := &Manager{
		handler: handler,
		logger:  logger,
		state:   Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind makes t the current transport.
func (m *Manager) Bind(t Transport) error {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	prev := m.current
	m.current = t
	m.state = Active
	m.mu.Unlock()

	superseded := prev != nil && prev != t
	if superseded {
		m.logger.Info().Str("previous", prev.ID()).Str("transport", t.ID()).Msg("session superseded")
		if err := prev.Close(); err != nil {
			m.logger.Warn().Str("transport", prev.ID()).Str("error", err.Error()).Msg("failed to close superseded transport")
		}
	} else {
		m.logger.Info().Str("transport", t.ID()).Msg("session bound")
	}

	for _, l := range m.listeners {
		l.SessionBound(superseded)
	}
	return nil
}

// Unbind clears the slot if t still holds it and reports whether it did.
// A superseded transport unbinding itself is a no-op.
func (m *Manager) Unbind(t Transport) bool {
	m.mu.Lock()
	if m.current == nil || m.current != t {
		m.mu.Unlock()
		return false
	}
	m.current = nil
	if m.state == Active {
		m.state = Idle
	}
	m.mu.Unlock()

	m.logger.Info().Str("transport", t.ID()).Msg("session unbound")
	for _, l := range m.listeners {
		l.SessionUnbound()
	}
	return true
}

// Current returns the bound transport, or nil.
func (m *Manager) Current() Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle processes raw and writes any reply back on t, the transport that
// delivered it.
func (m *Manager) Handle(ctx context.Context, t Transport, raw json.RawMessage) error {
	reply := m.handler.HandleMessage(ctx, raw)
	if reply == nil {
		return nil
	}
	if err := t.Send(ctx, reply); err != nil {
		m.logger.Warn().Str("transport", t.ID()).Str("error", err.Error()).Msg("failed to send reply")
		return err
	}
	return nil
}

// Deliver routes a message that arrived outside the transport (the SSE
// message endpoint) to the current transport. It returns once the target
// is resolved; the message is processed in the background.
func (m *Manager) Deliver(ctx context.Context, raw json.RawMessage) error {
	t := m.Current()
	if t == nil {
		return ErrNoActiveSession
	}
	ctx = context.WithoutCancel(ctx)
	go m.Handle(ctx, t, raw)
	return nil
}

// Shutdown closes the bound transport and moves to Closed. It returns to
// the caller, which decides how the process exits.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.state == Closed {
		m.mu.Unlock()
		return nil
	}
	prev := m.current
	m.current = nil
	m.state = Closed
	m.mu.Unlock()

	if prev == nil {
		m.logger.Info().Msg("session manager closed")
		return nil
	}

	m.logger.Info().Str("transport", prev.ID()).Msg("closing session")
	for _, l := range m.listeners {
		l.SessionUnbound()
	}
	if err := prev.Close(); err != nil {
		return fmt.Errorf("failed to close transport %s: %w", prev.ID(), err)
	}
	return nil
}

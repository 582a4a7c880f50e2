package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bobmcallan/openapi-mcp-bridge/internal/handlers"
	"github.com/bobmcallan/openapi-mcp-bridge/internal/session"
)

const (
	ssePath      = "/sse"
	messagesPath = "/messages"

	keepAliveInterval = 30 * time.Second
)

// sseTransport writes replies onto one open GET /sse response.
type sseTransport struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	finished bool

	done      chan struct{}
	closeOnce sync.Once
}

func newSSETransport(w http.ResponseWriter, flusher http.Flusher) *sseTransport {
	return &sseTransport{
		id:      uuid.New().String(),
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
}

func (t *sseTransport) ID() string { return t.id }

// Send writes msg as an "message" event.
func (t *sseTransport) Send(_ context.Context, msg mcp.JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return io.ErrClosedPipe
	}
	return t.writeEvent("message", data)
}

// Close ends the stream. It is safe to call more than once.
func (t *sseTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// writeEvent must be called with mu held.
func (t *sseTransport) writeEvent(event string, data []byte) error {
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *sseTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return io.ErrClosedPipe
	}
	if _, err := io.WriteString(t.w, ": ping\n\n"); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// finish stops all writes. The handler calls it before returning so no
// reply touches the ResponseWriter afterwards.
func (t *sseTransport) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

// handleSSE serves GET /sse. The new stream becomes the current session,
// superseding any earlier one, and stays open until the client leaves or
// the session manager closes it.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	// Hold the write lock until the endpoint event is out so a reply routed
	// here right after Bind cannot precede it.
	t := newSSETransport(w, flusher)
	t.mu.Lock()
	if err := s.app.Sessions.Bind(t); err != nil {
		t.finished = true
		t.mu.Unlock()
		s.logger.Warn().Err(err).Str("transport", t.id).Msg("SSE stream rejected")
		handlers.WriteError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	w.WriteHeader(http.StatusOK)
	err := t.writeEvent("endpoint", []byte(messagesPath))
	t.mu.Unlock()

	defer func() {
		t.finish()
		s.app.Sessions.Unbind(t)
		s.logger.Info().Str("transport", t.id).Msg("SSE stream closed")
	}()

	if err != nil {
		s.logger.Warn().Err(err).Str("transport", t.id).Msg("failed to write endpoint event")
		return
	}
	s.logger.Info().
		Str("transport", t.id).
		Str("remote", r.RemoteAddr).
		Msg("SSE stream opened")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.ping(); err != nil {
				return
			}
		}
	}
}

// handleMessages serves POST /messages, the side channel for client
// requests. Replies go out on the current SSE stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodPost) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		handlers.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		handlers.WriteError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	if err := s.app.Sessions.Deliver(r.Context(), body); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			handlers.WriteError(w, http.StatusNotFound, "no active session")
			return
		}
		s.logger.Error().Err(err).Msg("failed to deliver message")
		handlers.WriteError(w, http.StatusInternalServerError, "failed to deliver message")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Package channel implements PluginChannel: a bidirectional JSON-frame
// socket per session — request dispatch, server-pushed events, gating by
// the process-wide tavern mode switch, and replacement semantics when a
// new socket binds to an already-bound session (spec §4.13).
//
// Modeled as a small channel-owning actor the way spec §9 prescribes for
// "socket-keyed mutable map updated from multiple handlers": external
// callers go through Bind/Unbind/Send, which also centralize the
// "close old socket first" rule, the same shape as the teacher's
// events.ConnectionManager.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taleweave/memoryd/pkg/apierr"
)

// Close codes used on PluginChannel sockets (spec §6.2).
const (
	StatusReplaced = websocket.StatusCode(1012) // "replaced": a newer socket took over this session
	StatusPolicy   = websocket.StatusPolicyViolation
	StatusNormal   = websocket.StatusNormalClosure
)

// ClientRequest is a Client → Server frame (spec §4.13).
type ClientRequest struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// ServerResponse is a Server → Client response frame, echoed on the
// originating socket with the same request_id (spec §4.13).
type ServerResponse struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// Error is the error envelope carried in a failed ServerResponse.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event names for unsolicited Server → Client pushes (spec §4.13).
const (
	EventConnectionEstablished       = "connection_established"
	EventGraphUpdated                = "graph_updated"
	EventInitializationComplete      = "initialization_complete"
	EventRequestCharacterSubmission  = "request_character_submission"
	EventAutoReinitComplete          = "auto_reinitialization_complete"
	EventAutoReinitFailed            = "auto_reinitialization_failed"
)

// Dispatcher handles one client request and returns the data to echo back,
// or an error. Implemented by the owning sessionmanager/api layer.
type Dispatcher func(ctx context.Context, sessionID, action string, payload json.RawMessage) (any, error)

// binding pairs a session id with the socket currently bound to it.
type binding struct {
	sessionID string
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
}

// Channel is PluginChannel: the process-wide session_id -> socket binding
// table plus the read/dispatch loop for each connection.
type Channel struct {
	mu           sync.RWMutex
	bindings     map[string]*binding
	writeTimeout time.Duration
	onDisconnect func(sessionID string)
}

// New builds an empty Channel. writeTimeout bounds every outbound socket
// write (spec §5 "Socket writes have a bounded send deadline").
func New(writeTimeout time.Duration) *Channel {
	return &Channel{
		bindings:     make(map[string]*binding),
		writeTimeout: writeTimeout,
	}
}

// SetDisconnectHandler installs a callback invoked when a session's
// genuinely current socket (not one already superseded) disconnects.
// sessionmanager uses this to clear a session out of the pending
// coordinated-reinit set on socket loss (spec §5 "Coordinated reinit
// liveness").
func (c *Channel) SetDisconnectHandler(fn func(sessionID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// IsBound reports whether sessionID currently has a socket bound.
func (c *Channel) IsBound(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bindings[sessionID]
	return ok
}

// HandleConnection runs the lifecycle of one accepted socket for sessionID:
// binds it (replacing and then closing any prior socket, see bind), sends
// connection_established, then reads frames until the connection closes,
// dispatching each to handle. Blocks until the socket closes; always
// unbinds on return.
func (c *Channel) HandleConnection(parentCtx context.Context, sessionID string, conn *websocket.Conn, handle Dispatcher) {
	ctx, cancel := context.WithCancel(parentCtx)
	b := &binding{sessionID: sessionID, conn: conn, ctx: ctx, cancel: cancel}

	c.bind(sessionID, b)
	defer c.unbind(sessionID, b)

	c.sendEvent(b, EventConnectionEstablished, map[string]string{"session_id": sessionID})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req ClientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("plugin channel: invalid frame", "session_id", sessionID, "error", err)
			continue
		}

		c.dispatch(ctx, b, req, handle)
	}
}

// dispatch runs one request through handle and writes the response frame
// back on the same socket. Dispatch errors are logged and reduced to error
// frames on the same request_id; they never tear down the socket (spec
// §4.14 PluginChannel failure model).
func (c *Channel) dispatch(ctx context.Context, b *binding, req ClientRequest, handle Dispatcher) {
	data, err := handle(ctx, b.sessionID, req.Action, req.Payload)
	resp := ServerResponse{Type: "response", Action: req.Action, RequestID: req.RequestID}
	if err != nil {
		resp.OK = false
		resp.Error = toFrameError(err)
	} else {
		resp.OK = true
		resp.Data = data
	}

	if sendErr := c.sendJSON(b, resp); sendErr != nil {
		slog.Warn("plugin channel: failed to send response", "session_id", b.sessionID, "action", req.Action, "error", sendErr)
	}
}

// toFrameError adapts an error to the socket error envelope, carrying the
// apierr.Kind through as Code when the dispatcher returned one.
func toFrameError(err error) *Error {
	var aerr *apierr.Error
	if errors.As(err, &aerr) {
		return &Error{Code: string(aerr.Kind), Message: aerr.Message}
	}
	return &Error{Code: string(apierr.KindInternal), Message: "internal server error"}
}

// bind records sessionID -> b and then closes any previously bound socket
// with StatusReplaced, outside the lock. The new binding is stored before
// the prior socket is closed, so the prior socket's unbind finds it already
// superseded and neither removes b nor fires the disconnect handler.
func (c *Channel) bind(sessionID string, b *binding) {
	c.mu.Lock()
	prior := c.bindings[sessionID]
	c.bindings[sessionID] = b
	c.mu.Unlock()

	if prior != nil {
		_ = prior.conn.Close(StatusReplaced, "replaced by a newer connection")
		prior.cancel()
	}
}

// unbind removes the binding for sessionID only if the current entry is
// still b — protects against a late-close of a socket that was already
// superseded (spec §4.13 "On disconnect...").
func (c *Channel) unbind(sessionID string, b *binding) {
	c.mu.Lock()
	current := c.bindings[sessionID] == b
	if current {
		delete(c.bindings, sessionID)
	}
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	b.cancel()
	_ = b.conn.Close(StatusNormal, "")

	if current && onDisconnect != nil {
		onDisconnect(sessionID)
	}
}

// CloseAll closes every currently bound socket with StatusNormal and clears
// the binding table, used by full_reset/quick_reset (spec §4.12: "closes all
// sockets, drops all maps").
func (c *Channel) CloseAll() int {
	c.mu.Lock()
	bindings := c.bindings
	c.bindings = make(map[string]*binding)
	c.mu.Unlock()

	for _, b := range bindings {
		b.cancel()
		_ = b.conn.Close(StatusNormal, "reset")
	}
	return len(bindings)
}

// RejectPolicy closes an already-accepted conn with StatusPolicy, used
// when tavern_mode_active is false (spec §4.13 Gate).
func RejectPolicy(conn *websocket.Conn) {
	_ = conn.Close(StatusPolicy, "tavern mode is disabled")
}

// Send pushes an unsolicited event to the socket bound to sessionID, if
// any. Returns false if no socket is currently bound (not an error — the
// caller continues regardless, per spec §4.14 "Socket send failures drop
// the binding but do not fail the originating HTTP request").
func (c *Channel) Send(sessionID, event string, data any) bool {
	c.mu.RLock()
	b := c.bindings[sessionID]
	c.mu.RUnlock()
	if b == nil {
		return false
	}

	frame := map[string]any{"type": event}
	if data != nil {
		payload, err := json.Marshal(data)
		if err == nil {
			var m map[string]any
			if json.Unmarshal(payload, &m) == nil {
				for k, v := range m {
					frame[k] = v
				}
			}
		}
	}

	if err := c.sendJSON(b, frame); err != nil {
		slog.Warn("plugin channel: failed to push event", "session_id", sessionID, "event", event, "error", err)
		return false
	}
	return true
}

func (c *Channel) sendEvent(b *binding, event string, data any) {
	frame := map[string]any{"type": event}
	if m, ok := data.(map[string]string); ok {
		for k, v := range m {
			frame[k] = v
		}
	}
	if err := c.sendJSON(b, frame); err != nil {
		slog.Warn("plugin channel: failed to send event", "session_id", b.sessionID, "event", event, "error", err)
	}
}

func (c *Channel) sendJSON(b *binding, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("channel: marshal frame: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(b.ctx, c.writeTimeout)
	defer cancel()
	return b.conn.Write(writeCtx, websocket.MessageText, data)
}

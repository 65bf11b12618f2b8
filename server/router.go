package server

import (
	"encoding/json"

	"github.com/decred/slog"
)

// HandlerFunc consumes one inbound event for one connection. Handlers
// must not block; long work is handed off internally.
type HandlerFunc func(c *Conn, data json.RawMessage)

// Router dispatches inbound `{event,data}` envelopes to handlers. The
// table is filled at construction and never mutated afterwards, so
// dispatch needs no locking.
type Router struct {
	handlers map[string]HandlerFunc
	log      slog.Logger
}

func newRouter(log slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Handle registers a handler for an event name. Construction time only.
func (r *Router) Handle(event string, fn HandlerFunc) {
	r.handlers[event] = fn
}

// Dispatch parses raw as an envelope and invokes the matching handler
// synchronously. Malformed input earns the sender a single error event;
// unknown event names are ignored so future client events never kill a
// session.
func (r *Router) Dispatch(c *Conn, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	fn, ok := r.handlers[msg.Event]
	if !ok {
		r.log.Debugf("no handler for event %q", msg.Event)
		return
	}
	fn(c, msg.Data)
}

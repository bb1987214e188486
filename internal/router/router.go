// Package router implements the transport's "global callback router" (§9):
// a single event channel is pumped once per process, and each
// ConnStatusChanged event is dispatched to exactly one registered handler by
// matching the event's listen socket first, then its connection.
package router

import "lobbygame/internal/transport"

// Router owns the listener/conn -> handler bindings for one process. A
// single Router is shared across however many components are active at
// once — e.g. a migrating client runs its LobbyClient reconnect and a fresh
// GameHost listener side by side, both registered on the same Router.
type Router struct {
	listeners map[*transport.Listener]func(transport.Event)
	conns     map[*transport.Conn]func(transport.Event)
}

// New returns an empty router.
func New() *Router {
	return &Router{
		listeners: make(map[*transport.Listener]func(transport.Event)),
		conns:     make(map[*transport.Conn]func(transport.Event)),
	}
}

// BindListener routes every event carrying this listener (including the
// Connecting events for inbound connections arriving on it) to handler.
func (r *Router) BindListener(l *transport.Listener, handler func(transport.Event)) {
	r.listeners[l] = handler
}

// UnbindListener stops routing events for l.
func (r *Router) UnbindListener(l *transport.Listener) {
	delete(r.listeners, l)
}

// BindConn routes events for a specific connection to handler. Used once a
// connection has been accepted or dialed and the owning component wants its
// own subsequent state-change events (Connected, ClosedByPeer, ...).
func (r *Router) BindConn(c *transport.Conn, handler func(transport.Event)) {
	r.conns[c] = handler
}

// UnbindConn stops routing events for c — call once the owner has finished
// handling its closure so the map doesn't grow unbounded.
func (r *Router) UnbindConn(c *transport.Conn) {
	delete(r.conns, c)
}

// Dispatch delivers each event to the first matching handler: listener
// match wins over connection match, mirroring §9's router rule.
func (r *Router) Dispatch(events []transport.Event) {
	for _, ev := range events {
		if ev.Listener != nil {
			if h, ok := r.listeners[ev.Listener]; ok {
				h(ev)
				continue
			}
		}
		if h, ok := r.conns[ev.Conn]; ok {
			h(ev)
		}
	}
}

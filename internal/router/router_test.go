package router

import (
	"testing"

	"lobbygame/internal/transport"
)

func TestDispatchPrefersListenerOverConn(t *testing.T) {
	r := New()
	l := &transport.Listener{}
	c := &transport.Conn{}

	var gotListener, gotConn bool
	r.BindListener(l, func(transport.Event) { gotListener = true })
	r.BindConn(c, func(transport.Event) { gotConn = true })

	r.Dispatch([]transport.Event{{Conn: c, Listener: l}})

	if !gotListener {
		t.Error("expected listener handler to fire")
	}
	if gotConn {
		t.Error("conn handler should not fire when listener matches")
	}
}

func TestDispatchFallsBackToConn(t *testing.T) {
	r := New()
	c := &transport.Conn{}
	var got transport.Event
	r.BindConn(c, func(ev transport.Event) { got = ev })

	want := transport.Event{Conn: c, New: transport.StateConnected}
	r.Dispatch([]transport.Event{want})

	if got.Conn != c || got.New != transport.StateConnected {
		t.Errorf("got %+v", got)
	}
}

func TestUnbindStopsDelivery(t *testing.T) {
	r := New()
	c := &transport.Conn{}
	calls := 0
	r.BindConn(c, func(transport.Event) { calls++ })
	r.Dispatch([]transport.Event{{Conn: c}})
	r.UnbindConn(c)
	r.Dispatch([]transport.Event{{Conn: c}})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatchIgnoresUnboundEvents(t *testing.T) {
	r := New()
	// Should not panic even with nothing registered.
	r.Dispatch([]transport.Event{{Conn: &transport.Conn{}, Listener: &transport.Listener{}}})
}

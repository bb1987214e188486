// Package gamehost implements the GameHost component (§4.4): authoritative
// simulation, seat allocator, and snapshot broadcaster.
package gamehost

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"

	"lobbygame/internal/game"
	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

const snapPeriod = 1.0 / 20.0 // 20 Hz broadcast cadence

// Host is the GameHost component.
type Host struct {
	rt       *transport.Runtime
	rtr      *router.Router
	listener *transport.Listener

	sim        *game.Sim
	maxPlayers uint8
	worldSeed  uint32
	gameStarted bool

	seatOf map[*transport.Conn]uint8
	connOf map[uint8]*transport.Conn

	hostMoveX, hostMoveY int8
	snapAccum            float32
	bytesBroadcast       uint64
}

// New creates a game host for maxPlayers seats (seat 0 is always the host
// itself and is never bound to a connection).
func New(rt *transport.Runtime, rtr *router.Router, maxPlayers uint8, worldSeed uint32) *Host {
	return &Host{
		rt:         rt,
		rtr:        rtr,
		sim:        game.NewSim(maxPlayers),
		maxPlayers: maxPlayers,
		worldSeed:  worldSeed,
		seatOf:     make(map[*transport.Conn]uint8),
		connOf:     make(map[uint8]*transport.Conn),
	}
}

// Listen opens the host's listen socket. port 0 requests an OS-assigned
// ephemeral port, as migration's fresh-host attempt does (§4.6).
func (h *Host) Listen(port int, tlsConf *tls.Config) error {
	l, err := h.rt.Listen(port, tlsConf)
	if err != nil {
		return fmt.Errorf("gamehost: %w", err)
	}
	h.listener = l
	h.rtr.BindListener(l, h.handleListenerEvent)
	log.Printf("[host] listening on %s", l.Addr())
	return nil
}

// Port returns the bound port.
func (h *Host) Port() int { return h.listener.Port() }

// Close tears down the listener and all client connections.
func (h *Host) Close() {
	for c := range h.seatOf {
		h.rt.Close(c, "host shutting down")
	}
	if h.listener != nil {
		h.listener.Close()
	}
}

func (h *Host) handleListenerEvent(ev transport.Event) {
	if len(h.seatOf) >= int(h.maxPlayers)-1 {
		h.rt.Close(ev.Conn, "Server full")
		return
	}
	h.rt.Accept(context.Background(), ev.Conn)
	h.rtr.BindConn(ev.Conn, h.handleConnEvent)
}

func (h *Host) handleConnEvent(ev transport.Event) {
	switch ev.New {
	case transport.StateConnected:
		h.onConnected(ev.Conn)
	case transport.StateClosedByPeer, transport.StateProblemDetectedLocally:
		h.onClosed(ev.Conn)
	}
}

func (h *Host) onConnected(c *transport.Conn) {
	seat, ok := h.pickFreeClientSlot()
	if !ok {
		h.rt.Close(c, "No slot")
		return
	}
	h.seatOf[c] = seat
	h.connOf[seat] = c

	if err := transport.Send(c, wire.EncodeWelcome(wire.Welcome{YourID: seat, WorldSeed: h.worldSeed}), transport.Reliable); err != nil {
		log.Printf("[host] send welcome to %s: %v", c.LogID, err)
	}
	if err := transport.Send(c, wire.EncodeSnap(h.sim.Snapshot()), transport.Reliable); err != nil {
		log.Printf("[host] send initial snap to %s: %v", c.LogID, err)
	}
	if h.gameStarted {
		if err := transport.Send(c, wire.EncodeStartGame(wire.StartGame{WorldSeed: h.worldSeed}), transport.Reliable); err != nil {
			log.Printf("[host] send start game to %s: %v", c.LogID, err)
		}
	}
}

func (h *Host) onClosed(c *transport.Conn) {
	seat, ok := h.seatOf[c]
	if !ok {
		return
	}
	h.sim.SetInput(seat, 0, 0)
	delete(h.seatOf, c)
	delete(h.connOf, seat)
	h.rtr.UnbindConn(c)
}

// pickFreeClientSlot returns the lowest seat index in [1, maxPlayers-1] not
// currently mapped by any conn→seat entry.
func (h *Host) pickFreeClientSlot() (uint8, bool) {
	for seat := uint8(1); seat < h.maxPlayers; seat++ {
		if _, taken := h.connOf[seat]; !taken {
			return seat, true
		}
	}
	return 0, false
}

// SetHostInput records the host's own (seat 0) movement for the next step.
func (h *Host) SetHostInput(moveX, moveY int8) {
	h.hostMoveX, h.hostMoveY = wire.ClampAxis(moveX), wire.ClampAxis(moveY)
}

// StartGame idempotently flips gameStarted and broadcasts StartGame
// reliably to every currently connected client (§4.4).
func (h *Host) StartGame() {
	if h.gameStarted {
		return
	}
	h.gameStarted = true
	msg := wire.EncodeStartGame(wire.StartGame{WorldSeed: h.worldSeed})
	for c := range h.seatOf {
		if err := transport.Send(c, msg, transport.Reliable); err != nil {
			log.Printf("[host] broadcast start game to %s: %v", c.LogID, err)
		}
	}
}

// RestoreState overwrites authoritative seats and resets the tick counter,
// for a host that just took over via migration (§4.4).
func (h *Host) RestoreState(players [wire.MaxGamePlayers]wire.PlayerState, serverTick uint32) {
	h.sim.RestoreState(players, serverTick)
}

// Tick polls every client connection's inbound messages, steps the
// simulation by dt, and broadcasts a Snap at the 20 Hz cadence. The caller
// pumps and dispatches transport events separately (§5).
func (h *Host) Tick(dt float32) {
	for c, seat := range h.seatOf {
		for _, msg := range transport.Poll(c) {
			h.handleMessage(c, seat, msg)
		}
	}

	h.sim.SetInput(0, h.hostMoveX, h.hostMoveY)
	h.sim.Step(dt)

	h.snapAccum += dt
	for h.snapAccum >= snapPeriod {
		h.snapAccum -= snapPeriod
		h.broadcastSnap()
	}
}

func (h *Host) handleMessage(c *transport.Conn, seat uint8, msg []byte) {
	typ, err := wire.PeekType(msg)
	if err != nil {
		return
	}
	switch typ {
	case wire.GameTypeHello:
		// no-op
	case wire.GameTypeInput:
		if len(msg) != wire.InputSize {
			return
		}
		in, err := wire.DecodeInput(msg)
		if err != nil {
			return
		}
		// PlayerID on the wire is ignored; seat comes from the conn→seat map.
		h.sim.SetInput(seat, in.MoveX, in.MoveY)
	}
}

func (h *Host) broadcastSnap() {
	msg := wire.EncodeSnap(h.sim.Snapshot())
	for c := range h.seatOf {
		if err := transport.Send(c, msg, transport.Unreliable); err != nil {
			log.Printf("[host] broadcast snap to %s: %v", c.LogID, err)
			continue
		}
		h.bytesBroadcast += uint64(len(msg))
	}
}

// ClientCount returns the number of currently connected client seats, for
// periodic metrics logging.
func (h *Host) ClientCount() int { return len(h.seatOf) }

// BytesBroadcast returns the cumulative bytes sent via snapshot broadcast,
// for periodic metrics logging.
func (h *Host) BytesBroadcast() uint64 { return h.bytesBroadcast }

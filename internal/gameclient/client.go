// Package gameclient implements the GameClient component (§4.5): a single
// connection to a GameHost, tracking assigned seat, the latest snapshot,
// and game-start/host-loss state.
package gameclient

import (
	"context"
	"fmt"
	"log"

	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

// State is the client's own connection/game lifecycle stage.
type State int

const (
	Disconnected State = iota
	Connected
	InGame
	HostLost
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case InGame:
		return "InGame"
	case HostLost:
		return "HostLost"
	default:
		return "Unknown"
	}
}

// Client is the GameClient component.
type Client struct {
	rt  *transport.Runtime
	rtr *router.Router

	conn  *transport.Conn
	state State

	myID      uint8
	worldSeed uint32

	gameStarted bool
	clientTick  uint32

	snap    wire.Snap
	hasSnap bool

	hostDisconnected bool
}

// New creates a game client. Call Connect to dial a host.
func New(rt *transport.Runtime, rtr *router.Router) *Client {
	return &Client{rt: rt, rtr: rtr, myID: wire.UnassignedSeat}
}

// Connect dials the game host at addr and sends a game Hello reliably.
func (c *Client) Connect(ctx context.Context, addr string) error {
	conn, err := c.rt.Connect(ctx, addr, transport.InsecureClientTLSConfig())
	if err != nil {
		return fmt.Errorf("gameclient: %w", err)
	}
	c.conn = conn
	c.state = Connected // set optimistically; Welcome assigns the real seat
	c.rtr.BindConn(conn, c.handleConnEvent)

	if err := transport.Send(conn, wire.EncodeGameHello(wire.GameHello{Protocol: wire.GameProtocol}), transport.Reliable); err != nil {
		log.Printf("[client] send hello: %v", err)
	}
	return nil
}

func (c *Client) handleConnEvent(ev transport.Event) {
	switch ev.New {
	case transport.StateClosedByPeer, transport.StateProblemDetectedLocally:
		c.hostDisconnected = true
		c.state = HostLost
		c.myID = wire.UnassignedSeat
		c.hasSnap = false
		c.rtr.UnbindConn(ev.Conn)
	}
}

// State returns the client's current lifecycle stage.
func (c *Client) State() State { return c.state }

// MyID returns the assigned seat, or wire.UnassignedSeat before Welcome.
func (c *Client) MyID() uint8 { return c.myID }

// WorldSeed returns the most recently received world seed.
func (c *Client) WorldSeed() uint32 { return c.worldSeed }

// PopHostDisconnected is a one-shot read of the host-loss flag, clearing it
// once consumed; a migration coordinator (§4.6) drives off this.
func (c *Client) PopHostDisconnected() bool {
	v := c.hostDisconnected
	c.hostDisconnected = false
	return v
}

// PopLatestSnap is a destructive read of the most recent Snap.
func (c *Client) PopLatestSnap() (wire.Snap, bool) {
	if !c.hasSnap {
		return wire.Snap{}, false
	}
	s := c.snap
	c.hasSnap = false
	return s, true
}

// Tick drains this connection's inbound messages. The caller pumps and
// dispatches transport events separately (§5).
func (c *Client) Tick() {
	if c.conn == nil {
		return
	}
	for _, msg := range transport.Poll(c.conn) {
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	typ, err := wire.PeekType(msg)
	if err != nil {
		return
	}
	switch typ {
	case wire.GameTypeWelcome:
		w, err := wire.DecodeWelcome(msg)
		if err != nil {
			return
		}
		c.myID = w.YourID
		c.worldSeed = w.WorldSeed
		c.state = Connected
	case wire.GameTypeSnap:
		s, err := wire.DecodeSnap(msg)
		if err != nil {
			return
		}
		c.snap = s
		c.hasSnap = true
	case wire.GameTypeStartGame:
		sg, err := wire.DecodeStartGame(msg)
		if err != nil {
			return
		}
		c.worldSeed = sg.WorldSeed
		c.gameStarted = true
		c.state = InGame
	}
}

// SendInput sends a movement command, clamped to {-1,0,+1} per axis, only
// when connected, the game has started, and a seat has been assigned
// (§4.5). No-op otherwise.
func (c *Client) SendInput(moveX, moveY int8) error {
	if c.state != InGame || !c.gameStarted || c.myID == wire.UnassignedSeat {
		return nil
	}
	c.clientTick++
	in := wire.Input{
		ClientTick: c.clientTick,
		PlayerID:   c.myID,
		MoveX:      wire.ClampAxis(moveX),
		MoveY:      wire.ClampAxis(moveY),
	}
	return transport.Send(c.conn, wire.EncodeInput(in), transport.Unreliable)
}

// Close disconnects from the host. Idempotent.
func (c *Client) Close() {
	if c.conn != nil {
		c.rt.Close(c.conn, "game client done")
	}
}

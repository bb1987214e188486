// Package lobbyclient implements the LobbyClient component (§4.3): a single
// connection to a LobbyServer used either to announce a hosted session
// (Announcer role) or to browse the directory (Browser role).
package lobbyclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"

	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

// Client is one LobbyServer connection in either role.
type Client struct {
	rt  *transport.Runtime
	rtr *router.Router

	role wire.LobbyRole
	conn *transport.Conn

	template   wire.Announce // gamePort/maxPlayers/worldSeed/name for Announce/Claim
	sessionKey uint64

	connected bool
	latest    []wire.SessionEntry
	hasList   bool
}

// New creates a lobby client. Call SetAnnounceInfo (Announcer role) before
// Connect if the role is Announcer.
func New(rt *transport.Runtime, rtr *router.Router) *Client {
	return &Client{rt: rt, rtr: rtr}
}

// SetSessionKey pins the session key instead of letting SetAnnounceInfo
// generate one — used by a migrating client to preserve its original key.
func (c *Client) SetSessionKey(key uint64) { c.sessionKey = key }

// SessionKey returns the current (possibly auto-generated) session key.
func (c *Client) SessionKey() uint64 { return c.sessionKey }

// SetAnnounceInfo stores the payload used for every subsequent Announce or
// Claim. If no session key has been set yet, one is generated here.
func (c *Client) SetAnnounceInfo(gamePort uint16, maxPlayers uint8, worldSeed uint32, name string) {
	if c.sessionKey == 0 {
		c.sessionKey = randomNonzeroKey()
	}
	c.template = wire.Announce{
		Protocol:   wire.LobbyProtocol,
		SessionKey: c.sessionKey,
		GamePort:   gamePort,
		MaxPlayers: maxPlayers,
		WorldSeed:  worldSeed,
		Name:       name,
	}
}

func randomNonzeroKey() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			continue
		}
		if k := binary.LittleEndian.Uint64(buf[:]); k != 0 {
			return k
		}
	}
}

// Connect dials the lobby server in the given role. For the Announcer role,
// the stored Announce payload is sent immediately once connected, per
// §4.3's "on Connected, immediately sends the stored Announce" contract.
//
// Migration takeover (§4.6) must NOT use this method with RoleAnnouncer:
// Announce unconditionally overwrites a session's owner, while reclaiming a
// Migrating session needs Claim's first-come-wins gate. Use ConnectForClaim
// instead.
func (c *Client) Connect(ctx context.Context, addr string, role wire.LobbyRole) error {
	return c.connect(ctx, addr, role, wire.LobbyTypeAnnounce)
}

// ConnectForClaim dials the lobby server as an Announcer and, once
// connected, sends a Claim instead of an Announce — the migration takeover
// path (§4.6 step 4). Mirrors the original LobbyClient's sendClaimNow(),
// which sends with the Claim type byte in place of Announce rather than
// relying on the connect-time auto-announce.
func (c *Client) ConnectForClaim(ctx context.Context, addr string) error {
	return c.connect(ctx, addr, wire.RoleAnnouncer, wire.LobbyTypeClaim)
}

func (c *Client) connect(ctx context.Context, addr string, role wire.LobbyRole, onConnectType uint8) error {
	conn, err := c.rt.Connect(ctx, addr, transport.InsecureClientTLSConfig())
	if err != nil {
		return fmt.Errorf("lobbyclient: %w", err)
	}
	c.role = role
	c.conn = conn
	c.connected = true
	c.rtr.BindConn(conn, c.handleConnEvent)

	if err := transport.Send(conn, wire.EncodeHello(wire.Hello{Protocol: wire.LobbyProtocol, Role: role}), transport.Reliable); err != nil {
		log.Printf("[lobbyclient] send hello: %v", err)
	}
	if role == wire.RoleAnnouncer && c.template.SessionKey != 0 {
		c.sendAnnounceLike(onConnectType)
	}
	return nil
}

func (c *Client) handleConnEvent(ev transport.Event) {
	switch ev.New {
	case transport.StateConnected:
		c.connected = true
	case transport.StateClosedByPeer, transport.StateProblemDetectedLocally:
		c.connected = false
		c.hasList = false
		c.latest = nil
		c.rtr.UnbindConn(ev.Conn)
	}
}

// Connected reports whether the lobby connection is currently up.
func (c *Client) Connected() bool { return c.connected }

// SendHeartbeat sends a liveness/player-count update (Announcer role,
// unreliable, ~1 Hz per §9). curPlayers is clamped to [1, 65535] here; the
// server re-clamps to [1, maxPlayers].
func (c *Client) SendHeartbeat(curPlayers uint16) error {
	if !c.connected {
		return nil
	}
	if curPlayers < 1 {
		curPlayers = 1
	}
	hb := wire.Heartbeat{SessionKey: c.sessionKey, CurPlayers: curPlayers}
	return transport.Send(c.conn, wire.EncodeHeartbeat(hb), transport.Unreliable)
}

// SendClaimNow reuses the prepared Announce payload but with type Claim,
// for migration takeover (§4.6).
func (c *Client) SendClaimNow() error {
	if !c.connected {
		return fmt.Errorf("lobbyclient: not connected")
	}
	return c.sendAnnounceLike(wire.LobbyTypeClaim)
}

// Reannounce resends the stored Announce payload (e.g. after MaxPlayers or
// GamePort changed).
func (c *Client) Reannounce() error {
	if !c.connected {
		return fmt.Errorf("lobbyclient: not connected")
	}
	return c.sendAnnounceLike(wire.LobbyTypeAnnounce)
}

func (c *Client) sendAnnounceLike(typ uint8) error {
	var payload []byte
	if typ == wire.LobbyTypeClaim {
		payload = wire.EncodeClaim(c.template)
	} else {
		payload = wire.EncodeAnnounce(c.template)
	}
	return transport.Send(c.conn, payload, transport.Reliable)
}

// SendListReq requests a fresh directory listing (Browser role, ~2 Hz).
func (c *Client) SendListReq() error {
	if !c.connected {
		return nil
	}
	return transport.Send(c.conn, wire.EncodeListReq(wire.ListReq{Protocol: wire.LobbyProtocol}), transport.Reliable)
}

// Tick drains this connection's inbound message queue, updating the
// latest-list cache on ListResp. The caller dispatches transport events
// separately (§5); Tick only handles this component's own message queue.
func (c *Client) Tick() {
	if c.conn == nil {
		return
	}
	for _, msg := range transport.Poll(c.conn) {
		typ, err := wire.PeekType(msg)
		if err != nil || typ != wire.LobbyTypeListResp {
			continue
		}
		entries, err := wire.DecodeListResp(msg)
		if err != nil {
			continue
		}
		c.latest = entries
		c.hasList = true
	}
}

// PopLatestList is a destructive read of the most recent ListResp: the
// second consecutive call returns ok=false until another response arrives.
func (c *Client) PopLatestList() (entries []wire.SessionEntry, ok bool) {
	if !c.hasList {
		return nil, false
	}
	entries = c.latest
	c.hasList = false
	c.latest = nil
	return entries, true
}

// Close disconnects from the lobby server. Idempotent.
func (c *Client) Close() {
	if c.conn != nil {
		c.rt.Close(c.conn, "lobby client done")
	}
}

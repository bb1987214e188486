// Package lobbyserver wires the pure lobby.Directory state machine to a
// transport.Runtime listen socket, decoding inbound lobby wire messages and
// encoding ListResp replies.
package lobbyserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"log/slog"

	"lobbygame/internal/lobby"
	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

// Server is the LobbyServer component (§4.2).
type Server struct {
	rt       *transport.Runtime
	rtr      *router.Router
	dir      *lobby.Directory
	listener *transport.Listener
	conns    map[*transport.Conn]struct{}
}

// New creates a lobby server bound to the given runtime/router. Call Listen
// before Tick.
func New(rt *transport.Runtime, rtr *router.Router) *Server {
	return &Server{
		rt:    rt,
		rtr:   rtr,
		dir:   lobby.NewDirectory(),
		conns: make(map[*transport.Conn]struct{}),
	}
}

// Listen opens the directory's listen socket on port.
func (s *Server) Listen(port int, tlsConf *tls.Config) error {
	l, err := s.rt.Listen(port, tlsConf)
	if err != nil {
		return fmt.Errorf("lobbyserver: %w", err)
	}
	s.listener = l
	s.rtr.BindListener(l, s.handleListenerEvent)
	log.Printf("[lobby] listening on %s", l.Addr())
	return nil
}

// Port returns the bound port (useful when Listen was called with 0).
func (s *Server) Port() int { return s.listener.Port() }

// Close tears down the listener and all open connections.
func (s *Server) Close() {
	for c := range s.conns {
		s.rt.Close(c, "lobby server shutting down")
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *Server) handleListenerEvent(ev transport.Event) {
	// The directory accepts every connection; authorisation happens per
	// message, not per connection (§4.2).
	s.rt.Accept(context.Background(), ev.Conn)
	s.rtr.BindConn(ev.Conn, s.handleConnEvent)
}

func (s *Server) handleConnEvent(ev transport.Event) {
	switch ev.New {
	case transport.StateConnected:
		s.conns[ev.Conn] = struct{}{}
	case transport.StateClosedByPeer, transport.StateProblemDetectedLocally:
		delete(s.conns, ev.Conn)
		s.dir.RemoveOwner(lobby.ConnHandle(ev.Conn))
		s.rtr.UnbindConn(ev.Conn)
	}
}

// Tick runs one cooperative iteration's lobby-server share of the work:
// pump this server's connection message queues, then run the directory's
// periodic sweep. The caller is responsible for pumping and dispatching
// transport events once per tick across all active components (§5).
func (s *Server) Tick() {
	for c := range s.conns {
		for _, msg := range transport.Poll(c) {
			s.handleMessage(c, msg)
		}
	}
	s.dir.Sweep()
}

func (s *Server) handleMessage(c *transport.Conn, msg []byte) {
	typ, err := wire.PeekType(msg)
	if err != nil {
		return
	}
	switch typ {
	case wire.LobbyTypeHello:
		// Informational only; role gating is an open question this build
		// does not implement (§9).
	case wire.LobbyTypeAnnounce, wire.LobbyTypeClaim:
		s.handleAnnounceOrClaim(c, msg)
	case wire.LobbyTypeHeartbeat:
		hb, err := wire.DecodeHeartbeat(msg)
		if err != nil {
			return
		}
		s.dir.Heartbeat(lobby.ConnHandle(c), hb.SessionKey, hb.CurPlayers)
	case wire.LobbyTypeListReq:
		req, err := wire.DecodeListReq(msg)
		if err != nil || req.Protocol != wire.LobbyProtocol {
			return
		}
		s.sendListResp(c)
	}
}

func (s *Server) handleAnnounceOrClaim(c *transport.Conn, msg []byte) {
	typ, a, err := wire.DecodeAnnounceLike(msg)
	if err != nil || a.Protocol != wire.LobbyProtocol {
		return
	}
	info := lobby.AnnounceInfo{
		SessionKey:    a.SessionKey,
		IPv4HostOrder: transport.ConnInfo(c).IPv4HostOrder,
		GamePort:      a.GamePort,
		MaxPlayers:    a.MaxPlayers,
		WorldSeed:     a.WorldSeed,
		Name:          a.Name,
	}
	switch typ {
	case wire.LobbyTypeAnnounce:
		s.dir.Announce(lobby.ConnHandle(c), info)
	case wire.LobbyTypeClaim:
		if s.dir.Claim(lobby.ConnHandle(c), info) {
			slog.Info("claim accepted", "key", info.SessionKey, "conn", c.LogID)
		}
	}
}

func (s *Server) sendListResp(c *transport.Conn) {
	s.dir.Sweep()
	sessions := s.dir.Entries(wire.MaxListRespEntries)
	entries := make([]wire.SessionEntry, len(sessions))
	for i, sess := range sessions {
		entries[i] = wire.SessionEntry{
			SessionKey:    sess.SessionKey,
			IPv4HostOrder: sess.IPv4HostOrder,
			GamePort:      sess.GamePort,
			CurPlayers:    sess.CurPlayers,
			MaxPlayers:    sess.MaxPlayers,
			WorldSeed:     sess.WorldSeed,
			State:         wire.SessionState(sess.State),
			Name:          sess.Name,
		}
	}
	if err := transport.Send(c, wire.EncodeListResp(entries), transport.Reliable); err != nil {
		log.Printf("[lobby] send list resp to %s: %v", c.LogID, err)
	}
}

// SessionCount exposes the tracked session count for the operator status
// endpoint and periodic metrics logging.
func (s *Server) SessionCount() int { return s.dir.Count() }

// Sessions exposes a snapshot of the sessions a ListResp would carry (IPv4
// sessions only, capped at MaxListRespEntries) for the operator status
// endpoint.
func (s *Server) Sessions() []lobby.Session {
	return s.dir.Entries(wire.MaxListRespEntries)
}

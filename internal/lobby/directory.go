// Package lobby implements the session directory state machine described by
// the LobbyServer: a map of live game sessions keyed by session key, with
// TTL-driven expiry and claim-based ownership handoff. The package never
// touches the network; it is driven by a caller that already knows which
// connection sent which message.
package lobby

import (
	"log/slog"
	"time"
)

// ActiveTTL is how long a session may go without a heartbeat/announce before
// the owner is presumed gone and the session enters Migrating.
const ActiveTTL = 12 * time.Second

// GraceTTL is how long a Migrating session waits for a Claim before it is
// deleted outright.
const GraceTTL = 25 * time.Second

// State is a session's position in the lifecycle described in the directory
// design: Open/Full while a host is actively heartbeating, Migrating while
// one is not and a claim is awaited.
type State int

const (
	StateOpen State = iota
	StateFull
	StateMigrating
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateFull:
		return "Full"
	case StateMigrating:
		return "Migrating"
	default:
		return "Unknown"
	}
}

// ConnHandle is the directory's view of "whatever the transport layer hands
// back for a connection" — an opaque, comparable capability. The directory
// never dereferences it; it only compares for equality to decide ownership.
type ConnHandle any

// Session is one advertised game-hosting attempt.
type Session struct {
	SessionKey    uint64
	OwnerConn     ConnHandle // nil while Migrating
	IPv4HostOrder uint32
	GamePort      uint16
	CurPlayers    uint8
	MaxPlayers    uint8
	WorldSeed     uint32
	Name          string
	State         State

	LastSeen       time.Time
	MigratingSince time.Time
}

// Directory is the authoritative in-memory set of known sessions. Not
// persisted across restarts — see the design notes on why that is
// intentional, not an oversight.
type Directory struct {
	sessions map[uint64]*Session
	byOwner  map[ConnHandle]uint64 // connection -> the session it currently owns
	now      func() time.Time
}

// NewDirectory returns an empty directory using the wall clock.
func NewDirectory() *Directory {
	return newDirectory(time.Now)
}

// newDirectory lets tests inject a deterministic clock for the TTL/grace
// scenarios in §8 of the design (exact millisecond boundaries).
func newDirectory(now func() time.Time) *Directory {
	return &Directory{
		sessions: make(map[uint64]*Session),
		byOwner:  make(map[ConnHandle]uint64),
		now:      now,
	}
}

// NewDirectoryWithClock exposes newDirectory to other packages' tests that
// need the same deterministic-clock seams (e.g. the lobby server's sweep
// loop).
func NewDirectoryWithClock(now func() time.Time) *Directory {
	return newDirectory(now)
}

// AnnounceInfo carries the fields an Announce/Claim payload supplies.
type AnnounceInfo struct {
	SessionKey    uint64
	IPv4HostOrder uint32
	GamePort      uint16
	MaxPlayers    uint8
	WorldSeed     uint32
	Name          string
}

// Announce creates a session on an unseen key, or updates an existing one.
// Per the authorisation rules this is always accepted — including against a
// Migrating session, which is "first-come" identical to Claim in that state.
// The caller supplies the connection's observed address; the directory never
// trusts anything the payload itself claims about origin.
func (d *Directory) Announce(conn ConnHandle, info AnnounceInfo) {
	if info.SessionKey == 0 {
		return
	}
	s, exists := d.sessions[info.SessionKey]
	if !exists {
		s = &Session{SessionKey: info.SessionKey, CurPlayers: 1}
		d.sessions[info.SessionKey] = s
		slog.Info("session opened", "key", info.SessionKey, "state", StateOpen, "cause", "announce")
	}
	wasMigrating := s.State == StateMigrating

	s.IPv4HostOrder = info.IPv4HostOrder
	s.GamePort = info.GamePort
	s.MaxPlayers = info.MaxPlayers
	s.WorldSeed = info.WorldSeed
	s.Name = info.Name
	s.OwnerConn = conn
	s.LastSeen = d.now()
	d.byOwner[conn] = info.SessionKey

	if wasMigrating {
		s.State = StateOpen
		s.MigratingSince = time.Time{}
		slog.Info("session claimed via announce", "key", info.SessionKey, "state", StateOpen, "cause", "announce")
	}
}

// Claim takes over a Migrating session for the connection that sent it.
// Returns whether the claim was accepted: only the first valid Claim for a
// Migrating session wins, and a session that is not Migrating never accepts
// one (§4.2 authorisation rules).
func (d *Directory) Claim(conn ConnHandle, info AnnounceInfo) bool {
	if info.SessionKey == 0 {
		return false
	}
	s, exists := d.sessions[info.SessionKey]
	if !exists || s.State != StateMigrating {
		return false
	}

	s.IPv4HostOrder = info.IPv4HostOrder
	s.GamePort = info.GamePort
	s.MaxPlayers = info.MaxPlayers
	s.WorldSeed = info.WorldSeed
	s.Name = info.Name
	s.OwnerConn = conn
	s.State = StateOpen
	s.MigratingSince = time.Time{}
	s.LastSeen = d.now()
	d.byOwner[conn] = info.SessionKey

	slog.Info("session claimed", "key", info.SessionKey, "state", StateOpen, "cause", "claim")
	return true
}

// Heartbeat records liveness and current player count from the owning
// connection. Accepted only from the current owner and only while not
// Migrating; anything else is silently dropped, per §7.
func (d *Directory) Heartbeat(conn ConnHandle, sessionKey uint64, curPlayers uint16) bool {
	if sessionKey == 0 {
		return false
	}
	s, exists := d.sessions[sessionKey]
	if !exists || s.State == StateMigrating || s.OwnerConn != conn {
		return false
	}

	clamped := curPlayers
	if clamped < 1 {
		clamped = 1
	}
	n := uint8(clamped)
	if clamped > uint16(s.MaxPlayers) {
		n = s.MaxPlayers
	}
	s.CurPlayers = n
	s.LastSeen = d.now()

	old := s.State
	if s.CurPlayers >= s.MaxPlayers {
		s.State = StateFull
	} else {
		s.State = StateOpen
	}
	if old != s.State {
		slog.Info("session state changed", "key", sessionKey, "old_state", old, "state", s.State, "cause", "heartbeat")
	}
	return true
}

// RemoveOwner is called when a lobby connection closes. If it owned a
// session, that session moves to Migrating; a connection with no owner
// mapping, or one no longer the session's owner, changes nothing.
func (d *Directory) RemoveOwner(conn ConnHandle) {
	key, ok := d.byOwner[conn]
	if !ok {
		return
	}
	delete(d.byOwner, conn)
	s, exists := d.sessions[key]
	if !exists || s.OwnerConn != conn {
		return
	}
	s.OwnerConn = nil
	s.State = StateMigrating
	s.MigratingSince = d.now()
	slog.Info("session state changed", "key", key, "old_state", "Open/Full", "state", StateMigrating, "cause", "disconnect")
}

// Sweep runs the TTL/grace cleanup: Open/Full sessions past ActiveTTL without
// a heartbeat enter Migrating; Migrating sessions past GraceTTL are deleted.
// Must run before every ListResp per §4.2.
func (d *Directory) Sweep() {
	now := d.now()
	for key, s := range d.sessions {
		switch s.State {
		case StateOpen, StateFull:
			if now.Sub(s.LastSeen) > ActiveTTL {
				if s.OwnerConn != nil {
					delete(d.byOwner, s.OwnerConn)
				}
				s.OwnerConn = nil
				s.State = StateMigrating
				s.MigratingSince = now
				slog.Info("session state changed", "key", key, "state", StateMigrating, "cause", "ttl")
			}
		case StateMigrating:
			if now.Sub(s.MigratingSince) > GraceTTL {
				delete(d.sessions, key)
				slog.Info("session deleted", "key", key, "cause", "grace")
			}
		}
	}
}

// Entries returns a snapshot of every session with an IPv4 address, capped
// at maxEntries. IPv6-only owners have IPv4HostOrder == 0 and are excluded,
// per §4.2 ("no IPv4 representable").
func (d *Directory) Entries(maxEntries int) []Session {
	out := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		if s.IPv4HostOrder == 0 {
			continue
		}
		out = append(out, *s)
		if len(out) >= maxEntries {
			break
		}
	}
	return out
}

// Count returns the number of tracked sessions, for operator status and
// metrics — it does not apply the IPv4 filter Entries does.
func (d *Directory) Count() int {
	return len(d.sessions)
}

// Get returns a session by key for tests and the status endpoint.
func (d *Directory) Get(sessionKey uint64) (Session, bool) {
	s, ok := d.sessions[sessionKey]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

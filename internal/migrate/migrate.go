// Package migrate implements the cross-component migration coordinator
// (§4.6): on host loss, a client races to take over hosting, falling back
// to rediscovering whoever won the race.
package migrate

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log"

	"lobbygame/internal/gamehost"
	"lobbygame/internal/lobbyclient"
	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

// Phase is the coordinator's own state, distinct from GameClient.State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStagger
	PhasePolling
	PhaseHosting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseStagger:
		return "Stagger"
	case PhasePolling:
		return "Polling"
	case PhaseHosting:
		return "Hosting"
	case PhaseSucceeded:
		return "Succeeded"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Preserved is the state snapshot carried across host loss, captured by
// the caller from its own last-known GameClient data before the
// disconnect (§4.6 step 2): the GameClient's snapshot cache is a
// destructive one-shot read owned by the render loop, so the coordinator
// never reads it directly.
type Preserved struct {
	Players    [wire.MaxGamePlayers]wire.PlayerState
	ServerTick uint32
	WorldSeed  uint32
	Name       string
	SessionKey uint64
	MaxPlayers uint8
}

const (
	pollInterval   = 0.5 // seconds
	maxPollAttempt = 10
	maxStaggerMS   = 1000
)

// Coordinator drives one migration attempt to completion.
type Coordinator struct {
	rt  *transport.Runtime
	rtr *router.Router

	lobbyAddr string
	preserved Preserved

	phase        Phase
	staggerLeft  float32
	pollLeft     float32
	pollAttempts int

	lc       *lobbyclient.Client
	Host     *gamehost.Host // valid once phase reaches Hosting/Succeeded via the host path
	FoundAddr string        // valid once phase reaches Succeeded via the reconnect path
}

// New creates a coordinator for one migration attempt against lobbyAddr.
func New(rt *transport.Runtime, rtr *router.Router, lobbyAddr string, preserved Preserved) *Coordinator {
	return &Coordinator{
		rt:          rt,
		rtr:         rtr,
		lobbyAddr:   lobbyAddr,
		preserved:   preserved,
		phase:       PhaseStagger,
		staggerLeft: randomStaggerSeconds(),
	}
}

func randomStaggerSeconds() float32 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return maxStaggerMS / 1000.0 / 2
	}
	ms := binary.LittleEndian.Uint16(b[:]) % (maxStaggerMS + 1)
	return float32(ms) / 1000.0
}

// Phase returns the coordinator's current stage.
func (m *Coordinator) Phase() Phase { return m.phase }

// LobbyClient exposes the coordinator's lobby connection so the caller can
// keep driving its heartbeat once migration succeeds via the host path
// (the coordinator itself stops ticking it after PhaseSucceeded).
func (m *Coordinator) LobbyClient() *lobbyclient.Client { return m.lc }

// Tick advances the coordinator by dt seconds. The caller pumps and
// dispatches transport events separately (§5); call this once per tick
// alongside every other active component's own Tick.
func (m *Coordinator) Tick(ctx context.Context, dt float32) {
	switch m.phase {
	case PhaseStagger:
		m.staggerLeft -= dt
		if m.staggerLeft <= 0 {
			m.attemptHost(ctx)
		}
	case PhasePolling:
		m.lc.Tick()
		m.pollLeft -= dt
		if m.pollLeft > 0 {
			return
		}
		m.pollAttempts++
		if entries, ok := m.lc.PopLatestList(); ok {
			for _, e := range entries {
				if e.SessionKey != m.preserved.SessionKey {
					continue
				}
				if e.State != wire.StateOpen && e.State != wire.StateFull {
					continue
				}
				m.FoundAddr = fmt.Sprintf("%s:%d", ipv4String(e.IPv4HostOrder), e.GamePort)
				m.phase = PhaseSucceeded
				m.lc.Close()
				return
			}
		}
		if m.pollAttempts >= maxPollAttempt {
			log.Printf("[migrate] migration failed: session %d not recovered after %d attempts", m.preserved.SessionKey, maxPollAttempt)
			m.phase = PhaseFailed
			if m.lc != nil {
				m.lc.Close()
			}
			return
		}
		m.pollLeft = pollInterval
		if err := m.lc.SendListReq(); err != nil {
			log.Printf("[migrate] send list req: %v", err)
		}
	case PhaseHosting:
		m.lc.Tick()
		if m.lc.Connected() {
			m.phase = PhaseSucceeded
		}
	}
}

func ipv4String(hostOrder uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(hostOrder>>24), byte(hostOrder>>16), byte(hostOrder>>8), byte(hostOrder))
}

// attemptHost implements §4.6 step 4: try to open a GameHost on an
// OS-assigned port; on failure, fall back to the poll-and-reconnect path
// (step 5).
func (m *Coordinator) attemptHost(ctx context.Context) {
	host := gamehost.New(m.rt, m.rtr, m.preserved.MaxPlayers, m.preserved.WorldSeed)
	tlsConf, _, err := transport.GenerateSelfSignedTLSConfig("")
	if err == nil {
		err = host.Listen(0, tlsConf)
	}
	if err != nil {
		log.Printf("[migrate] host attempt failed, falling back to reconnect polling: %v", err)
		m.beginPolling(ctx)
		return
	}

	host.RestoreState(m.preserved.Players, m.preserved.ServerTick)
	host.StartGame()
	m.Host = host

	lc := lobbyclient.New(m.rt, m.rtr)
	lc.SetSessionKey(m.preserved.SessionKey)
	lc.SetAnnounceInfo(uint16(host.Port()), m.preserved.MaxPlayers, m.preserved.WorldSeed, m.preserved.Name)
	if err := lc.ConnectForClaim(ctx, m.lobbyAddr); err != nil {
		log.Printf("[migrate] lobby reconnect for claim failed: %v", err)
		host.Close()
		m.beginPolling(ctx)
		return
	}
	m.lc = lc
	m.phase = PhaseHosting
}

func (m *Coordinator) beginPolling(ctx context.Context) {
	lc := lobbyclient.New(m.rt, m.rtr)
	if err := lc.Connect(ctx, m.lobbyAddr, wire.RoleBrowser); err != nil {
		log.Printf("[migrate] lobby reconnect for browse failed: %v", err)
		m.phase = PhaseFailed
		return
	}
	m.lc = lc
	m.phase = PhasePolling
	m.pollLeft = 0 // send the first ListReq immediately on the next tick
}

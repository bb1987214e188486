// Package game holds the authoritative simulation state shared by a
// GameHost's own run loop and the values it broadcasts in a Snap. It knows
// nothing about connections or the network; a seat here is just an index.
package game

import "lobbygame/internal/wire"

// Speed is the per-axis movement rate in world units per second.
const Speed float32 = 240

// World bounds a seat's position is clamped to after every step.
const (
	MaxX float32 = 1280
	MaxY float32 = 720
)

// spawnSpacing and spawnX/spawnY reproduce the fixed starting layout from
// the single-join scenario: seats fan out along y=200 starting at x=200.
const (
	spawnX       float32 = 200
	spawnY       float32 = 200
	spawnSpacing float32 = 90
)

// Sim is the authoritative per-seat simulation state for one game session.
type Sim struct {
	MaxPlayers uint8
	ServerTick uint32
	players    [wire.MaxGamePlayers]wire.PlayerState
	inputX     [wire.MaxGamePlayers]int8
	inputY     [wire.MaxGamePlayers]int8
}

// NewSim seeds maxPlayers seats at their spawn positions.
func NewSim(maxPlayers uint8) *Sim {
	s := &Sim{MaxPlayers: maxPlayers}
	for i := uint8(0); i < maxPlayers && int(i) < wire.MaxGamePlayers; i++ {
		s.players[i] = wire.PlayerState{
			ID: i,
			X:  spawnX + float32(i)*spawnSpacing,
			Y:  spawnY,
		}
	}
	return s
}

// SetInput records the last movement command for a seat, clamping each axis
// to {-1, 0, +1} the way the host clamps both client Input and its own seat
// 0 drive.
func (s *Sim) SetInput(seat uint8, moveX, moveY int8) {
	if int(seat) >= wire.MaxGamePlayers {
		return
	}
	s.inputX[seat] = wire.ClampAxis(moveX)
	s.inputY[seat] = wire.ClampAxis(moveY)
}

// Step advances every seat by dt seconds at Speed along its last input, then
// clamps into the world bounds and advances the tick counter.
func (s *Sim) Step(dt float32) {
	for i := uint8(0); i < s.MaxPlayers && int(i) < wire.MaxGamePlayers; i++ {
		p := &s.players[i]
		p.X += float32(s.inputX[i]) * Speed * dt
		p.Y += float32(s.inputY[i]) * Speed * dt
		p.X = clamp(p.X, 0, MaxX)
		p.Y = clamp(p.Y, 0, MaxY)
	}
	s.ServerTick++
}

func clamp(v, lo, hi float32) float32 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// Snapshot builds the wire Snap for the current tick.
func (s *Sim) Snapshot() wire.Snap {
	return wire.Snap{
		ServerTick: s.ServerTick,
		Count:      s.MaxPlayers,
		Players:    s.players,
	}
}

// RestoreState overwrites the authoritative seats from a preserved snapshot
// (used by a migrated host taking over mid-game) and resets the tick
// counter. Seat IDs in the snapshot are kept as-is.
func (s *Sim) RestoreState(players [wire.MaxGamePlayers]wire.PlayerState, serverTick uint32) {
	s.players = players
	s.ServerTick = serverTick
	s.inputX = [wire.MaxGamePlayers]int8{}
	s.inputY = [wire.MaxGamePlayers]int8{}
}

// Seat returns one seat's current authoritative state.
func (s *Sim) Seat(seat uint8) wire.PlayerState {
	if int(seat) >= wire.MaxGamePlayers {
		return wire.PlayerState{}
	}
	return s.players[seat]
}

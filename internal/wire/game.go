package wire

import (
	"encoding/binary"
	"math"
)

// GameProtocol is the only protocol version the game channel understands.
const GameProtocol uint32 = 1

// MaxGamePlayers is the fixed seat count carried in every Snap (§6).
const MaxGamePlayers = 3

// Game message type tags (first byte on the wire).
const (
	GameTypeHello     uint8 = 1
	GameTypeWelcome   uint8 = 2
	GameTypeInput     uint8 = 3
	GameTypeSnap      uint8 = 4
	GameTypeStartGame uint8 = 5
)

const (
	gameHelloSize   = 1 + 4
	welcomeSize     = 1 + 1 + 4
	inputSize       = 1 + 4 + 1 + 1 + 1
	playerStateSize = 1 + 4 + 4
	snapSize        = 1 + 4 + 1 + playerStateSize*MaxGamePlayers
	startGameSize   = 1 + 4
)

// UnassignedSeat is the sentinel yourId meaning "not yet assigned".
const UnassignedSeat uint8 = 255

type GameHello struct {
	Protocol uint32
}

func EncodeGameHello(h GameHello) []byte {
	b := make([]byte, gameHelloSize)
	b[0] = GameTypeHello
	binary.LittleEndian.PutUint32(b[1:5], h.Protocol)
	return b
}

func DecodeGameHello(b []byte) (GameHello, error) {
	if len(b) < gameHelloSize {
		return GameHello{}, ErrShort
	}
	if b[0] != GameTypeHello {
		return GameHello{}, ErrBadType
	}
	return GameHello{Protocol: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// Welcome assigns the connecting client its seat and the world seed.
type Welcome struct {
	YourID    uint8
	WorldSeed uint32
}

func EncodeWelcome(w Welcome) []byte {
	b := make([]byte, welcomeSize)
	b[0] = GameTypeWelcome
	b[1] = w.YourID
	binary.LittleEndian.PutUint32(b[2:6], w.WorldSeed)
	return b
}

func DecodeWelcome(b []byte) (Welcome, error) {
	if len(b) < welcomeSize {
		return Welcome{}, ErrShort
	}
	if b[0] != GameTypeWelcome {
		return Welcome{}, ErrBadType
	}
	return Welcome{
		YourID:    b[1],
		WorldSeed: binary.LittleEndian.Uint32(b[2:6]),
	}, nil
}

// Input is a single client's movement command for one tick.
// PlayerID is carried on the wire but MUST be ignored by the host: the
// connection→seat mapping is the sole source of truth (§4.4).
type Input struct {
	ClientTick uint32
	PlayerID   uint8
	MoveX      int8
	MoveY      int8
}

// InputSize is the exact size of an Input message; hosts drop any message
// whose length differs, per §4.4.
const InputSize = inputSize

func EncodeInput(in Input) []byte {
	b := make([]byte, inputSize)
	b[0] = GameTypeInput
	binary.LittleEndian.PutUint32(b[1:5], in.ClientTick)
	b[5] = in.PlayerID
	b[6] = byte(in.MoveX)
	b[7] = byte(in.MoveY)
	return b
}

func DecodeInput(b []byte) (Input, error) {
	if len(b) != inputSize {
		return Input{}, ErrShort
	}
	if b[0] != GameTypeInput {
		return Input{}, ErrBadType
	}
	return Input{
		ClientTick: binary.LittleEndian.Uint32(b[1:5]),
		PlayerID:   b[5],
		MoveX:      int8(b[6]),
		MoveY:      int8(b[7]),
	}, nil
}

// PlayerState is one seat's authoritative position.
type PlayerState struct {
	ID uint8
	X  float32
	Y  float32
}

// Snap is the authoritative state broadcast, always MaxGamePlayers slots
// wide; Count indicates how many are populated.
type Snap struct {
	ServerTick uint32
	Count      uint8
	Players    [MaxGamePlayers]PlayerState
}

func EncodeSnap(s Snap) []byte {
	b := make([]byte, snapSize)
	b[0] = GameTypeSnap
	binary.LittleEndian.PutUint32(b[1:5], s.ServerTick)
	b[5] = s.Count
	for i := 0; i < MaxGamePlayers; i++ {
		off := 6 + i*playerStateSize
		b[off] = s.Players[i].ID
		binary.LittleEndian.PutUint32(b[off+1:off+5], math.Float32bits(s.Players[i].X))
		binary.LittleEndian.PutUint32(b[off+5:off+9], math.Float32bits(s.Players[i].Y))
	}
	return b
}

func DecodeSnap(b []byte) (Snap, error) {
	if len(b) < snapSize {
		return Snap{}, ErrShort
	}
	if b[0] != GameTypeSnap {
		return Snap{}, ErrBadType
	}
	var s Snap
	s.ServerTick = binary.LittleEndian.Uint32(b[1:5])
	s.Count = b[5]
	for i := 0; i < MaxGamePlayers; i++ {
		off := 6 + i*playerStateSize
		s.Players[i] = PlayerState{
			ID: b[off],
			X:  math.Float32frombits(binary.LittleEndian.Uint32(b[off+1 : off+5])),
			Y:  math.Float32frombits(binary.LittleEndian.Uint32(b[off+5 : off+9])),
		}
	}
	return s, nil
}

type StartGame struct {
	WorldSeed uint32
}

func EncodeStartGame(s StartGame) []byte {
	b := make([]byte, startGameSize)
	b[0] = GameTypeStartGame
	binary.LittleEndian.PutUint32(b[1:5], s.WorldSeed)
	return b
}

func DecodeStartGame(b []byte) (StartGame, error) {
	if len(b) < startGameSize {
		return StartGame{}, ErrShort
	}
	if b[0] != GameTypeStartGame {
		return StartGame{}, ErrBadType
	}
	return StartGame{WorldSeed: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// ClampAxis restricts a movement axis value to {-1, 0, +1}, per §4.4/§4.5.
func ClampAxis(v int8) int8 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

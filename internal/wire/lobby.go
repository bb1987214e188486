// Package wire implements the fixed-size little-endian binary layouts used
// on the wire between lobby/game peers. Correctness is defined entirely by
// byte layout, not by any in-memory representation — see each type's
// Encode/Decode pair.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShort is returned when a buffer is too small to contain the message
// it claims to be.
var ErrShort = errors.New("wire: message too short")

// ErrBadType is returned when a buffer's leading type byte doesn't match
// what the caller asked to decode.
var ErrBadType = errors.New("wire: unexpected message type")

// LobbyProtocol is the only protocol version this build understands.
// Announce, Claim and ListReq messages presenting a different value are
// dropped, never negotiated; the connection itself stays open.
const LobbyProtocol uint32 = 1

// Lobby message type tags (first byte on the wire).
const (
	LobbyTypeHello     uint8 = 1
	LobbyTypeAnnounce  uint8 = 2
	LobbyTypeHeartbeat uint8 = 3
	LobbyTypeListReq   uint8 = 4
	LobbyTypeListResp  uint8 = 5
	LobbyTypeClaim     uint8 = 6
)

// LobbyRole distinguishes a Hello sender's intended use of the connection.
// Informational only (§9 open question): the server does not currently
// gate Announce/Heartbeat/Claim on it.
type LobbyRole uint8

const (
	RoleBrowser   LobbyRole = 0
	RoleAnnouncer LobbyRole = 1
)

const (
	helloSize     = 1 + 4 + 1
	announceSize  = 1 + 4 + 8 + 2 + 1 + 1 + 4 + nameLen
	heartbeatSize = 1 + 8 + 2 + 2
	listReqSize   = 1 + 4
	listRespHdr   = 1 + 2 + 2
	// SessionEntrySize is the fixed size of one directory entry.
	SessionEntrySize = 8 + 4 + 2 + 1 + 1 + 4 + 1 + 3 + nameLen
	nameLen          = 32
)

// Hello is informational; the server ignores it without decoding it.
type Hello struct {
	Protocol uint32
	Role     LobbyRole
}

func EncodeHello(h Hello) []byte {
	b := make([]byte, helloSize)
	b[0] = LobbyTypeHello
	binary.LittleEndian.PutUint32(b[1:5], h.Protocol)
	b[5] = uint8(h.Role)
	return b
}

func DecodeHello(b []byte) (Hello, error) {
	if len(b) < helloSize {
		return Hello{}, ErrShort
	}
	if b[0] != LobbyTypeHello {
		return Hello{}, ErrBadType
	}
	return Hello{
		Protocol: binary.LittleEndian.Uint32(b[1:5]),
		Role:     LobbyRole(b[5]),
	}, nil
}

// Announce is the create-or-update payload for both Announce and Claim
// verbs; only the leading type byte distinguishes the two (2 vs 6).
type Announce struct {
	Protocol   uint32
	SessionKey uint64
	GamePort   uint16
	MaxPlayers uint8
	WorldSeed  uint32
	Name       string // truncated/null-padded to 31 chars + NUL on encode
}

// encodeAnnounceLike encodes an Announce/Claim payload with the given
// leading type byte.
func encodeAnnounceLike(typ uint8, a Announce) []byte {
	b := make([]byte, announceSize)
	b[0] = typ
	binary.LittleEndian.PutUint32(b[1:5], a.Protocol)
	binary.LittleEndian.PutUint64(b[5:13], a.SessionKey)
	binary.LittleEndian.PutUint16(b[13:15], a.GamePort)
	b[15] = a.MaxPlayers
	b[16] = 0 // reserved0
	binary.LittleEndian.PutUint32(b[17:21], a.WorldSeed)
	putName(b[21:21+nameLen], a.Name)
	return b
}

func EncodeAnnounce(a Announce) []byte { return encodeAnnounceLike(LobbyTypeAnnounce, a) }
func EncodeClaim(a Announce) []byte    { return encodeAnnounceLike(LobbyTypeClaim, a) }

// DecodeAnnounceLike decodes either an Announce or a Claim payload,
// returning the leading type byte so the caller can dispatch semantics.
func DecodeAnnounceLike(b []byte) (uint8, Announce, error) {
	if len(b) < announceSize {
		return 0, Announce{}, ErrShort
	}
	typ := b[0]
	if typ != LobbyTypeAnnounce && typ != LobbyTypeClaim {
		return 0, Announce{}, ErrBadType
	}
	a := Announce{
		Protocol:   binary.LittleEndian.Uint32(b[1:5]),
		SessionKey: binary.LittleEndian.Uint64(b[5:13]),
		GamePort:   binary.LittleEndian.Uint16(b[13:15]),
		MaxPlayers: b[15],
		WorldSeed:  binary.LittleEndian.Uint32(b[17:21]),
		Name:       getName(b[21 : 21+nameLen]),
	}
	return typ, a, nil
}

// Heartbeat carries liveness and the reported player count.
type Heartbeat struct {
	SessionKey uint64
	CurPlayers uint16
}

func EncodeHeartbeat(h Heartbeat) []byte {
	b := make([]byte, heartbeatSize)
	b[0] = LobbyTypeHeartbeat
	binary.LittleEndian.PutUint64(b[1:9], h.SessionKey)
	binary.LittleEndian.PutUint16(b[9:11], h.CurPlayers)
	binary.LittleEndian.PutUint16(b[11:13], 0) // reserved0
	return b
}

func DecodeHeartbeat(b []byte) (Heartbeat, error) {
	if len(b) < heartbeatSize {
		return Heartbeat{}, ErrShort
	}
	if b[0] != LobbyTypeHeartbeat {
		return Heartbeat{}, ErrBadType
	}
	return Heartbeat{
		SessionKey: binary.LittleEndian.Uint64(b[1:9]),
		CurPlayers: binary.LittleEndian.Uint16(b[9:11]),
	}, nil
}

type ListReq struct {
	Protocol uint32
}

func EncodeListReq(r ListReq) []byte {
	b := make([]byte, listReqSize)
	b[0] = LobbyTypeListReq
	binary.LittleEndian.PutUint32(b[1:5], r.Protocol)
	return b
}

func DecodeListReq(b []byte) (ListReq, error) {
	if len(b) < listReqSize {
		return ListReq{}, ErrShort
	}
	if b[0] != LobbyTypeListReq {
		return ListReq{}, ErrBadType
	}
	return ListReq{Protocol: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// SessionState mirrors the LobbyServer's session state machine (§4.2).
type SessionState uint8

const (
	StateOpen SessionState = iota
	StateFull
	StateMigrating
)

// SessionEntry is one row of a ListResp, describing a single session.
type SessionEntry struct {
	SessionKey    uint64
	IPv4HostOrder uint32
	GamePort      uint16
	CurPlayers    uint8
	MaxPlayers    uint8
	WorldSeed     uint32
	State         SessionState
	Name          string
}

func encodeSessionEntry(b []byte, e SessionEntry) {
	binary.LittleEndian.PutUint64(b[0:8], e.SessionKey)
	binary.LittleEndian.PutUint32(b[8:12], e.IPv4HostOrder)
	binary.LittleEndian.PutUint16(b[12:14], e.GamePort)
	b[14] = e.CurPlayers
	b[15] = e.MaxPlayers
	binary.LittleEndian.PutUint32(b[16:20], e.WorldSeed)
	b[20] = uint8(e.State)
	b[21], b[22], b[23] = 0, 0, 0 // reserved1[3]
	putName(b[24:24+nameLen], e.Name)
}

func decodeSessionEntry(b []byte) SessionEntry {
	return SessionEntry{
		SessionKey:    binary.LittleEndian.Uint64(b[0:8]),
		IPv4HostOrder: binary.LittleEndian.Uint32(b[8:12]),
		GamePort:      binary.LittleEndian.Uint16(b[12:14]),
		CurPlayers:    b[14],
		MaxPlayers:    b[15],
		WorldSeed:     binary.LittleEndian.Uint32(b[16:20]),
		State:         SessionState(b[20]),
		Name:          getName(b[24 : 24+nameLen]),
	}
}

// MaxListRespEntries is the hard cap on entries in a single ListResp (§4.2).
const MaxListRespEntries = 512

// EncodeListResp encodes a directory snapshot. Entries beyond
// MaxListRespEntries are dropped.
func EncodeListResp(entries []SessionEntry) []byte {
	if len(entries) > MaxListRespEntries {
		entries = entries[:MaxListRespEntries]
	}
	b := make([]byte, listRespHdr+len(entries)*SessionEntrySize)
	b[0] = LobbyTypeListResp
	binary.LittleEndian.PutUint16(b[1:3], uint16(len(entries)))
	binary.LittleEndian.PutUint16(b[3:5], 0) // reserved0
	for i, e := range entries {
		off := listRespHdr + i*SessionEntrySize
		encodeSessionEntry(b[off:off+SessionEntrySize], e)
	}
	return b
}

func DecodeListResp(b []byte) ([]SessionEntry, error) {
	if len(b) < listRespHdr {
		return nil, ErrShort
	}
	if b[0] != LobbyTypeListResp {
		return nil, ErrBadType
	}
	count := int(binary.LittleEndian.Uint16(b[1:3]))
	need := listRespHdr + count*SessionEntrySize
	if len(b) < need {
		return nil, ErrShort
	}
	out := make([]SessionEntry, count)
	for i := 0; i < count; i++ {
		off := listRespHdr + i*SessionEntrySize
		out[i] = decodeSessionEntry(b[off : off+SessionEntrySize])
	}
	return out, nil
}

// PeekType returns the leading type byte of a lobby or game message, or an error
// if the buffer is empty. Used by the dispatcher to route before a typed
// decode.
func PeekType(b []byte) (uint8, error) {
	if len(b) < 1 {
		return 0, ErrShort
	}
	return b[0], nil
}

func putName(dst []byte, s string) {
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = 0
	}
}

func getName(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

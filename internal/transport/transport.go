// Package transport wraps a QUIC connection as the spec's "connection-
// oriented datagram service": ordered connection establishment, a single
// reliable bidirectional stream per connection, unreliable datagrams, and
// connection-state-change notifications fanned through one event channel.
//
// A *Conn is the capability-style opaque handle described in the design
// notes: it is owned by whichever component accepted or initiated it, and
// closing it is idempotent.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// ConnState mirrors the transport's connection lifecycle.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateClosedByPeer
	StateProblemDetectedLocally
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosedByPeer:
		return "ClosedByPeer"
	case StateProblemDetectedLocally:
		return "ProblemDetectedLocally"
	default:
		return "Unknown"
	}
}

// Channel selects which delivery guarantee a Send uses.
type Channel int

const (
	Reliable Channel = iota
	Unreliable
)

// maxFrameLen bounds a single reliable frame so a broken peer can't make
// the length-prefix reader allocate unbounded memory.
const maxFrameLen = 64 * 1024

// quicConfig is shared by every listener and dialer; datagrams must be
// enabled for the unreliable channel to exist at all.
var quicConfig = &quic.Config{
	EnableDatagrams: true,
}

// Listener accepts inbound connections on a UDP port.
type Listener struct {
	ql   *quic.Listener
	rt   *Runtime
	port int

	closeOnce sync.Once
}

// Addr returns the local UDP address the listener is bound to.
func (l *Listener) Addr() net.Addr { return l.ql.Addr() }

// Port returns the concrete bound port, useful when Listen was called with
// port 0 (OS-assigned), as migration's fresh-host attempt does.
func (l *Listener) Port() int {
	if a, ok := l.ql.Addr().(*net.UDPAddr); ok {
		return a.Port
	}
	return l.port
}

// Close stops accepting new connections. Idempotent.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.ql.Close() })
	return err
}

// Conn is an established QUIC connection used as a capability handle.
// LogID is a process-local correlation ID (never sent on the wire) used to
// tie together log lines for one connection, the way the teacher threads
// client/session IDs through its log output.
type Conn struct {
	LogID string

	qc       *quic.Conn
	listener *Listener // non-nil if this Conn was accepted by a Listener

	streamMu sync.Mutex
	stream   *quic.Stream

	inbox       chan []byte
	streamReady chan struct{} // closed once the reliable stream is usable

	closeOnce sync.Once
	closed    chan struct{}
}

// RemoteInfo describes a connection's observed remote endpoint, taken from
// the transport layer — never from anything the peer asserts in-band.
type RemoteInfo struct {
	IPv4HostOrder uint32 // 0 if the remote isn't an IPv4 address
	Port          uint16
}

// ConnInfo returns the connection's observed remote address.
func ConnInfo(c *Conn) RemoteInfo {
	addr, ok := c.qc.RemoteAddr().(*net.UDPAddr)
	if !ok {
		return RemoteInfo{}
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return RemoteInfo{Port: uint16(addr.Port)}
	}
	return RemoteInfo{
		IPv4HostOrder: binary.BigEndian.Uint32(ip4),
		Port:          uint16(addr.Port),
	}
}

// Event is a ConnStatusChanged notification.
type Event struct {
	Conn     *Conn
	Listener *Listener // set for events concerning a listener's own accept loop
	Old, New ConnState
}

// Runtime owns the single global callback channel and the bookkeeping that
// bridges quic-go's goroutine-driven API into the application's per-tick
// pump model (§5): background goroutines only ever write into buffered
// channels, and every channel is drained non-blockingly once per tick.
type Runtime struct {
	events chan Event
}

// NewRuntime creates a transport runtime. One Runtime is shared by every
// role active in a process — a migrating client runs a LobbyClient
// connection and (on success) a freshly opened GameHost listener side by
// side, both reporting through the same event channel.
func NewRuntime() *Runtime {
	return &Runtime{events: make(chan Event, 256)}
}

// PumpEvents drains and returns every event currently queued, without
// blocking. Call once per tick.
func (rt *Runtime) PumpEvents() []Event {
	var out []Event
	for {
		select {
		case ev := <-rt.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (rt *Runtime) emit(ev Event) {
	select {
	case rt.events <- ev:
	default:
		log.Printf("[transport] event channel full, dropping %s", ev.New)
	}
}

func newConn(qc *quic.Conn, l *Listener) *Conn {
	return &Conn{
		LogID:       uuid.NewString(),
		qc:          qc,
		listener:    l,
		inbox:       make(chan []byte, 256),
		streamReady: make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

// Listen opens a UDP listener on port (0 requests an OS-assigned ephemeral
// port, used by migration's fresh-host attempt). Inbound connections
// surface as a StateConnecting event; the owner must call Accept or Close.
func (rt *Runtime) Listen(port int, tlsConf *tls.Config) (*Listener, error) {
	addr := fmt.Sprintf(":%d", port)
	ql, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	l := &Listener{ql: ql, rt: rt, port: port}
	go rt.acceptLoop(l)
	return l, nil
}

func (rt *Runtime) acceptLoop(l *Listener) {
	for {
		qc, err := l.ql.Accept(context.Background())
		if err != nil {
			return // listener closed
		}
		c := newConn(qc, l)
		rt.emit(Event{Conn: c, Listener: l, Old: StateConnecting, New: StateConnecting})
	}
}

// Connect dials a peer synchronously (client initiation, §4.1) and opens
// the connection's reliable stream before returning, matching the
// teacher's Connect/OpenStream pairing.
func (rt *Runtime) Connect(ctx context.Context, addr string, tlsConf *tls.Config) (*Conn, error) {
	qc, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c := newConn(qc, nil)
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		qc.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	c.stream = stream
	close(c.streamReady)
	rt.startPumps(c)
	rt.emit(Event{Conn: c, Old: StateConnecting, New: StateConnected})
	return c, nil
}

// Accept admits an inbound connection reported via a StateConnecting
// event, waiting for the peer's reliable stream and then reporting
// StateConnected. Must be called from the component that owns the
// listener the connection arrived on.
func (rt *Runtime) Accept(ctx context.Context, c *Conn) {
	go func() {
		stream, err := c.qc.AcceptStream(ctx)
		if err != nil {
			rt.reportClosed(c, err)
			return
		}
		c.streamMu.Lock()
		c.stream = stream
		c.streamMu.Unlock()
		close(c.streamReady)
		rt.startPumps(c)
		rt.emit(Event{Conn: c, Old: StateConnecting, New: StateConnected})
	}()
}

// Close rejects or tears down a connection. Idempotent. reason is sent to
// the peer as the QUIC close reason; it is not an application-level error
// code (§7: seat exhaustion uses "Server full"/"No slot" here).
func (rt *Runtime) Close(c *Conn, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.qc.CloseWithError(0, reason)
	})
}

// startPumps launches the background readers that bridge quic-go's blocking
// API into c.inbox, which Poll drains non-blockingly.
func (rt *Runtime) startPumps(c *Conn) {
	go rt.readReliable(c)
	go rt.readUnreliable(c)
	go rt.watchClose(c)
}

func (rt *Runtime) readReliable(c *Conn) {
	c.streamMu.Lock()
	stream := c.stream
	c.streamMu.Unlock()
	if stream == nil {
		return
	}
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(stream, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n == 0 || n > maxFrameLen {
			return // malformed framing; drop the connection's reliable reader
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(stream, buf); err != nil {
			return
		}
		select {
		case c.inbox <- buf:
		case <-c.closed:
			return
		}
	}
}

func (rt *Runtime) readUnreliable(c *Conn) {
	for {
		data, err := c.qc.ReceiveDatagram(context.Background())
		if err != nil {
			return
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case c.inbox <- cp:
		case <-c.closed:
			return
		default:
			// Drop-oldest-on-full isn't worth the bookkeeping here: an
			// unreliable message superseded by the next one is exactly
			// what the spec says consumers must tolerate.
		}
	}
}

func (rt *Runtime) watchClose(c *Conn) {
	<-c.qc.Context().Done()
	rt.reportClosed(c, context.Cause(c.qc.Context()))
}

func (rt *Runtime) reportClosed(c *Conn, cause error) {
	newState := StateClosedByPeer
	var appErr *quic.ApplicationError
	if !errors.As(cause, &appErr) || !appErr.Remote {
		newState = StateProblemDetectedLocally
	}
	reported := false
	c.closeOnce.Do(func() {
		close(c.closed)
		reported = true
	})
	if reported {
		rt.emit(Event{Conn: c, Old: StateConnected, New: newState})
	}
}

// Send writes a message on the requested channel. Reliable sends are
// length-prefixed frames on the connection's single stream; unreliable
// sends are raw QUIC datagrams.
func Send(c *Conn, data []byte, ch Channel) error {
	switch ch {
	case Reliable:
		<-c.streamReady
		c.streamMu.Lock()
		stream := c.stream
		c.streamMu.Unlock()
		if stream == nil {
			return fmt.Errorf("transport: reliable stream not ready")
		}
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(data)))
		if _, err := stream.Write(hdr[:]); err != nil {
			return err
		}
		_, err := stream.Write(data)
		return err
	case Unreliable:
		return c.qc.SendDatagram(data)
	default:
		return fmt.Errorf("transport: unknown channel %d", ch)
	}
}

// Poll returns every message queued for c since the last call, without
// blocking. Messages are ordered within the reliable channel; unreliable
// messages may be lost or interleaved, per §5.
func Poll(c *Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.inbox:
			out = append(out, msg)
		default:
			return out
		}
	}
}

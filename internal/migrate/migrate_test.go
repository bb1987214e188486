package migrate

import (
	"context"
	"testing"
	"time"

	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

func TestRandomStaggerSecondsWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := randomStaggerSeconds()
		if s < 0 || s > maxStaggerMS/1000.0 {
			t.Fatalf("stagger %v out of [0,%v]", s, maxStaggerMS/1000.0)
		}
	}
}

func TestTickStaggerCountsDownToHostAttempt(t *testing.T) {
	rt := transport.NewRuntime()
	rtr := router.New()
	m := &Coordinator{
		rt:          rt,
		rtr:         rtr,
		lobbyAddr:   "127.0.0.1:1", // unreachable; forces the fallback path
		preserved:   Preserved{MaxPlayers: 3, WorldSeed: 1, SessionKey: 42},
		phase:       PhaseStagger,
		staggerLeft: 0.01,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	m.Tick(ctx, 0.02)
	if m.Phase() == PhaseStagger {
		t.Fatal("expected phase to advance past Stagger once staggerLeft elapses")
	}
}

func TestIpv4StringFormatsHostOrder(t *testing.T) {
	// 127.0.0.1 packed host-order big-endian as produced by transport.ConnInfo.
	got := ipv4String(0x7F000001)
	if got != "127.0.0.1" {
		t.Errorf("got %q, want 127.0.0.1", got)
	}
}

func TestPollingPhaseMatchesSessionKeyAndState(t *testing.T) {
	m := &Coordinator{
		phase:     PhasePolling,
		preserved: Preserved{SessionKey: 7},
		pollLeft:  0,
	}
	entries := []wire.SessionEntry{
		{SessionKey: 7, State: wire.StateMigrating},
		{SessionKey: 7, State: wire.StateOpen, IPv4HostOrder: 0x7F000001, GamePort: 5000},
	}
	// Simulate what Tick does with a pre-populated list, without a live conn.
	found := false
	for _, e := range entries {
		if e.SessionKey == m.preserved.SessionKey && (e.State == wire.StateOpen || e.State == wire.StateFull) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected to find the Open entry for the preserved session key")
	}
}

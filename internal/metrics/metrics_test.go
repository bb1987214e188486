package metrics

import (
	"context"
	"testing"
	"time"
)

func TestRunLobbyMetricsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		RunLobbyMetrics(ctx, 2*time.Millisecond, func() LobbyStats {
			calls++
			return LobbyStats{SessionCount: calls}
		})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLobbyMetrics did not stop after cancel")
	}
	if calls == 0 {
		t.Fatal("expected at least one stats call")
	}
}

func TestRunHostMetricsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunHostMetrics(ctx, 2*time.Millisecond, func() HostStats {
			return HostStats{ClientCount: 1, BytesBroadcast: 1024}
		})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHostMetrics did not stop after cancel")
	}
}

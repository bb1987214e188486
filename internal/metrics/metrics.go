// Package metrics periodically logs coarse operational stats, grounded on
// the teacher's RunMetrics ticker loop.
package metrics

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"
)

// LobbyStats is read each tick for the LobbyServer variant of the loop.
type LobbyStats struct {
	SessionCount int
}

// RunLobbyMetrics logs directory size every interval until ctx is canceled.
func RunLobbyMetrics(ctx context.Context, interval time.Duration, stats func() LobbyStats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := stats()
			log.Printf("[metrics] sessions=%d", s.SessionCount)
		}
	}
}

// HostStats is read each tick for the GameHost variant of the loop.
type HostStats struct {
	ClientCount  int
	BytesBroadcast uint64
}

// RunHostMetrics logs connected-client count and broadcast throughput
// every interval until ctx is canceled, skipping intervals with no clients
// and no bytes broadcast, and formatting the byte rate with
// humanize the way the teacher formats its own "%.1f KB/s" line.
func RunHostMetrics(ctx context.Context, interval time.Duration, stats func() HostStats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytes uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := stats()
			delta := s.BytesBroadcast - lastBytes
			lastBytes = s.BytesBroadcast
			rate := float64(delta) / interval.Seconds()
			if s.ClientCount > 0 || delta > 0 {
				log.Printf("[metrics] clients=%d broadcast=%s/s", s.ClientCount, humanize.Bytes(uint64(rate)))
			}
		}
	}
}

package lobby

import (
	"testing"
	"time"
)

type fakeConn int

func clockAt(t0 time.Time) (*time.Time, func() time.Time) {
	cur := t0
	return &cur, func() time.Time { return cur }
}

func TestAnnounceCreatesOpenSession(t *testing.T) {
	d := NewDirectoryWithClock(func() time.Time { return time.Unix(0, 0) })
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 0xAAAA, IPv4HostOrder: 0x7F000001, GamePort: 27020, MaxPlayers: 3, WorldSeed: 0xC0FFEE, Name: "Run #1"})

	s, ok := d.Get(0xAAAA)
	if !ok {
		t.Fatal("session not found")
	}
	if s.State != StateOpen || s.CurPlayers != 1 || s.MaxPlayers != 3 {
		t.Errorf("got %+v", s)
	}
}

func TestAnnounceIgnoresZeroKey(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 0})
	if d.Count() != 0 {
		t.Errorf("expected no session created for key 0")
	}
}

func TestReannounceUpdatesFieldsAdvancesLastSeen(t *testing.T) {
	cur, now := clockAt(time.Unix(0, 0))
	d := NewDirectoryWithClock(now)
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, GamePort: 100, MaxPlayers: 3, WorldSeed: 1, Name: "a"})
	first, _ := d.Get(1)

	*cur = cur.Add(5 * time.Second)
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 2, GamePort: 200, MaxPlayers: 4, WorldSeed: 2, Name: "b"})
	second, _ := d.Get(1)

	if second.LastSeen.Equal(first.LastSeen) {
		t.Errorf("lastSeen did not advance")
	}
	if second.IPv4HostOrder != 2 || second.GamePort != 200 || second.MaxPlayers != 4 || second.WorldSeed != 2 || second.Name != "b" {
		t.Errorf("fields not overwritten: %+v", second)
	}
}

func TestHeartbeatTransitionsOpenFull(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})

	if !d.Heartbeat(fakeConn(1), 1, 2) {
		t.Fatal("heartbeat should be accepted")
	}
	s, _ := d.Get(1)
	if s.State != StateOpen || s.CurPlayers != 2 {
		t.Errorf("got %+v", s)
	}

	d.Heartbeat(fakeConn(1), 1, 3)
	s, _ = d.Get(1)
	if s.State != StateFull {
		t.Errorf("expected Full, got %v", s.State)
	}

	d.Heartbeat(fakeConn(1), 1, 2)
	s, _ = d.Get(1)
	if s.State != StateOpen {
		t.Errorf("expected Open after drop below max, got %v", s.State)
	}
}

func TestHeartbeatClampsZeroToOne(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	d.Heartbeat(fakeConn(1), 1, 0)
	s, _ := d.Get(1)
	if s.CurPlayers != 1 {
		t.Errorf("curPlayers = %d, want 1", s.CurPlayers)
	}
}

func TestHeartbeatRejectedFromNonOwner(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	if d.Heartbeat(fakeConn(2), 1, 2) {
		t.Error("heartbeat from non-owner should be rejected")
	}
}

func TestHeartbeatRejectedWhileMigrating(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	d.RemoveOwner(fakeConn(1))
	if d.Heartbeat(fakeConn(1), 1, 2) {
		t.Error("heartbeat while migrating should be rejected")
	}
}

func TestDisconnectMovesToMigrating(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	d.RemoveOwner(fakeConn(1))
	s, _ := d.Get(1)
	if s.State != StateMigrating || s.OwnerConn != nil {
		t.Errorf("got %+v", s)
	}
}

func TestClaimRejectedAgainstOpenSession(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	if d.Claim(fakeConn(2), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 2, MaxPlayers: 3}) {
		t.Error("claim against Open session should be rejected")
	}
	s, _ := d.Get(1)
	if s.IPv4HostOrder != 1 {
		t.Error("session should be unchanged")
	}
}

func TestMigrationRaceFirstClaimWins(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 0xBEEF, IPv4HostOrder: 1, MaxPlayers: 3})
	d.RemoveOwner(fakeConn(1))

	if !d.Claim(fakeConn(2), AnnounceInfo{SessionKey: 0xBEEF, IPv4HostOrder: 2, MaxPlayers: 3}) {
		t.Fatal("first claim should succeed")
	}
	if d.Claim(fakeConn(3), AnnounceInfo{SessionKey: 0xBEEF, IPv4HostOrder: 3, MaxPlayers: 3}) {
		t.Fatal("second claim should be rejected")
	}
	s, _ := d.Get(0xBEEF)
	if s.State != StateOpen || s.OwnerConn != fakeConn(2) || s.IPv4HostOrder != 2 {
		t.Errorf("got %+v", s)
	}
}

func TestAnnounceWhileMigratingActsLikeClaim(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	d.RemoveOwner(fakeConn(1))
	d.Announce(fakeConn(2), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 2, MaxPlayers: 3})
	s, _ := d.Get(1)
	if s.State != StateOpen || s.OwnerConn != fakeConn(2) {
		t.Errorf("got %+v", s)
	}
}

func TestSweepTTLExpiryBoundary(t *testing.T) {
	cur, now := clockAt(time.Unix(0, 0))
	d := NewDirectoryWithClock(now)
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 1, MaxPlayers: 3})
	d.Heartbeat(fakeConn(1), 1, 1) // lastSeen = t0

	*cur = cur.Add(ActiveTTL)
	d.Sweep()
	s, _ := d.Get(1)
	if s.State != StateOpen {
		t.Errorf("at exactly activeTTL, expected still Open, got %v", s.State)
	}

	*cur = cur.Add(time.Millisecond)
	d.Sweep()
	s, _ = d.Get(1)
	if s.State != StateMigrating {
		t.Errorf("past activeTTL, expected Migrating, got %v", s.State)
	}
	if s.MigratingSince.IsZero() {
		t.Error("migratingSince should be set")
	}
}

func TestSweepGraceExpiryDeletes(t *testing.T) {
	cur, now := clockAt(time.Unix(0, 0))
	d := NewDirectoryWithClock(now)
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 0xBEEF, IPv4HostOrder: 1, MaxPlayers: 3})
	d.RemoveOwner(fakeConn(1))

	*cur = cur.Add(GraceTTL)
	d.Sweep()
	if _, ok := d.Get(0xBEEF); !ok {
		t.Fatal("session should still exist at exactly graceTTL")
	}

	*cur = cur.Add(time.Millisecond)
	d.Sweep()
	if _, ok := d.Get(0xBEEF); ok {
		t.Error("session should be deleted past graceTTL")
	}
}

func TestEntriesExcludesIPv6OnlyAndCaps(t *testing.T) {
	d := NewDirectory()
	d.Announce(fakeConn(1), AnnounceInfo{SessionKey: 1, IPv4HostOrder: 0, MaxPlayers: 3})
	d.Announce(fakeConn(2), AnnounceInfo{SessionKey: 2, IPv4HostOrder: 0x7F000001, MaxPlayers: 3})

	entries := d.Entries(512)
	if len(entries) != 1 || entries[0].SessionKey != 2 {
		t.Errorf("got %+v", entries)
	}

	for i := 3; i < 20; i++ {
		d.Announce(fakeConn(i), AnnounceInfo{SessionKey: uint64(i), IPv4HostOrder: 1, MaxPlayers: 3})
	}
	capped := d.Entries(5)
	if len(capped) != 5 {
		t.Errorf("len = %d, want 5", len(capped))
	}
}

func TestListRespEmptyDirectoryIsValid(t *testing.T) {
	d := NewDirectory()
	entries := d.Entries(512)
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

package chstate

import "testing"

func TestNewBankDefaults(t *testing.T) {
	b := NewBank()
	for i, ch := range b.Channels {
		if ch.Velocity != DefaultVelocity {
			t.Fatalf("channel %d velocity = %d, want %d", i, ch.Velocity, DefaultVelocity)
		}
		if ch.CurrentTick != 0 {
			t.Fatalf("channel %d current tick = %d, want 0", i, ch.CurrentTick)
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	b := NewBank()
	b.Channels[0].CurrentTick = 480
	b.Channels[9].CurrentTick = 960
	snap := b.Snapshot()
	b.Channels[0].CurrentTick = 9999
	b.Channels[9].CurrentTick = 9999
	b.Restore(snap)
	if b.Channels[0].CurrentTick != 480 || b.Channels[9].CurrentTick != 960 {
		t.Fatalf("restore did not reproduce snapshot: %+v", b.Channels)
	}
}

func TestMaxCurrentTickAndSync(t *testing.T) {
	b := NewBank()
	b.Channels[2].CurrentTick = 480
	b.Channels[5].CurrentTick = 1200
	if got := b.MaxCurrentTick(); got != 1200 {
		t.Fatalf("MaxCurrentTick() = %d, want 1200", got)
	}
	b.SyncTo(1200)
	for i, ch := range b.Channels {
		if ch.CurrentTick != 1200 {
			t.Fatalf("channel %d not synced: %d", i, ch.CurrentTick)
		}
	}
}

func TestResolveChannelRef(t *testing.T) {
	cases := map[string]int{"0": 0, "15": 15, "p": 9, "P": 9}
	for ref, want := range cases {
		got, ok := Resolve(ref)
		if !ok || got != want {
			t.Errorf("Resolve(%q) = %d,%v want %d,true", ref, got, ok, want)
		}
	}
	for _, bad := range []string{"16", "-1", "x", ""} {
		if _, ok := Resolve(bad); ok {
			t.Errorf("Resolve(%q) expected failure", bad)
		}
	}
}

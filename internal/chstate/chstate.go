// Package chstate implements the per-channel executor state described in
// spec §3 ChannelState: the sixteen fixed logical MIDI channels (channel 9
// is percussion), each carrying its own current tick, program/bank,
// default velocity, duration ratio, octave shift, and track name.
package chstate

import "math/big"

const (
	NumChannels      = 16
	PercussionChannel = 9

	DefaultVelocity = 64
)

// Channel is the mutable state the executor owns for one of the sixteen
// logical channels. It is only ever mutated by the executor; every other
// component receives read-only snapshots.
type Channel struct {
	CurrentTick    int
	Program        int
	BankMSB        int
	BankLSB        int
	Velocity       int
	DurationRatio  *big.Rat
	OctaveShift    int
	Name           string
	Declared       bool // set by an INSTRUMENTS entry
}

// Bank holds the sixteen channels in their fixed 0..15 slots.
type Bank struct {
	Channels [NumChannels]Channel
}

// NewBank returns a bank with every channel at its documented defaults:
// tick 0, program 0, no bank select, default velocity 64, duration ratio
// 1, no octave shift, undeclared.
func NewBank() *Bank {
	b := &Bank{}
	for i := range b.Channels {
		b.Channels[i] = Channel{
			Velocity:      DefaultVelocity,
			DurationRatio: big.NewRat(1, 1),
		}
	}
	return b
}

// MaxCurrentTick returns the maximum current_tick across all sixteen
// channels, declared or not, per the §9 design-note decision that global
// directives synchronize against every channel unconditionally.
func (b *Bank) MaxCurrentTick() int {
	max := 0
	for i := range b.Channels {
		if b.Channels[i].CurrentTick > max {
			max = b.Channels[i].CurrentTick
		}
	}
	return max
}

// SyncTo fast-forwards every channel's current tick to at least tick,
// implementing the synchronization a global directive performs.
func (b *Bank) SyncTo(tick int) {
	for i := range b.Channels {
		if b.Channels[i].CurrentTick < tick {
			b.Channels[i].CurrentTick = tick
		}
	}
}

// Snapshot captures only the sixteen current-tick integers, per the §9
// design note that `m` restoration snapshots ticks alone, not full
// channel state.
func (b *Bank) Snapshot() [NumChannels]int {
	var s [NumChannels]int
	for i := range b.Channels {
		s[i] = b.Channels[i].CurrentTick
	}
	return s
}

// Restore writes back a tick snapshot taken by Snapshot.
func (b *Bank) Restore(s [NumChannels]int) {
	for i := range b.Channels {
		b.Channels[i].CurrentTick = s[i]
	}
}

// Resolve normalizes a channel reference token ("0".."15" or "p") to an
// index, reporting whether it was valid.
func Resolve(ref string) (int, bool) {
	if ref == "p" || ref == "P" {
		return PercussionChannel, true
	}
	n := 0
	for _, r := range ref {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if ref == "" || n < 0 || n >= NumChannels {
		return 0, false
	}
	return n, true
}

// Package sequence implements the event emitter / sequence builder (spec
// §4.6): an ordered accumulator of channel and meta events that assembles
// the final tick-stamped Sequence. Its Builder plays the same role the
// teacher's sequencer.Sequencer plays for audio — walking events and
// dispatching them to per-kind emit calls — but targets MIDI message
// construction instead of a VoiceEngine, since generating sound is an
// explicit non-goal of this compiler.
package sequence

import "sort"

const (
	NumMetaTracks = 3
	NumChannels   = 16
	NumTracks     = NumMetaTracks + NumChannels
)

// EventKind identifies what a Event represents.
type EventKind int

const (
	NoteOn EventKind = iota
	NoteOff
	ProgramChange
	ControlChange
	Meta
)

// MetaKind enumerates the meta-event subtypes §4.6 requires.
type MetaKind int

const (
	SetTempo MetaKind = iota
	TimeSig
	KeySig
	Text
	InstrumentName
	Lyrics
	Marker
)

// Event is one entry on a track. Fields not relevant to Kind are zero.
type Event struct {
	Tick     int
	Kind     EventKind
	Channel  int // for NoteOn/NoteOff/ProgramChange/ControlChange
	Note     int
	Velocity int
	Program  int
	CtrlNum  int
	CtrlVal  int
	MetaKind MetaKind
	Bytes    []byte

	seq int // insertion sequence number, for stable sort at equal ticks
}

// Track is one of the sequence's 19 tracks (3 meta + 16 channel), a
// stable-sorted-by-tick list of events.
type Track struct {
	Events []Event
}

// Sequence is the finished, read-only result of a compilation: the value
// every downstream collaborator (SMF writer, future decompiler, etc.)
// consumes.
type Sequence struct {
	Resolution int
	Tracks     [NumTracks]Track
}

// Builder accumulates events for each track in emission order and
// produces a Sequence on Finish. It is not safe for concurrent use; each
// compilation owns its own Builder, matching the single-threaded
// synchronous model of §5.
type Builder struct {
	resolution int
	tracks     [NumTracks]Track
	nextSeq    int
}

// NewBuilder constructs a Builder for the given sequence resolution
// (ticks per quarter note).
func NewBuilder(resolution int) *Builder {
	return &Builder{resolution: resolution}
}

func (b *Builder) channelTrack(channel int) int { return NumMetaTracks + channel }

func (b *Builder) append(track int, e Event) {
	e.seq = b.nextSeq
	b.nextSeq++
	b.tracks[track].Events = append(b.tracks[track].Events, e)
}

// EmitNoteOn appends a note-on event on channel at tick with velocity.
func (b *Builder) EmitNoteOn(channel, note, velocity, tick int) {
	b.append(b.channelTrack(channel), Event{Tick: tick, Kind: NoteOn, Channel: channel, Note: note, Velocity: velocity})
}

// EmitNoteOff appends a note-off event (velocity 0, per §6 status 0x8n)
// on channel at tick.
func (b *Builder) EmitNoteOff(channel, note, tick int) {
	b.append(b.channelTrack(channel), Event{Tick: tick, Kind: NoteOff, Channel: channel, Note: note})
}

// EmitProgramChange appends a program-change event on channel at tick.
func (b *Builder) EmitProgramChange(channel, program, tick int) {
	b.append(b.channelTrack(channel), Event{Tick: tick, Kind: ProgramChange, Channel: channel, Program: program})
}

// EmitControlChange appends a control-change event on channel at tick.
// Used for the bank-select MSB (controller 0x00) / LSB (controller 0x20)
// pair before a program change, per §3A.
func (b *Builder) EmitControlChange(channel, ctrlNum, ctrlVal, tick int) {
	b.append(b.channelTrack(channel), Event{Tick: tick, Kind: ControlChange, Channel: channel, CtrlNum: ctrlNum, CtrlVal: ctrlVal})
}

// EmitBankSelect emits the MSB/LSB control-change pair for channel at
// tick, in that order, matching the reference's SequenceCreator.setBank.
func (b *Builder) EmitBankSelect(channel, msb, lsb, tick int) {
	b.EmitControlChange(channel, 0x00, msb, tick)
	b.EmitControlChange(channel, 0x20, lsb, tick)
}

// EmitMeta appends a meta event of the given kind to track (0, 1, or 2).
func (b *Builder) EmitMeta(track int, kind MetaKind, bytes []byte, tick int) {
	b.append(track, Event{Tick: tick, Kind: Meta, MetaKind: kind, Bytes: bytes})
}

// EmitInstrumentName appends an instrument-name meta event on channel's
// own track at tick, matching SequenceCreator.initChannel.
func (b *Builder) EmitInstrumentName(channel int, name string, tick int) {
	b.append(b.channelTrack(channel), Event{Tick: tick, Kind: Meta, MetaKind: InstrumentName, Bytes: []byte(name)})
}

// Finish stable-sorts every track by tick (insertion order preserved
// among equal ticks, per §4.6's invariant) and returns the built
// Sequence. The Builder must not be used afterward.
func (b *Builder) Finish() *Sequence {
	seq := &Sequence{Resolution: b.resolution}
	for i := range b.tracks {
		events := b.tracks[i].Events
		sort.SliceStable(events, func(a, c int) bool {
			if events[a].Tick != events[c].Tick {
				return events[a].Tick < events[c].Tick
			}
			return events[a].seq < events[c].seq
		})
		seq.Tracks[i] = Track{Events: events}
	}
	return seq
}

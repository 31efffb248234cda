// Package smf is the thin, out-of-core collaborator described in spec
// §6A: it frames a sequence.Sequence's tick-stamped events as a standard
// SMF (MThd/MTrk) byte stream. It reads only the Sequence's public
// fields; it has no visibility into the compiler's internal state.
//
// Grounded on the pack's own stdlib-only SMF writers (husafan-audio/midi,
// ur65-go-smftool/smf.go) rather than a third-party MIDI library, per
// DESIGN.md: this is exactly the thin-framing concern those files exist
// for, and neither pulls in anything beyond encoding/binary to do it.
package smf

import (
	"bytes"
	"encoding/binary"

	"github.com/mpl-lang/mplc/internal/sequence"
)

const (
	headerLength = 14
	formatType   = 1
)

// Write frames seq as a complete standard MIDI file (format 1) and
// returns the bytes.
func Write(seq *sequence.Sequence) []byte {
	var out bytes.Buffer
	writeHeader(&out, seq)
	for _, track := range seq.Tracks {
		writeTrack(&out, track)
	}
	return out.Bytes()
}

func writeHeader(out *bytes.Buffer, seq *sequence.Sequence) {
	out.WriteString("MThd")
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 6)
	out.Write(lenBuf[:])
	var body [6]byte
	binary.BigEndian.PutUint16(body[0:2], uint16(formatType))
	binary.BigEndian.PutUint16(body[2:4], uint16(sequence.NumTracks))
	binary.BigEndian.PutUint16(body[4:6], uint16(seq.Resolution))
	out.Write(body[:])
}

func writeTrack(out *bytes.Buffer, track sequence.Track) {
	var body bytes.Buffer
	prevTick := 0
	for _, ev := range track.Events {
		delta := ev.Tick - prevTick
		if delta < 0 {
			delta = 0
		}
		prevTick = ev.Tick
		writeVLQ(&body, delta)
		writeEventBytes(&body, ev)
	}
	// End-of-track meta event.
	writeVLQ(&body, 0)
	body.Write([]byte{0xFF, 0x2F, 0x00})

	out.WriteString("MTrk")
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	out.Write(lenBuf[:])
	out.Write(body.Bytes())
}

func writeEventBytes(body *bytes.Buffer, ev sequence.Event) {
	switch ev.Kind {
	case sequence.NoteOn:
		body.WriteByte(0x90 | byte(ev.Channel))
		body.WriteByte(byte(ev.Note))
		body.WriteByte(byte(ev.Velocity))
	case sequence.NoteOff:
		body.WriteByte(0x80 | byte(ev.Channel))
		body.WriteByte(byte(ev.Note))
		body.WriteByte(0)
	case sequence.ProgramChange:
		body.WriteByte(0xC0 | byte(ev.Channel))
		body.WriteByte(byte(ev.Program))
	case sequence.ControlChange:
		body.WriteByte(0xB0 | byte(ev.Channel))
		body.WriteByte(byte(ev.CtrlNum))
		body.WriteByte(byte(ev.CtrlVal))
	case sequence.Meta:
		writeMeta(body, ev)
	}
}

func writeMeta(body *bytes.Buffer, ev sequence.Event) {
	body.WriteByte(0xFF)
	switch ev.MetaKind {
	case sequence.SetTempo:
		body.WriteByte(0x51)
		writeVLQ(body, 3)
		body.Write(ev.Bytes[:3])
	case sequence.TimeSig:
		body.WriteByte(0x58)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	case sequence.KeySig:
		body.WriteByte(0x59)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	case sequence.Text:
		body.WriteByte(0x01)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	case sequence.InstrumentName:
		body.WriteByte(0x04)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	case sequence.Lyrics:
		body.WriteByte(0x05)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	case sequence.Marker:
		body.WriteByte(0x06)
		writeVLQ(body, len(ev.Bytes))
		body.Write(ev.Bytes)
	}
}

// writeVLQ writes v as a MIDI variable-length quantity.
func writeVLQ(out *bytes.Buffer, v int) {
	if v < 0 {
		v = 0
	}
	buf := []byte{byte(v & 0x7F)}
	v >>= 7
	for v > 0 {
		buf = append(buf, byte(v&0x7F)|0x80)
		v >>= 7
	}
	// buf was built least-significant-group-first; MIDI VLQs are
	// written most-significant-group-first.
	for i := len(buf) - 1; i >= 0; i-- {
		out.WriteByte(buf[i])
	}
}

package compiler

import (
	"strconv"
	"strings"

	"github.com/mpl-lang/mplc/internal/chstate"
)

// resolveNoteToken resolves a single note token to an absolute MIDI note
// number: a plain integer ("60"), a letter note name with optional
// octave marks and octave digits ("c", "c+", "c-", "c+2"), or (when
// allowPercussion is set) a channel-9 percussion shortcut ("bd1"). Chord
// names are resolved separately by the caller, since a chord expands to
// more than one note.
func (e *exec) resolveNoteToken(tok string, allowPercussion bool) (int, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(tok); err == nil {
		if n < 0 || n > 127 {
			return 0, false
		}
		return n, true
	}
	if allowPercussion {
		if n, ok := e.dict.PercussionNote(tok); ok {
			return n, true
		}
	}
	return e.parseLetterNote(tok)
}

// parseLetterNote parses "<letter>[octave-marks][octave-digit]" per spec
// §4.5/§8: each '+' or '-' shifts the note a full octave (12 semitones),
// not a single chromatic semitone — "c+" is the octave above "c" (72, not
// 61), matching the §8 worked example where CALLing with s=12 produces
// the same note as the literal token "c+". A trailing octave digit, when
// present, composes with the marks rather than replacing them.
func (e *exec) parseLetterNote(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	letter := strings.ToLower(tok[:1])
	rest := tok[1:]
	shift := 0
	i := 0
	if i < len(rest) && (rest[i] == '+' || rest[i] == '-') {
		sign := 1
		if rest[i] == '-' {
			sign = -1
		}
		mark := rest[i]
		for i < len(rest) && rest[i] == mark {
			shift += sign * 12
			i++
		}
	}
	octave := e.dict.BaseOctave
	if i < len(rest) {
		digits := rest[i:]
		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0, false
		}
		octave = n
	}
	return e.dict.NoteNumber(letter, shift, octave)
}

// resolveNotes expands a note/chord/percussion token into the list of
// absolute MIDI notes it plays (length 1 for a plain note or percussion
// shortcut, length >1 for a chord name).
func (e *exec) resolveNotes(tok string, channel int) ([]int, bool) {
	if cd, ok := e.chords[tok]; ok {
		return cd.notes, true
	}
	n, ok := e.resolveNoteToken(tok, channel == chstate.PercussionChannel)
	if !ok {
		return nil, false
	}
	return []int{n}, true
}

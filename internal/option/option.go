// Package option parses the trailing comma-separated option list of a
// command or block header (spec §4.4) and implements the option-frame
// chain prescribed by the design notes in §9: an immutable record plus a
// parent pointer, with "effective value" resolved by walking the chain.
package option

import (
	"strconv"
	"strings"

	compilerrors "github.com/mpl-lang/mplc/internal/errors"
)

// Key identifies a recognized option.
type Key int

const (
	Velocity Key = iota
	Duration
	Quantity
	Multiple
	Shift
	Lyrics
	Tremolo
)

var aliases = map[string]Key{
	"velocity": Velocity, "v": Velocity,
	"duration": Duration, "d": Duration,
	"quantity": Quantity, "q": Quantity,
	"multiple": Multiple, "m": Multiple,
	"shift": Shift, "s": Shift,
	"lyrics": Lyrics, "l": Lyrics,
	"tremolo": Tremolo, "tr": Tremolo,
}

// Raw is one parsed "key[=value]" pair from a header's option list, with
// its source position for error reporting.
type Raw struct {
	Key   Key
	Value string
	Line  int
	Col   int
}

// Parse splits a header's trailing option list (already separated from
// the command by its leading comma) into Raw options. file/line are used
// to build structured errors.
func Parse(file string, line int, text string) ([]Raw, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	parts := splitTopLevel(text, ',')
	seen := map[Key]bool{}
	out := make([]Raw, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, compilerrors.New(file, line, 0, compilerrors.BadOption, "empty option in list")
		}
		name, value := part, ""
		if i := strings.IndexByte(part, '='); i >= 0 {
			name, value = part[:i], part[i+1:]
		}
		key, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, compilerrors.New(file, line, 0, compilerrors.BadOption, "unknown option key: "+name)
		}
		if seen[key] && key != Quantity && key != Multiple {
			return nil, compilerrors.New(file, line, 0, compilerrors.BadOption, "option repeated in header: "+name)
		}
		seen[key] = true
		out = append(out, Raw{Key: key, Value: strings.TrimSpace(value), Line: line})
	}
	return out, nil
}

// splitTopLevel splits on sep, ignoring occurrences inside {...} spans
// (used by brace-quoted option values such as lyrics text).
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		default:
			if s[i] == sep && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// Frame is one immutable link in the option-frame chain (§9). A frame is
// created on entry to a block or CALL and holds only the options
// explicitly set on that header; Effective* walks Parent for anything not
// set here.
type Frame struct {
	Parent *Frame

	hasVelocity bool
	velocity    int
	hasDuration bool
	duration    string // percent/range text, resolved by the caller
	hasShift    bool
	shift       int

	Quantity int  // this frame's own q, default 1
	Multiple bool // this frame's own m
}

// Root returns the top-level frame: q=1, m=false, nothing else set, so
// every Effective* lookup falls through to the channel's own defaults.
func Root() *Frame {
	return &Frame{Quantity: 1}
}

// Child builds a new frame under parent, applying the raw options parsed
// from a header. Inherited keys (v,d,s) set here override the parent's
// effective value for the remainder of this frame's body; q and m are
// private to this frame (§4.5 step 1).
func Child(parent *Frame, raws []Raw) (*Frame, error) {
	f := &Frame{Parent: parent, Quantity: 1}
	for _, r := range raws {
		switch r.Key {
		case Velocity:
			v, err := strconv.Atoi(r.Value)
			if err != nil || v < 0 || v > 127 {
				return nil, compilerrors.New("", r.Line, 0, compilerrors.BadOption, "velocity out of range: "+r.Value)
			}
			f.hasVelocity, f.velocity = true, v
		case Duration:
			f.hasDuration, f.duration = true, r.Value
		case Shift:
			v, err := strconv.Atoi(r.Value)
			if err != nil {
				return nil, compilerrors.New("", r.Line, 0, compilerrors.BadOption, "shift must be an integer: "+r.Value)
			}
			f.hasShift, f.shift = true, v
		case Quantity:
			v, err := strconv.Atoi(r.Value)
			if err != nil || v < 0 {
				return nil, compilerrors.New("", r.Line, 0, compilerrors.BadOption, "quantity must be >= 0: "+r.Value)
			}
			f.Quantity *= v // repeated q values multiply
		case Multiple:
			f.Multiple = true
		case Lyrics, Tremolo:
			// Per-command options, not part of the inheritable frame
			// chain; the executor reads them straight off the raw
			// option list for the command they're attached to.
		}
	}
	return f, nil
}

// EffectiveVelocity walks the chain for the nearest explicit velocity,
// returning ok=false if none was ever set (caller falls back to the
// channel's own default).
func (f *Frame) EffectiveVelocity() (int, bool) {
	for n := f; n != nil; n = n.Parent {
		if n.hasVelocity {
			return n.velocity, true
		}
	}
	return 0, false
}

// EffectiveDuration walks the chain for the nearest explicit duration
// ratio text.
func (f *Frame) EffectiveDuration() (string, bool) {
	for n := f; n != nil; n = n.Parent {
		if n.hasDuration {
			return n.duration, true
		}
	}
	return "", false
}

// EffectiveShift sums every explicitly-set shift from this frame up to
// the root: successive CALLs with different s values compose (spec §8
// scenario 3), which a simple "nearest wins" lookup would not model.
func (f *Frame) EffectiveShift() int {
	total := 0
	for n := f; n != nil; n = n.Parent {
		if n.hasShift {
			total += n.shift
		}
	}
	return total
}

// Package lexer implements the MPL line classifier (spec §4.2): joining
// continuation lines, stripping comments, and typing each logical line so
// the executor never has to re-scan raw source text for structure.
package lexer

import (
	"strings"

	compilerrors "github.com/mpl-lang/mplc/internal/errors"
)

// Kind types a logical line by its leading keyword or shape.
type Kind int

const (
	ChannelCmd Kind = iota
	RestCmd
	Global
	MetaOpen
	InstrumentsOpen
	FunctionDefOpen
	// End closes whichever of INSTRUMENTS/META/FUNCTION is currently
	// open; the compiler disambiguates using its own open-block stack
	// rather than the lexer guessing from local context.
	End
	BlockOpen
	BlockClose
	Call
	Include
	IncludeFile
	Var
	Const
	Chord
	Define
	// MetaEntry is a META block field line (title, copyright, composer,
	// lyricist, artist, lyrics).
	MetaEntry
)

// Line is one classified logical line of source.
type Line struct {
	File string
	Num  int // 1-based
	Kind Kind
	// Rest is the line's text with the classifying keyword (if any)
	// removed, still carrying any trailing ",opt=val,..." option list.
	Rest string
	// Body is Rest with the trailing option list (if any) split off.
	Body string
	// Options is the raw, unparsed trailing option-list text (after the
	// first top-level comma), or "" if there was none.
	Options string
}

var globalDirectives = map[string]bool{"tempo": true, "time": true, "key": true}

var metaFields = map[string]bool{"title": true, "copyright": true, "composer": true, "lyricist": true, "artist": true, "lyrics": true}

// RawLine is one joined, comment-stripped logical line of source, before
// classification.
type RawLine struct {
	Num  int // 1-based, the first physical line this logical line started on
	Text string
}

// Split joins backslash-continued lines, strips "//" line comments
// (outside of brace-quoted spans), and returns one raw logical line per
// source line, 1-indexed by the *first* physical line it started on.
func Split(src string) []RawLine {
	physical := strings.Split(src, "\n")
	var out []RawLine
	i := 0
	for i < len(physical) {
		startNum := i + 1
		var buf strings.Builder
		for {
			line := stripComment(physical[i])
			trimmed := strings.TrimRight(line, "\r")
			if strings.HasSuffix(trimmed, "\\") {
				buf.WriteString(trimmed[:len(trimmed)-1])
				i++
				if i >= len(physical) {
					break
				}
				continue
			}
			buf.WriteString(trimmed)
			i++
			break
		}
		out = append(out, RawLine{Num: startNum, Text: buf.String()})
	}
	return out
}

// stripComment removes a "//" line comment that starts outside of a
// brace-quoted span (so lyrics text such as "l={a // b}" is untouched).
func stripComment(line string) string {
	depth := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '/':
			if depth == 0 && i+1 < len(line) && line[i+1] == '/' {
				return line[:i]
			}
		}
	}
	return line
}

// Classify types one already-joined logical line. file is used only to
// build error locations.
func Classify(file string, num int, text string) (Line, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Line{File: file, Num: num, Kind: -1}, nil
	}
	fields := strings.Fields(trimmed)
	head := fields[0]
	upper := strings.ToUpper(head)
	rest := strings.TrimSpace(trimmed[len(head):])

	switch {
	case upper == "INSTRUMENTS":
		return mk(file, num, InstrumentsOpen, rest), nil
	case upper == "META":
		return mk(file, num, MetaOpen, rest), nil
	case upper == "FUNCTION":
		return mk(file, num, FunctionDefOpen, rest), nil
	case upper == "END":
		return mk(file, num, End, rest), nil
	case upper == "CALL":
		return mk(file, num, Call, rest), nil
	case upper == "INCLUDEFILE":
		return mk(file, num, IncludeFile, rest), nil
	case upper == "INCLUDE":
		return mk(file, num, Include, rest), nil
	case upper == "VAR":
		return mk(file, num, Var, rest), nil
	case upper == "CONST":
		return mk(file, num, Const, rest), nil
	case upper == "CHORD":
		return mk(file, num, Chord, rest), nil
	case upper == "DEFINE":
		return mk(file, num, Define, rest), nil
	case head == "{":
		return mk(file, num, BlockOpen, strings.TrimSpace(trimmed[1:])), nil
	case head == "}":
		return mk(file, num, BlockClose, strings.TrimSpace(trimmed[1:])), nil
	case globalDirectives[strings.ToLower(head)]:
		return mk(file, num, Global, trimmed), nil
	case metaFields[strings.ToLower(head)]:
		return mk(file, num, MetaEntry, trimmed), nil
	case strings.ToLower(head) == "rest" || head == "r" || head == "R":
		return mk(file, num, RestCmd, trimmed), nil
	case isChannelRef(head):
		// The compiler still validates the channel number range and
		// raises UnknownChannelUse for undeclared channels; this layer
		// only recognizes the shape of a channel command.
		return mk(file, num, ChannelCmd, trimmed), nil
	default:
		return Line{}, compilerrors.New(file, num, 0, compilerrors.UnknownToken, "unrecognized line: "+head)
	}
}

// isChannelRef reports whether head looks like a channel reference: a
// decimal number or the percussion alias "p"/"P".
func isChannelRef(head string) bool {
	if head == "p" || head == "P" {
		return true
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return false
		}
	}
	return head != ""
}

func mk(file string, num int, kind Kind, rest string) Line {
	body, opts := splitOptions(rest)
	return Line{File: file, Num: num, Kind: kind, Rest: rest, Body: body, Options: opts}
}

// splitOptions finds the first top-level comma (outside brace-quoted
// spans) and splits the trailing option list off the command body.
func splitOptions(s string) (body string, opts string) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
			}
		}
	}
	return strings.TrimSpace(s), ""
}

// Lines classifies every logical line of src in order, stopping at the
// first UnknownToken.
func Lines(file, src string) ([]Line, error) {
	raw := Split(src)
	out := make([]Line, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		l, err := Classify(file, r.Num, r.Text)
		if err != nil {
			return nil, err
		}
		if l.Kind == -1 {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

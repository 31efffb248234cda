// Package dict holds the bidirectional note/percussion/keyword dictionary
// used by the executor to translate between MPL source text and MIDI
// numbers. It is loaded once per process and treated as read-only
// during compilation, the same "centralized tunable struct with a default
// constructor" shape the teacher uses for its own ParserConfig.
package dict

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Dict is the immutable note/percussion/keyword table. Zero value is not
// usable; construct with Default() or Load.
type Dict struct {
	// NoteNumbers maps a base note letter (lowercase a-g) to its
	// semitone offset from C in the octave-5 reference row.
	NoteNumbers map[string]int
	// Percussion maps a channel-9 shortcut keyword to its MIDI note
	// number (e.g. "bd1" -> 36).
	Percussion map[string]int
	// Keywords maps a case-insensitive source keyword to its canonical
	// spelling (e.g. "call" -> "CALL"), looked up through Canonical. The
	// lexer's own keyword recognition is fixed and does not consult it.
	Keywords map[string]string
	// BaseOctave is the octave number that carries no octave suffix.
	BaseOctave int
}

// Default returns the built-in dictionary: standard letter note names,
// the General MIDI percussion key map, and the MPL keyword table from
// §4.2/§6.
func Default() *Dict {
	return &Dict{
		NoteNumbers: map[string]int{
			"c": 0, "d": 2, "e": 4, "f": 5, "g": 7, "a": 9, "b": 11,
		},
		Percussion: map[string]int{
			"bd1": 36, "bd2": 35, "sd1": 38, "sd2": 40,
			"hhc": 42, "hho": 46, "hhp": 44,
			"cc1": 49, "cc2": 57, "rc1": 51, "rc2": 59,
			"lt1": 41, "lt2": 43, "mt1": 45, "mt2": 47, "ht1": 48, "ht2": 50,
			"cl": 75, "tamb": 54, "cwb": 56, "vibslap": 58,
		},
		Keywords: map[string]string{
			"instruments": "INSTRUMENTS", "meta": "META", "function": "FUNCTION",
			"end": "END", "call": "CALL", "include": "INCLUDE",
			"includefile": "INCLUDEFILE", "var": "VAR", "const": "CONST",
			"chord": "CHORD", "tempo": "tempo", "time": "time", "key": "key",
			"rest": "REST", "r": "REST", "p": "PERCUSSION",
		},
		BaseOctave: 5,
	}
}

// override is the subset of Dict that may be supplied by an external YAML
// document; omitted maps leave the corresponding default table untouched
// rather than clearing it.
type override struct {
	NoteNumbers map[string]int    `yaml:"note_numbers"`
	Percussion  map[string]int    `yaml:"percussion"`
	Keywords    map[string]string `yaml:"keywords"`
	BaseOctave  *int              `yaml:"base_octave"`
}

// Load builds the default dictionary and then merges in an optional YAML
// override document read from path. A missing path is not an error: the
// caller is expected to check os.IsNotExist itself if that distinction
// matters, since an absent override file simply means "use the defaults".
func Load(path string) (*Dict, error) {
	d := Default()
	if path == "" {
		return d, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ov override
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return nil, err
	}
	for k, v := range ov.NoteNumbers {
		d.NoteNumbers[k] = v
	}
	for k, v := range ov.Percussion {
		d.Percussion[k] = v
	}
	for k, v := range ov.Keywords {
		d.Keywords[k] = v
	}
	if ov.BaseOctave != nil {
		d.BaseOctave = *ov.BaseOctave
	}
	return d, nil
}

// NoteNumber resolves a note letter to an absolute MIDI note number.
// semitoneOffset is added on top of the letter's own base pitch (callers
// parsing "c+"/"c-" octave marks pass ±12 per mark, not ±1 — a octave
// mark shifts a full octave, not a chromatic semitone); octave is the
// token's explicit octave (defaulting to d.BaseOctave when the token
// carries none). Octave d.BaseOctave is anchored to MIDI 60 (middle C),
// matching the reference's "c" == 60.
func (d *Dict) NoteNumber(letter string, semitoneOffset int, octave int) (int, bool) {
	base, ok := d.NoteNumbers[letter]
	if !ok {
		return 0, false
	}
	return 60 + base + semitoneOffset + (octave-d.BaseOctave)*12, true
}

// PercussionNote resolves a channel-9 shortcut keyword to its MIDI note.
func (d *Dict) PercussionNote(shortcut string) (int, bool) {
	n, ok := d.Percussion[shortcut]
	return n, ok
}

// Canonical resolves a case-insensitive first token to its canonical
// keyword spelling, or returns ok=false if it is not a recognized keyword
// (callers then try it as a channel number, function/chord/variable name,
// etc. before raising UnknownToken).
func (d *Dict) Canonical(word string) (string, bool) {
	c, ok := d.Keywords[word]
	return c, ok
}

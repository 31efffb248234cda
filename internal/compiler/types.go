// Package compiler implements the two-pass executor/block engine: it
// turns MPL source into a sequence.Sequence, owning the sixteen-channel
// state, the option-frame chain, and function/chord/constant/variable
// storage described by the design notes.
package compiler

import (
	"github.com/mpl-lang/mplc/internal/chstate"
	"github.com/mpl-lang/mplc/internal/config"
	"github.com/mpl-lang/mplc/internal/dict"
	compilerrors "github.com/mpl-lang/mplc/internal/errors"
	"github.com/mpl-lang/mplc/internal/lexer"
	"github.com/mpl-lang/mplc/internal/sequence"
)

// function is a named macro body: an unresolved, unclassified span of raw
// lines, re-resolved and re-classified every time it is called (so that a
// global VAR mutated between two CALLs is observed by the second call).
type function struct {
	name    string
	defLine int
	body    []lexer.RawLine
}

// chordDef is a chord name resolved once, at definition time, to its
// fixed ordered set of MIDI note numbers.
type chordDef struct {
	name    string
	notes   []int
	defLine int
}

// instrumentEntry is one parsed line of an INSTRUMENTS block, applied to
// the channel bank before pass 2 executes any top-level line.
type instrumentEntry struct {
	channel int
	program int
	hasBank bool
	bankMSB int
	bankLSB int
	name    string
}

// exec carries every piece of mutable state a compilation owns. A fresh
// exec is built per call to Compile; nothing here is shared across
// compilations.
type exec struct {
	file string
	cfg  config.Config
	dict *dict.Dict

	functions map[string]*function
	chords    map[string]*chordDef
	consts    map[string]string

	vars map[string]string

	bank    *chstate.Bank
	builder *sequence.Builder

	callStack map[string]bool

	metaText string

	warnings []compilerrors.Warning
}

// Result is the successful outcome of a compilation.
type Result struct {
	Sequence *sequence.Sequence
	Warnings []compilerrors.Warning
}

package compiler

import (
	"github.com/mpl-lang/mplc/internal/chstate"
	"github.com/mpl-lang/mplc/internal/config"
	"github.com/mpl-lang/mplc/internal/dict"
	"github.com/mpl-lang/mplc/internal/sequence"
)

// Compile turns the MPL source text in src (the top-level file, named
// file for error locations and relative INCLUDE resolution) into a
// sequence.Sequence: includes are expanded, pass 1 pre-scans structure,
// and pass 2 executes the remaining top-level lines.
func Compile(file, src string, cfg config.Config, d *dict.Dict, load Loader) (*Result, error) {
	e := &exec{
		file:      file,
		cfg:       cfg,
		dict:      cloneDict(d, cfg),
		functions: map[string]*function{},
		chords:    map[string]*chordDef{},
		consts:    map[string]string{},
		vars:      map[string]string{},
		callStack: map[string]bool{},
		bank:      newBank(cfg),
		builder:   sequence.NewBuilder(cfg.Resolution),
	}

	flat, err := e.expandIncludes(file, src, load, map[string]bool{})
	if err != nil {
		return nil, err
	}
	top, err := e.pass1(flat)
	if err != nil {
		return nil, err
	}
	if err := e.pass2(top); err != nil {
		return nil, err
	}
	if e.metaText != "" {
		e.builder.EmitMeta(0, sequence.Text, []byte(e.metaText), 0)
	}
	return &Result{Sequence: e.builder.Finish(), Warnings: e.warnings}, nil
}

// newBank builds a channel bank seeded from cfg rather than chstate's own
// hard-coded defaults, so a caller's config overrides actually take
// effect.
func newBank(cfg config.Config) *chstate.Bank {
	b := chstate.NewBank()
	for i := range b.Channels {
		b.Channels[i].Velocity = cfg.DefaultVelocity
	}
	return b
}

// cloneDict makes a private, mutable copy of d: DEFINE (spec §4.2) edits
// the dictionary at runtime, and those edits must not leak into a
// dictionary the caller shares across multiple Compile calls. cfg's
// DefaultOctave overrides the dictionary's own base octave, the same way
// cfg.DefaultVelocity overrides the bank's channel defaults in newBank:
// the process-wide config wins over whatever the dictionary file shipped.
func cloneDict(d *dict.Dict, cfg config.Config) *dict.Dict {
	clone := &dict.Dict{
		NoteNumbers: make(map[string]int, len(d.NoteNumbers)),
		Percussion:  make(map[string]int, len(d.Percussion)),
		Keywords:    make(map[string]string, len(d.Keywords)),
		BaseOctave:  cfg.DefaultOctave,
	}
	for k, v := range d.NoteNumbers {
		clone.NoteNumbers[k] = v
	}
	for k, v := range d.Percussion {
		clone.Percussion[k] = v
	}
	for k, v := range d.Keywords {
		clone.Keywords[k] = v
	}
	return clone
}

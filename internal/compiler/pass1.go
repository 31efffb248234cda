package compiler

import (
	"strconv"
	"strings"

	"github.com/mpl-lang/mplc/internal/chstate"
	compilerrors "github.com/mpl-lang/mplc/internal/errors"
	"github.com/mpl-lang/mplc/internal/lexer"
)

// frameKind names the kind of block pass 1 is currently nested inside,
// for context-violation checks.
type frameKind int

const (
	frameTop frameKind = iota
	frameFunction
	frameBlock
	frameInstruments
	frameMeta
)

type openFrame struct {
	kind frameKind
	line int
	name string
}

// pass1 scans every line once without emitting any events. It collects
// function bodies, chord and constant definitions, applies the
// INSTRUMENTS block to the channel bank, builds the META text, and
// verifies structural balance. It returns the remaining top-level lines
// (with FUNCTION/INSTRUMENTS/META spans removed) for pass 2 to execute.
func (e *exec) pass1(lines []srcLine) ([]srcLine, error) {
	var stack []openFrame
	var top []srcLine
	var curFunc *function
	var instrEntries []instrumentEntry
	var metaLines []string

	// appendLine appends into the right destination regardless of how many
	// nested blocks separate the current line from an enclosing FUNCTION:
	// function bodies are collected whole, blocks alone stay in top.
	insideFunc := func() bool {
		for _, f := range stack {
			if f.kind == frameFunction {
				return true
			}
		}
		return false
	}
	appendLine := func(sl srcLine) {
		if insideFunc() {
			curFunc.body = append(curFunc.body, lexer.RawLine{Num: sl.num, Text: sl.text})
		} else {
			top = append(top, sl)
		}
	}

	i := 0
	for i < len(lines) {
		sl := lines[i]
		trimmed := strings.TrimSpace(sl.text)
		if trimmed == "" {
			i++
			continue
		}
		l, err := lexer.Classify(sl.file, sl.num, sl.text)
		if err != nil {
			return nil, err
		}
		ctx := frameTop
		if len(stack) > 0 {
			ctx = stack[len(stack)-1].kind
		}

		switch l.Kind {
		case lexer.FunctionDefOpen:
			if ctx != frameTop {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "FUNCTION not allowed inside a block or function")
			}
			name := strings.TrimSpace(l.Body)
			if _, ok := e.functions[name]; ok {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.Redefinition, "function redefined: "+name)
			}
			curFunc = &function{name: name, defLine: sl.num}
			e.functions[name] = curFunc
			stack = append(stack, openFrame{kind: frameFunction, line: sl.num, name: name})

		case lexer.InstrumentsOpen:
			if ctx != frameTop {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "INSTRUMENTS not allowed inside a block or function")
			}
			stack = append(stack, openFrame{kind: frameInstruments, line: sl.num})

		case lexer.MetaOpen:
			if ctx != frameTop {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "META not allowed inside a block or function")
			}
			stack = append(stack, openFrame{kind: frameMeta, line: sl.num})

		case lexer.BlockOpen:
			if ctx == frameInstruments || ctx == frameMeta {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "block not allowed inside INSTRUMENTS/META")
			}
			stack = append(stack, openFrame{kind: frameBlock, line: sl.num})
			appendLine(sl)

		case lexer.BlockClose:
			if len(stack) == 0 || stack[len(stack)-1].kind != frameBlock {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.StructuralMismatch, "unmatched '}'")
			}
			stack = stack[:len(stack)-1]
			appendLine(sl)

		case lexer.End:
			if len(stack) == 0 {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.StructuralMismatch, "unmatched END")
			}
			closed := stack[len(stack)-1]
			if closed.kind == frameBlock {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.StructuralMismatch, "expected '}', found END")
			}
			stack = stack[:len(stack)-1]
			switch closed.kind {
			case frameFunction:
				curFunc = nil
			case frameInstruments:
				for _, ie := range instrEntries {
					applyInstrumentEntry(e, ie)
				}
				instrEntries = nil
			case frameMeta:
				e.metaText = strings.Join(metaLines, "\n")
				metaLines = nil
			}

		case lexer.Include, lexer.IncludeFile:
			// expandIncludes (include.go) already rejects a nested
			// INCLUDE/INCLUDEFILE before pass 1 ever runs, and replaces
			// every top-level one with its target's contents, so this
			// case is unreachable in practice. Kept as a second line of
			// defense in case that invariant ever breaks.
			return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "INCLUDE not allowed inside a block or function")

		case lexer.Global:
			if ctx != frameTop {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "global directive not allowed inside a block, function, INSTRUMENTS, or META")
			}
			top = append(top, sl)

		case lexer.Const:
			name, val, err := parseAssignment(sl.file, sl.num, l.Body)
			if err != nil {
				return nil, err
			}
			if _, ok := e.consts[name]; ok {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.Redefinition, "constant redefined: "+name)
			}
			e.consts[name] = val
			if ctx == frameInstruments || ctx == frameMeta {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "CONST not allowed inside INSTRUMENTS/META")
			}
			appendLine(sl)

		case lexer.Var:
			if ctx == frameInstruments {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "VAR not allowed inside INSTRUMENTS")
			}
			if ctx == frameMeta {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "VAR not allowed inside META")
			}
			appendLine(sl)

		case lexer.Chord:
			if ctx == frameFunction || ctx == frameInstruments || ctx == frameMeta {
				return nil, compilerrors.New(sl.file, sl.num, 0, compilerrors.ContextViolation, "CHORD not allowed inside a FUNCTION, INSTRUMENTS, or META")
			}
			// The note list is itself comma-separated, so the whole of
			// Rest is the definition (Body stops at the first comma).
			name, notesText, err := parseAssignment(sl.file, sl.num, l.Rest)
			if err != nil {
				return nil, err
			}
			if err := e.defineChord(sl.file, sl.num, name, notesText); err != nil {
				return nil, err
			}

		default:
			if ctx == frameInstruments {
				ie, err := parseInstrumentEntry(sl.file, sl.num, l)
				if err != nil {
					return nil, err
				}
				instrEntries = append(instrEntries, ie)
			} else if ctx == frameMeta {
				metaLines = append(metaLines, decodeMetaLine(sl.text))
			} else if ctx == frameFunction {
				curFunc.body = append(curFunc.body, lexer.RawLine{Num: sl.num, Text: sl.text})
			} else {
				top = append(top, sl)
			}
		}
		i++
	}
	if len(stack) > 0 {
		unclosed := stack[len(stack)-1]
		what := "{"
		if unclosed.kind == frameFunction {
			what = "FUNCTION " + unclosed.name
		} else if unclosed.kind == frameInstruments {
			what = "INSTRUMENTS"
		} else if unclosed.kind == frameMeta {
			what = "META"
		}
		return nil, compilerrors.New(e.file, unclosed.line, 0, compilerrors.StructuralMismatch, "unclosed "+what+" opened here")
	}
	return top, nil
}

// decodeMetaLine trims a META block line and, for its soft-karaoke
// "lyrics <text>" field, RP-026-decodes the text (composing with the l=
// option's own underscore/comma mapping via decodeLyrics). Every other
// META field (copyright, title, composer, lyricist, artist) is carried
// through verbatim.
func decodeMetaLine(raw string) string {
	trimmed := strings.TrimSpace(raw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "lyrics") {
		return trimmed
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
	return fields[0] + " " + decodeLyrics(rest)
}

// parseAssignment splits "$name = value" (already past the leading
// CONST/VAR/CHORD keyword) into the bare name and the raw value text.
func parseAssignment(file string, line int, body string) (string, string, error) {
	i := strings.IndexByte(body, '=')
	if i < 0 {
		return "", "", compilerrors.New(file, line, 0, compilerrors.LexError, "expected '=' in assignment")
	}
	name := strings.TrimSpace(body[:i])
	name = strings.TrimPrefix(name, "$")
	val := strings.TrimSpace(body[i+1:])
	if name == "" {
		return "", "", compilerrors.New(file, line, 0, compilerrors.LexError, "missing name in assignment")
	}
	return name, val, nil
}

func (e *exec) defineChord(file string, line int, name, notesText string) error {
	if _, ok := e.chords[name]; ok {
		return compilerrors.New(file, line, 0, compilerrors.Redefinition, "chord redefined: "+name)
	}
	if _, ok := e.resolveNoteToken(name, false); ok {
		return compilerrors.New(file, line, 0, compilerrors.Redefinition, "chord name collides with a note name: "+name)
	}
	if _, ok := e.dict.PercussionNote(name); ok {
		return compilerrors.New(file, line, 0, compilerrors.Redefinition, "chord name collides with a percussion shortcut: "+name)
	}
	parts := strings.Split(notesText, ",")
	if len(parts) == 0 || len(parts) > 3*12 {
		return compilerrors.New(file, line, 0, compilerrors.BadOption, "chord must name at least one note: "+name)
	}
	notes := make([]int, 0, len(parts))
	for _, p := range parts {
		n, ok := e.resolveNoteToken(strings.TrimSpace(p), false)
		if !ok {
			return compilerrors.New(file, line, 0, compilerrors.UnknownNote, "unknown note in chord definition: "+p)
		}
		notes = append(notes, n)
	}
	e.chords[name] = &chordDef{name: name, notes: notes, defLine: line}
	return nil
}

func parseInstrumentEntry(file string, line int, l lexer.Line) (instrumentEntry, error) {
	fields := strings.Fields(l.Rest)
	if len(fields) < 2 {
		return instrumentEntry{}, compilerrors.New(file, line, 0, compilerrors.BadOption, "malformed INSTRUMENTS entry")
	}
	ch, ok := chstate.Resolve(fields[0])
	if !ok {
		return instrumentEntry{}, compilerrors.New(file, line, 0, compilerrors.UnknownChannelUse, "bad channel in INSTRUMENTS entry: "+fields[0])
	}
	progSpec := fields[1]
	name := strings.Join(fields[2:], " ")
	ie := instrumentEntry{channel: ch, name: name}
	progParts := strings.Split(progSpec, "/")
	p, err := strconv.Atoi(progParts[0])
	if err != nil || p < 0 || p > 127 {
		if progParts[0] == "piano" {
			p = 0
		} else {
			return instrumentEntry{}, compilerrors.New(file, line, 0, compilerrors.BadOption, "bad program number: "+progParts[0])
		}
	}
	ie.program = p
	if len(progParts) >= 2 {
		msb, err := strconv.Atoi(progParts[1])
		if err != nil || msb < 0 || msb > 127 {
			return instrumentEntry{}, compilerrors.New(file, line, 0, compilerrors.BankOutOfRange, "bad bank MSB: "+progParts[1])
		}
		ie.hasBank = true
		ie.bankMSB = msb
	}
	if len(progParts) >= 3 {
		lsb, err := strconv.Atoi(progParts[2])
		if err != nil || lsb < 0 || lsb > 127 {
			return instrumentEntry{}, compilerrors.New(file, line, 0, compilerrors.BankOutOfRange, "bad bank LSB: "+progParts[2])
		}
		ie.bankLSB = lsb
	}
	return ie, nil
}

func applyInstrumentEntry(e *exec, ie instrumentEntry) {
	ch := &e.bank.Channels[ie.channel]
	ch.Program = ie.program
	ch.Declared = true
	if ie.hasBank {
		ch.BankMSB = ie.bankMSB
		ch.BankLSB = ie.bankLSB
	}
	if ie.name != "" {
		ch.Name = ie.name
	}
	e.builder.EmitBankSelect(ie.channel, ch.BankMSB, ch.BankLSB, 0)
	e.builder.EmitProgramChange(ie.channel, ch.Program, 0)
	if ch.Name != "" {
		e.builder.EmitInstrumentName(ie.channel, ch.Name, 0)
	}
}

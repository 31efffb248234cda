package compiler

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/mpl-lang/mplc/internal/chstate"
	"github.com/mpl-lang/mplc/internal/duration"
	compilerrors "github.com/mpl-lang/mplc/internal/errors"
	"github.com/mpl-lang/mplc/internal/lexer"
	"github.com/mpl-lang/mplc/internal/option"
	"github.com/mpl-lang/mplc/internal/sequence"
)

// pass2 executes the top-level lines pass 1 left behind, under the root
// option frame.
func (e *exec) pass2(lines []srcLine) error {
	return e.execLines(lines, 0, len(lines), option.Root())
}

// execLines walks lines[start:end] under frame, recursing into each
// nested block it finds and dispatching every other kind of line to its
// handler.
func (e *exec) execLines(lines []srcLine, start, end int, frame *option.Frame) error {
	i := start
	for i < end {
		sl := lines[i]
		// Classify the raw, unresolved text first: a VAR/CONST line's
		// assignment target is a bare name, never a "$name" reference, so
		// resolving the whole line before classifying would try (and
		// fail, or worse, silently mis-substitute) to resolve the very
		// name a VAR line is about to define. Each case below resolves
		// only the value-bearing text it actually needs.
		l, err := lexer.Classify(sl.file, sl.num, sl.text)
		if err != nil {
			return err
		}

		switch l.Kind {
		case lexer.BlockOpen:
			closeIdx, err := findBlockEnd(lines, i, end)
			if err != nil {
				return err
			}
			// A block header carries only an option list, with no
			// preceding command name, so the whole of Rest is the list
			// (Body/Options would wrongly treat its first option as a
			// name).
			header, err := e.resolve(sl.file, sl.num, l.Rest)
			if err != nil {
				return err
			}
			raws, err := option.Parse(sl.file, sl.num, header)
			if err != nil {
				return err
			}
			child, err := option.Child(frame, raws)
			if err != nil {
				return err
			}
			if err := e.runRepeated(lines, i+1, closeIdx, child); err != nil {
				return err
			}
			i = closeIdx + 1

		case lexer.BlockClose:
			return compilerrors.New(sl.file, sl.num, 0, compilerrors.StructuralMismatch, "unmatched '}'")

		case lexer.Call:
			name := strings.TrimSpace(l.Body)
			fn, ok := e.functions[name]
			if !ok {
				return compilerrors.New(sl.file, sl.num, 0, compilerrors.UnknownToken, "unknown function: "+name)
			}
			if e.callStack[name] {
				return compilerrors.New(sl.file, sl.num, 0, compilerrors.RecursiveCall, "recursive call to function: "+name)
			}
			opts, err := e.resolve(sl.file, sl.num, l.Options)
			if err != nil {
				return err
			}
			raws, err := option.Parse(sl.file, sl.num, opts)
			if err != nil {
				return err
			}
			child, err := option.Child(frame, raws)
			if err != nil {
				return err
			}
			body := make([]srcLine, len(fn.body))
			for k, rl := range fn.body {
				body[k] = srcLine{file: sl.file, num: rl.Num, text: rl.Text}
			}
			e.callStack[name] = true
			err = e.runRepeated(body, 0, len(body), child)
			delete(e.callStack, name)
			if err != nil {
				return err
			}
			i++

		case lexer.ChannelCmd:
			body, err := e.resolve(sl.file, sl.num, l.Body)
			if err != nil {
				return err
			}
			opts, err := e.resolve(sl.file, sl.num, l.Options)
			if err != nil {
				return err
			}
			if err := e.execChannelCmd(sl.file, sl.num, body, opts, frame); err != nil {
				return err
			}
			i++

		case lexer.RestCmd:
			body, err := e.resolve(sl.file, sl.num, l.Body)
			if err != nil {
				return err
			}
			opts, err := e.resolve(sl.file, sl.num, l.Options)
			if err != nil {
				return err
			}
			if err := e.execRest(sl.file, sl.num, body, opts, frame); err != nil {
				return err
			}
			i++

		case lexer.Global:
			body, err := e.resolve(sl.file, sl.num, l.Body)
			if err != nil {
				return err
			}
			if err := e.execGlobal(sl.file, sl.num, body); err != nil {
				return err
			}
			i++

		case lexer.Var:
			name, rawVal, err := parseAssignment(sl.file, sl.num, l.Body)
			if err != nil {
				return err
			}
			val, err := e.resolve(sl.file, sl.num, rawVal)
			if err != nil {
				return err
			}
			e.vars[name] = val
			i++

		case lexer.Define:
			body, err := e.resolve(sl.file, sl.num, l.Body)
			if err != nil {
				return err
			}
			if err := e.execDefine(sl.file, sl.num, body); err != nil {
				return err
			}
			i++

		case lexer.Const, lexer.Chord:
			// Registered in pass 1; nothing left to do at this point.
			i++

		default:
			i++
		}
	}
	return nil
}

// findBlockEnd returns the index of the BlockClose matching the
// BlockOpen at lines[openIdx], scanning no further than end.
func findBlockEnd(lines []srcLine, openIdx, end int) (int, error) {
	depth := 1
	for j := openIdx + 1; j < end; j++ {
		l, err := lexer.Classify(lines[j].file, lines[j].num, lines[j].text)
		if err != nil {
			return 0, err
		}
		switch l.Kind {
		case lexer.BlockOpen:
			depth++
		case lexer.BlockClose:
			depth--
			if depth == 0 {
				return j, nil
			}
		}
	}
	sl := lines[openIdx]
	return 0, compilerrors.New(sl.file, sl.num, 0, compilerrors.StructuralMismatch, "unclosed '{' opened here")
}

// runRepeated executes lines[start:end] under frame frame.Quantity times,
// restoring the pre-entry tick snapshot once at the end if frame.Multiple
// is set. q=0 runs the body zero times and has no effect at all.
func (e *exec) runRepeated(lines []srcLine, start, end int, frame *option.Frame) error {
	if frame.Quantity == 0 {
		return nil
	}
	snapshot := e.bank.Snapshot()
	for k := 0; k < frame.Quantity; k++ {
		if err := e.execLines(lines, start, end, frame); err != nil {
			return err
		}
	}
	if frame.Multiple {
		e.bank.Restore(snapshot)
	}
	return nil
}

// execChannelCmd executes "<ch> <note-or-chord-or-rest> <length>[, opts]",
// given its already $-resolved body and option-list text.
func (e *exec) execChannelCmd(file string, line int, body, opts string, frame *option.Frame) error {
	fields := strings.Fields(body)
	if len(fields) != 3 {
		return compilerrors.New(file, line, 0, compilerrors.LexError, "malformed channel command: "+body)
	}
	ch, ok := chstate.Resolve(fields[0])
	if !ok {
		return compilerrors.New(file, line, 0, compilerrors.UnknownChannelUse, "bad channel reference: "+fields[0])
	}
	raws, err := option.Parse(file, line, opts)
	if err != nil {
		return err
	}
	child, err := option.Child(frame, raws)
	if err != nil {
		return err
	}
	if strings.EqualFold(fields[1], "rest") || fields[1] == "r" || fields[1] == "R" {
		return e.advanceWithRest(file, line, ch, fields[2], raws, child)
	}

	notes, ok := e.resolveNotes(fields[1], ch)
	if !ok {
		return compilerrors.New(file, line, 0, compilerrors.UnknownNote, "unknown note, chord, or percussion shortcut: "+fields[1])
	}
	lengthTicks, err := duration.Parse(fields[2], e.cfg.Resolution)
	if err != nil {
		return compilerrors.New(file, line, 0, compilerrors.BadLength, err.Error())
	}
	if lengthTicks == 0 {
		e.warnings = append(e.warnings, compilerrors.Warning{File: file, Line: line, Message: "note length rounds to 0 ticks and will not sound: " + fields[2]})
	}

	velocity := e.effectiveVelocity(child, ch)
	ratio := e.effectiveDurationRatio(child, ch)
	shift := e.bank.Channels[ch].OctaveShift + child.EffectiveShift()
	tremolo := tremoloSubdivisions(raws)

	snapshot := e.bank.Snapshot()
	for rep := 0; rep < child.Quantity; rep++ {
		if err := e.emitNoteEvent(ch, notes, shift, velocity, ratio, lengthTicks, tremolo); err != nil {
			return err
		}
	}
	if child.Multiple {
		e.bank.Restore(snapshot)
	}
	if lyrics, ok := lyricsValue(raws); ok {
		e.builder.EmitMeta(0, sequence.Lyrics, []byte(decodeLyrics(lyrics)), e.bank.Channels[ch].CurrentTick)
	}
	return nil
}

// emitNoteEvent emits one note/chord/tremolo cycle on ch at its current
// tick, then advances its tick by lengthTicks.
func (e *exec) emitNoteEvent(ch int, notes []int, shift, velocity int, ratio *big.Rat, lengthTicks int, tremolo int) error {
	state := &e.bank.Channels[ch]
	if tremolo <= 1 {
		tick := state.CurrentTick
		for _, n := range notes {
			sounding := clampNote(n + shift)
			e.builder.EmitNoteOn(ch, sounding, velocity, tick)
			off := tick + duration.RoundHalfUp(lengthTicks, ratio)
			e.builder.EmitNoteOff(ch, sounding, off)
		}
		state.CurrentTick += lengthTicks
		return nil
	}
	base := lengthTicks / tremolo
	remainder := lengthTicks - base*tremolo
	tick := state.CurrentTick
	for k := 0; k < tremolo; k++ {
		subLen := base
		if k == tremolo-1 {
			subLen += remainder
		}
		for _, n := range notes {
			sounding := clampNote(n + shift)
			e.builder.EmitNoteOn(ch, sounding, velocity, tick)
			off := tick + duration.RoundHalfUp(subLen, ratio)
			e.builder.EmitNoteOff(ch, sounding, off)
		}
		tick += subLen
	}
	state.CurrentTick += lengthTicks
	return nil
}

func clampNote(n int) int {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return n
}

// advanceWithRest handles the channel-qualified rest form ("0 rest /4").
func (e *exec) advanceWithRest(file string, line int, ch int, lengthTok string, raws []option.Raw, frame *option.Frame) error {
	lengthTicks, err := duration.Parse(lengthTok, e.cfg.Resolution)
	if err != nil {
		return compilerrors.New(file, line, 0, compilerrors.BadLength, err.Error())
	}
	snapshot := e.bank.Snapshot()
	for rep := 0; rep < frame.Quantity; rep++ {
		if lyrics, ok := lyricsValue(raws); ok {
			e.builder.EmitMeta(0, sequence.Lyrics, []byte(decodeLyrics(lyrics)), e.bank.Channels[ch].CurrentTick)
		}
		e.bank.Channels[ch].CurrentTick += lengthTicks
	}
	if frame.Multiple {
		e.bank.Restore(snapshot)
	}
	return nil
}

// execRest handles the bare, channel-less "rest <length>" / "r <length>"
// shorthand, applied to channel 0.
func (e *exec) execRest(file string, line int, body, opts string, frame *option.Frame) error {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return compilerrors.New(file, line, 0, compilerrors.LexError, "malformed rest: "+body)
	}
	raws, err := option.Parse(file, line, opts)
	if err != nil {
		return err
	}
	child, err := option.Child(frame, raws)
	if err != nil {
		return err
	}
	return e.advanceWithRest(file, line, 0, fields[1], raws, child)
}

// execGlobal handles "tempo <bpm>", "time <num>/<den>", "key <note>/<mode>".
func (e *exec) execGlobal(file string, line int, body string) error {
	fields := strings.Fields(body)
	if len(fields) != 2 {
		return compilerrors.New(file, line, 0, compilerrors.LexError, "malformed global directive: "+body)
	}
	tick := e.bank.MaxCurrentTick()
	switch strings.ToLower(fields[0]) {
	case "tempo":
		bpm, err := strconv.Atoi(fields[1])
		if err != nil || bpm <= 0 {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "bad tempo value: "+fields[1])
		}
		usec := (60000000 + bpm/2) / bpm
		e.builder.EmitMeta(0, sequence.SetTempo, []byte{byte(usec >> 16), byte(usec >> 8), byte(usec)}, tick)
	case "time":
		num, den, ok := splitPair(fields[1])
		if !ok {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "bad time signature: "+fields[1])
		}
		n, err1 := strconv.Atoi(num)
		d, err2 := strconv.Atoi(den)
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "bad time signature: "+fields[1])
		}
		e.builder.EmitMeta(0, sequence.TimeSig, []byte{byte(n), byte(log2(d)), 24, 8}, tick)
	case "key":
		note, mode, ok := splitPair(fields[1])
		if !ok {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "bad key signature: "+fields[1])
		}
		sf, mi, ok := keySignature(note, mode)
		if !ok {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "unrecognized key: "+fields[1])
		}
		e.builder.EmitMeta(0, sequence.KeySig, []byte{byte(sf), byte(mi)}, tick)
	default:
		return compilerrors.New(file, line, 0, compilerrors.UnknownToken, "unknown global directive: "+fields[0])
	}
	e.bank.SyncTo(tick)
	return nil
}

// execDefine extends the runtime dictionary: "DEFINE note|percussion|keyword name = value".
func (e *exec) execDefine(file string, line int, body string) error {
	fields := strings.Fields(body)
	if len(fields) < 2 {
		return compilerrors.New(file, line, 0, compilerrors.LexError, "malformed DEFINE: "+body)
	}
	category := strings.ToLower(fields[0])
	name, val, err := parseAssignment(file, line, strings.Join(fields[1:], " "))
	if err != nil {
		return err
	}
	switch category {
	case "note":
		n, err := strconv.Atoi(val)
		if err != nil {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "DEFINE note value must be an integer offset: "+val)
		}
		e.dict.NoteNumbers[strings.ToLower(name)] = n
	case "percussion":
		n, err := strconv.Atoi(val)
		if err != nil {
			return compilerrors.New(file, line, 0, compilerrors.BadOption, "DEFINE percussion value must be a MIDI note number: "+val)
		}
		e.dict.Percussion[strings.ToLower(name)] = n
	case "keyword":
		e.dict.Keywords[strings.ToLower(name)] = val
	default:
		return compilerrors.New(file, line, 0, compilerrors.BadOption, "unknown DEFINE category: "+category)
	}
	return nil
}

func splitPair(s string) (string, string, bool) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func log2(n int) int {
	p := 0
	for n > 1 {
		n >>= 1
		p++
	}
	return p
}

// keySignature maps a "<note>/<mode>" pair to the MIDI key-signature
// meta event's (sharps-or-flats, major-or-minor) byte pair, via the
// circle of fifths.
func keySignature(note, mode string) (sf, mi int, ok bool) {
	majors := map[string]int{
		"cb": -7, "gb": -6, "db": -5, "ab": -4, "eb": -3, "bb": -2, "f": -1,
		"c": 0, "g": 1, "d": 2, "a": 3, "e": 4, "b": 5, "f#": 6, "c#": 7,
	}
	n := strings.ToLower(note)
	switch strings.ToLower(mode) {
	case "major", "maj", "":
		sf, ok = majors[n]
		return sf, 0, ok
	case "minor", "min":
		// the relative minor sits three semitones (a minor third) below
		// its major and shares its key signature, so it is looked up
		// through that major.
		relMajor := map[string]string{
			"a": "c", "e": "g", "b": "d", "f#": "a", "c#": "e", "g#": "b", "d#": "f#",
			"d": "f", "g": "bb", "c": "eb", "f": "ab", "bb": "db", "eb": "gb", "ab": "cb",
		}
		rm, found := relMajor[n]
		if !found {
			return 0, 0, false
		}
		sf, ok = majors[rm]
		return sf, 1, ok
	default:
		return 0, 0, false
	}
}

func tremoloSubdivisions(raws []option.Raw) int {
	for _, r := range raws {
		if r.Key == option.Tremolo {
			n, err := strconv.Atoi(r.Value)
			if err == nil && n > 1 {
				return n
			}
			return 1
		}
	}
	return 1
}

func lyricsValue(raws []option.Raw) (string, bool) {
	for _, r := range raws {
		if r.Key == option.Lyrics {
			return r.Value, true
		}
	}
	return "", false
}

// decodeLyrics applies the lexer's l=/lyrics option-value mapping
// (underscore to space, "\c" to a literal comma) together with RP-026
// karaoke escaping ("\/" to a literal slash, "\\" to a literal backslash)
// in a single left-to-right pass. The two compose rather than one
// replacing the other: a bare, unescaped "/" or "\" must survive
// untouched, since those are the RP-026 paragraph/line separators, not
// characters to be stripped or substituted. Used both for a per-note l=
// option value and for the META block's soft-karaoke lines.
func decodeLyrics(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'c':
				b.WriteByte(',')
				i++
				continue
			case '/':
				b.WriteByte('/')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		if c == '_' {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (e *exec) effectiveVelocity(frame *option.Frame, ch int) int {
	if v, ok := frame.EffectiveVelocity(); ok {
		return v
	}
	return e.bank.Channels[ch].Velocity
}

func (e *exec) effectiveDurationRatio(frame *option.Frame, ch int) *big.Rat {
	text, ok := frame.EffectiveDuration()
	if !ok {
		return e.bank.Channels[ch].DurationRatio
	}
	if r, ok := parseDurationRatio(text); ok {
		return r
	}
	return e.bank.Channels[ch].DurationRatio
}

// parseDurationRatio parses "75%" or the deterministic midpoint of a
// "0.5..1.5" range into a rational duration_ratio.
func parseDurationRatio(text string) (*big.Rat, bool) {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
		if err != nil {
			return nil, false
		}
		return new(big.Rat).SetFloat64(f / 100), true
	}
	if i := strings.Index(text, ".."); i >= 0 {
		lo, err1 := strconv.ParseFloat(text[:i], 64)
		hi, err2 := strconv.ParseFloat(text[i+2:], 64)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		return new(big.Rat).SetFloat64((lo + hi) / 2), true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false
	}
	return new(big.Rat).SetFloat64(f), true
}

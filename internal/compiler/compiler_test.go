package compiler

import (
	"os"
	"testing"

	"github.com/mpl-lang/mplc/internal/config"
	"github.com/mpl-lang/mplc/internal/dict"
	compilerrors "github.com/mpl-lang/mplc/internal/errors"
	"github.com/mpl-lang/mplc/internal/sequence"
	"github.com/pkg/errors"
)

func failingLoader(path string) (string, error) {
	return "", os.ErrNotExist
}

func channelTrack(seq *sequence.Sequence, ch int) sequence.Track {
	return seq.Tracks[sequence.NumMetaTracks+ch]
}

func TestCompileSingleNote(t *testing.T) {
	res, err := Compile("t.mpl", "0 c /4\n", config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	events := channelTrack(res.Sequence, 0).Events
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (on/off): %+v", len(events), events)
	}
	on, off := events[0], events[1]
	if on.Kind != sequence.NoteOn || on.Note != 60 || on.Tick != 0 || on.Velocity != 64 {
		t.Fatalf("unexpected note-on: %+v", on)
	}
	if off.Kind != sequence.NoteOff || off.Note != 60 || off.Tick != 480 {
		t.Fatalf("unexpected note-off: %+v", off)
	}
}

func TestCompileChordSharesOnsetAndReleaseTick(t *testing.T) {
	src := "CHORD maj = c,e,g\n0 maj /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	events := channelTrack(res.Sequence, 0).Events
	if len(events) != 6 {
		t.Fatalf("got %d events, want 6 (3 note-on + 3 note-off): %+v", len(events), events)
	}
	wantNotes := map[int]bool{60: true, 64: true, 67: true}
	for _, e := range events[:3] {
		if e.Kind != sequence.NoteOn || e.Tick != 0 || !wantNotes[e.Note] {
			t.Errorf("unexpected chord note-on: %+v", e)
		}
	}
	for _, e := range events[3:] {
		if e.Kind != sequence.NoteOff || e.Tick != 480 || !wantNotes[e.Note] {
			t.Errorf("unexpected chord note-off: %+v", e)
		}
	}
}

func TestCompileBlockMultipleRestoresTicks(t *testing.T) {
	src := "{ q=3,m\n0 c /4\n}\n1 d /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 6 {
		t.Fatalf("channel 0 got %d events, want 6 (3 repetitions x on/off): %+v", len(ch0), ch0)
	}
	// m restores the ticks once, after the last repetition, so the
	// repetitions themselves still follow one another.
	for i := 0; i < 3; i++ {
		on, off := ch0[2*i], ch0[2*i+1]
		if on.Tick != 480*i || off.Tick != 480*(i+1) {
			t.Fatalf("repetition %d should span ticks %d..%d, got on=%d off=%d", i, 480*i, 480*(i+1), on.Tick, off.Tick)
		}
	}
	// channel 1, outside the block, is untouched by the block's m reset.
	ch1 := channelTrack(res.Sequence, 1).Events
	if len(ch1) != 2 || ch1[0].Tick != 0 {
		t.Fatalf("channel 1 unexpected events: %+v", ch1)
	}
}

func TestCompileBlockWithoutMultipleAdvancesTicks(t *testing.T) {
	src := "{ q=3\n0 c /4\n}\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 6 {
		t.Fatalf("got %d events, want 6: %+v", len(ch0), ch0)
	}
	wantOnsets := []int{0, 480, 960}
	for i, want := range wantOnsets {
		if ch0[2*i].Tick != want {
			t.Errorf("repetition %d onset = %d, want %d", i, ch0[2*i].Tick, want)
		}
	}
}

func TestCompileFunctionCallAndShiftComposition(t *testing.T) {
	src := "FUNCTION riff\n0 c /4\nEND\nCALL riff, s=12\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 2 || ch0[0].Note != 72 {
		t.Fatalf("shift=12 should raise c (60) to 72, got: %+v", ch0)
	}
}

func TestCompileRecursiveCallIsRejected(t *testing.T) {
	src := "FUNCTION riff\nCALL riff\nEND\nCALL riff\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err == nil {
		t.Fatalf("expected a RecursiveCall error")
	}
}

func TestCompileRedefinedFunctionIsRejected(t *testing.T) {
	src := "FUNCTION riff\n0 c /4\nEND\nFUNCTION riff\n0 d /4\nEND\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err == nil {
		t.Fatalf("expected a Redefinition error")
	}
}

func TestCompileChordInsideFunctionIsRejected(t *testing.T) {
	src := "FUNCTION riff\nCHORD maj = c,e,g\n0 c /4\nEND\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	ce, ok := err.(*compilerrors.CompileError)
	if !ok {
		t.Fatalf("expected a *compilerrors.CompileError, got %T: %v", err, err)
	}
	if ce.Kind != compilerrors.ContextViolation {
		t.Fatalf("expected Kind=ContextViolation, got %v", ce.Kind)
	}
}

func TestCompileChordInsideInstrumentsIsRejected(t *testing.T) {
	src := "INSTRUMENTS\nCHORD maj = c,e,g\n0 5 Piano\nEND\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	ce, ok := err.(*compilerrors.CompileError)
	if !ok {
		t.Fatalf("expected a *compilerrors.CompileError, got %T: %v", err, err)
	}
	if ce.Kind != compilerrors.ContextViolation {
		t.Fatalf("expected Kind=ContextViolation, got %v", ce.Kind)
	}
}

func TestCompileUnclosedBlockIsStructuralMismatch(t *testing.T) {
	src := "{ q=2\n0 c /4\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err == nil {
		t.Fatalf("expected a StructuralMismatch error for an unclosed block")
	}
}

func TestCompileInstrumentsBlockAppliesProgramAndBank(t *testing.T) {
	src := "INSTRUMENTS\n0 5/1/2 Electric_Piano\nEND\n0 c /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	// bank MSB, bank LSB, program change, instrument name, then the note.
	if len(ch0) < 4 {
		t.Fatalf("expected at least 4 setup events, got %d: %+v", len(ch0), ch0)
	}
	if ch0[0].Kind != sequence.ControlChange || ch0[0].CtrlNum != 0x00 || ch0[0].CtrlVal != 1 {
		t.Fatalf("unexpected bank MSB event: %+v", ch0[0])
	}
	if ch0[1].Kind != sequence.ControlChange || ch0[1].CtrlNum != 0x20 || ch0[1].CtrlVal != 2 {
		t.Fatalf("unexpected bank LSB event: %+v", ch0[1])
	}
	if ch0[2].Kind != sequence.ProgramChange || ch0[2].Program != 5 {
		t.Fatalf("unexpected program change event: %+v", ch0[2])
	}
}

func TestCompileGlobalTempoSynchronizesChannels(t *testing.T) {
	src := "0 c 1\n1 c /4\ntempo 120\n1 d /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	meta := res.Sequence.Tracks[0].Events
	found := false
	for _, e := range meta {
		if e.Kind == sequence.Meta && e.MetaKind == sequence.SetTempo {
			found = true
			if e.Tick != 1920 {
				t.Fatalf("tempo meta should land at the max channel tick (1920), got %d", e.Tick)
			}
		}
	}
	if !found {
		t.Fatalf("no SetTempo meta event found: %+v", meta)
	}
	// the second note on channel 1 is issued after the tempo directive,
	// so its onset should have been pulled forward to the synchronized
	// tick rather than channel 1's own un-synced 480.
	ch1 := channelTrack(res.Sequence, 1).Events
	if ch1[2].Tick != 1920 {
		t.Fatalf("channel 1's post-sync note onset = %d, want 1920 (synchronized): %+v", ch1[2].Tick, ch1)
	}
}

// wrappedMissingLoader mirrors cmd/mplc's loadFile: it wraps the
// underlying os.ErrNotExist with pkg/errors.Wrap instead of returning it
// bare, the way a real filesystem-backed Loader does.
func wrappedMissingLoader(path string) (string, error) {
	_, err := os.Open(path)
	return "", errors.Wrap(err, "reading include file")
}

func TestCompileMissingIncludeIsFileNotFoundThroughWrappedLoader(t *testing.T) {
	_, err := Compile("t.mpl", "INCLUDEFILE does-not-exist.midica\n", config.Default(), dict.Default(), wrappedMissingLoader)
	if err == nil {
		t.Fatalf("expected a FileNotFound error")
	}
	ce, ok := err.(*compilerrors.CompileError)
	if !ok {
		t.Fatalf("expected a *compilerrors.CompileError, got %T: %v", err, err)
	}
	if ce.Kind != compilerrors.FileNotFound {
		t.Fatalf("expected Kind=FileNotFound, got %v", ce.Kind)
	}
}

func TestCompileIncludeCycleIsRejected(t *testing.T) {
	loader := func(path string) (string, error) {
		return "INCLUDEFILE " + path + "\n", nil
	}
	_, err := Compile("a.mpl", "INCLUDEFILE b.mpl\n", config.Default(), dict.Default(), loader)
	if err == nil {
		t.Fatalf("expected an IncludeCycle error")
	}
}

func TestCompileIncludeInsideFunctionIsRejected(t *testing.T) {
	src := "FUNCTION riff\nINCLUDEFILE nested.mpl\n0 c /4\nEND\n"
	_, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	ce, ok := err.(*compilerrors.CompileError)
	if !ok {
		t.Fatalf("expected a *compilerrors.CompileError, got %T: %v", err, err)
	}
	if ce.Kind != compilerrors.ContextViolation {
		t.Fatalf("expected Kind=ContextViolation, got %v", ce.Kind)
	}
}

func TestCompileUnknownVariableIsRejected(t *testing.T) {
	_, err := Compile("t.mpl", "0 $missing /4\n", config.Default(), dict.Default(), failingLoader)
	if err == nil {
		t.Fatalf("expected an UnknownVar error")
	}
}

func TestCompileConstWinsOverVar(t *testing.T) {
	src := "CONST $n = c\nVAR $n = d\n0 $n /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if ch0[0].Note != 60 {
		t.Fatalf("a name declared CONST should win over a VAR of the same name, got note %d", ch0[0].Note)
	}
}

func TestCompileRestAdvancesTickWithoutEmitting(t *testing.T) {
	src := "0 rest /4\n0 c /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 2 || ch0[0].Tick != 480 {
		t.Fatalf("rest should silently advance the tick, got: %+v", ch0)
	}
}

func TestCompileOctaveMarksShiftByFullOctave(t *testing.T) {
	src := "0 c+ /4\n0 c- /4\n0 c++ /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	want := []int{72, 48, 84} // c+ (one octave up), c- (one octave down), c++ (two octaves up)
	for i, w := range want {
		if ch0[2*i].Note != w {
			t.Errorf("note %d = %d, want %d: %+v", i, ch0[2*i].Note, w, ch0)
		}
	}
}

func TestCompileDefaultOctaveConfigOverridesDictionary(t *testing.T) {
	// A bare "c" always resolves to 60 regardless of the base octave,
	// since it takes its octave number from the base octave itself; an
	// explicit octave digit ("c5") is what exposes a base-octave change,
	// by shifting how that absolute octave number maps to a MIDI note.
	cfg := config.Default()
	cfg.DefaultOctave = 7
	res, err := Compile("t.mpl", "0 c5 /4\n", cfg, dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 2 || ch0[0].Note != 36 {
		t.Fatalf("cfg.DefaultOctave=7 should shift c5 two octaves below 60, got: %+v", ch0)
	}
}

func TestCompileMetaKaraokeAppliesRP026Escaping(t *testing.T) {
	src := "META\ntitle A Song\nlyrics Al\\-ice went \\/ to the\\\\ store\nEND\n0 c /4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var text string
	for _, e := range res.Sequence.Tracks[0].Events {
		if e.Kind == sequence.Meta && e.MetaKind == sequence.Text {
			text = string(e.Bytes)
		}
	}
	// "\/" and "\\" decode to literal '/' and '\'; a bare, unescaped '/'
	// or '\' would instead be an RP-026 paragraph/line break, so neither
	// of those escaped characters should act as one here. "title" is
	// carried through untouched.
	want := "title A Song\nlyrics Al\\-ice went / to the\\ store"
	if text != want {
		t.Fatalf("meta text = %q, want %q", text, want)
	}
}

func TestCompileLyricsOptionComposesUnderscoreAndRP026(t *testing.T) {
	src := "0 c /4, l=hel_lo\\/world\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var text string
	for _, e := range res.Sequence.Tracks[0].Events {
		if e.Kind == sequence.Meta && e.MetaKind == sequence.Lyrics {
			text = string(e.Bytes)
		}
	}
	if text != "hel lo/world" {
		t.Fatalf("lyrics text = %q, want %q", text, "hel lo/world")
	}
}

func TestCompileTremoloSubdividesLength(t *testing.T) {
	src := "0 c /4, tr=4\n"
	res, err := Compile("t.mpl", src, config.Default(), dict.Default(), failingLoader)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ch0 := channelTrack(res.Sequence, 0).Events
	if len(ch0) != 8 {
		t.Fatalf("tremolo=4 over one quarter note should emit 4 on/off pairs, got %d: %+v", len(ch0), ch0)
	}
	wantOnsets := []int{0, 120, 240, 360}
	for i, want := range wantOnsets {
		if ch0[2*i].Tick != want {
			t.Errorf("sub-note %d onset = %d, want %d", i, ch0[2*i].Tick, want)
		}
	}
}

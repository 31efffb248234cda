package compiler

import (
	stderrors "errors"
	"os"
	"path"
	"strings"

	compilerrors "github.com/mpl-lang/mplc/internal/errors"
	"github.com/mpl-lang/mplc/internal/lexer"
	"github.com/pkg/errors"
)

// srcLine is a raw logical line tagged with the file it came from, once
// INCLUDE/INCLUDEFILE expansion has flattened every included file into a
// single stream. Pass 1 and pass 2 both walk srcLines rather than
// lexer.RawLines so error locations stay correct across file boundaries.
type srcLine struct {
	file string
	num  int
	text string
}

// Loader reads the contents of path, returning a *github.com/pkg/errors*
// wrapped cause on failure so the original OS-level error is preserved.
type Loader func(path string) (string, error)

// expandIncludes flattens file's source, replacing every INCLUDE/
// INCLUDEFILE line with the recursively expanded contents of the named
// file. open is the set of files currently being expanded, used for cycle
// detection; it is restored to its entry state before returning.
func (e *exec) expandIncludes(file, src string, load Loader, open map[string]bool) ([]srcLine, error) {
	if open[file] {
		return nil, compilerrors.New(file, 0, 0, compilerrors.IncludeCycle, "include cycle detected at "+file)
	}
	open[file] = true
	defer delete(open, file)

	var out []srcLine
	// nest tracks which FUNCTION/block/INSTRUMENTS/META frames are open
	// in file's own line stream, the same frameKind vocabulary pass1
	// uses, so an INCLUDE/INCLUDEFILE found while any frame is open can
	// be rejected here instead of being silently spliced into a nested
	// body (spec §4.5: INCLUDE is top-level only).
	var nest []frameKind
	for _, r := range lexer.Split(src) {
		trimmed := strings.TrimSpace(r.Text)
		if trimmed == "" {
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
			continue
		}
		l, err := lexer.Classify(file, r.Num, r.Text)
		if err != nil {
			return nil, err
		}
		switch l.Kind {
		case lexer.FunctionDefOpen:
			nest = append(nest, frameFunction)
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		case lexer.InstrumentsOpen:
			nest = append(nest, frameInstruments)
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		case lexer.MetaOpen:
			nest = append(nest, frameMeta)
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		case lexer.BlockOpen:
			nest = append(nest, frameBlock)
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		case lexer.BlockClose, lexer.End:
			if len(nest) > 0 {
				nest = nest[:len(nest)-1]
			}
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		case lexer.Include:
			if len(nest) > 0 {
				return nil, compilerrors.New(file, r.Num, 0, compilerrors.ContextViolation, "INCLUDE not allowed inside a block or function")
			}
			resolved := path.Join(e.cfg.IncludeBasePath, strings.TrimSpace(l.Body))
			if !strings.Contains(path.Base(resolved), ".") {
				resolved += ".midica"
			}
			nested, err := e.loadAndExpand(resolved, load, open)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case lexer.IncludeFile:
			if len(nest) > 0 {
				return nil, compilerrors.New(file, r.Num, 0, compilerrors.ContextViolation, "INCLUDE not allowed inside a block or function")
			}
			nested, err := e.loadAndExpand(strings.TrimSpace(l.Body), load, open)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			out = append(out, srcLine{file: file, num: r.Num, text: r.Text})
		}
	}
	return out, nil
}

func (e *exec) loadAndExpand(target string, load Loader, open map[string]bool) ([]srcLine, error) {
	contents, err := load(target)
	if err != nil {
		// load's result may be a pkg/errors-wrapped cause (the production
		// loadFile in cmd/mplc wraps every os.ReadFile failure), so the
		// check has to unwrap through that wrapper rather than rely on
		// os.IsNotExist's narrower *PathError-only type switch.
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, compilerrors.Wrap(errors.Wrap(err, "resolving INCLUDE target"), target, 0, compilerrors.FileNotFound, "include target not found: "+target)
		}
		return nil, compilerrors.Wrap(errors.Wrap(err, "loading INCLUDE target"), target, 0, compilerrors.IncludeFailure, "failed to load include: "+target)
	}
	return e.expandIncludes(target, contents, load, open)
}

// Package errors defines the compiler's closed set of structured error
// kinds. Every failure the compiler reports to a caller is a *CompileError
// carrying a source location and a stable kind, never a bare string.
package errors

import "fmt"

// Kind is a closed enumeration of the reasons a compilation can fail.
type Kind int

const (
	LexError Kind = iota
	UnknownToken
	BadLength
	BadOption
	UnknownVar
	Redefinition
	RecursiveCall
	StructuralMismatch
	ContextViolation
	UnknownNote
	UnknownChannelUse
	BankOutOfRange
	IncludeFailure
	IncludeCycle
	FileNotFound
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "LexError"
	case UnknownToken:
		return "UnknownToken"
	case BadLength:
		return "BadLength"
	case BadOption:
		return "BadOption"
	case UnknownVar:
		return "UnknownVar"
	case Redefinition:
		return "Redefinition"
	case RecursiveCall:
		return "RecursiveCall"
	case StructuralMismatch:
		return "StructuralMismatch"
	case ContextViolation:
		return "ContextViolation"
	case UnknownNote:
		return "UnknownNote"
	case UnknownChannelUse:
		return "UnknownChannelUse"
	case BankOutOfRange:
		return "BankOutOfRange"
	case IncludeFailure:
		return "IncludeFailure"
	case IncludeCycle:
		return "IncludeCycle"
	case FileNotFound:
		return "FileNotFound"
	default:
		return "UnknownKind"
	}
}

// CompileError is the structured result of a failed compilation. It
// implements the standard error interface so it composes with
// errors.Is/errors.As and %w wrapping, while also exposing its fields
// directly for callers (such as an editor integration) that want the
// location without string-parsing a message.
type CompileError struct {
	File    string
	Line    int // 1-based
	Column  int // 0 if not known
	Kind    Kind
	Message string
	Cause   error // wrapped environment-layer cause, if any (I/O, etc.)
}

func (e *CompileError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Kind, e.Message)
}

func (e *CompileError) Unwrap() error { return e.Cause }

// New builds a CompileError with no environment-layer cause.
func New(file string, line, column int, kind Kind, message string) *CompileError {
	return &CompileError{File: file, Line: line, Column: column, Kind: kind, Message: message}
}

// Wrap builds a CompileError that carries an underlying environment-layer
// cause (typically a *github.com/pkg/errors-wrapped I/O error).
func Wrap(cause error, file string, line int, kind Kind, message string) *CompileError {
	return &CompileError{File: file, Line: line, Kind: kind, Message: message, Cause: cause}
}

// Warning is a non-fatal diagnostic collected on the side channel described
// in §7 (e.g. "rest too small to be represented exactly").
type Warning struct {
	File    string
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: warning: %s", w.File, w.Line, w.Message)
}

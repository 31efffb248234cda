package compiler

import (
	"strings"

	compilerrors "github.com/mpl-lang/mplc/internal/errors"
)

// resolve replaces every "$name" occurrence in text with its current
// value (spec §4.3): a name declared CONST always wins; otherwise the
// most recently assigned VAR value is used; an unresolved name is an
// error.
func (e *exec) resolve(file string, line int, text string) (string, error) {
	if !strings.ContainsRune(text, '$') {
		return text, nil
	}
	var out strings.Builder
	i := 0
	for i < len(text) {
		if text[i] != '$' {
			out.WriteByte(text[i])
			i++
			continue
		}
		j := i + 1
		for j < len(text) && isNameByte(text[j]) {
			j++
		}
		if j == i+1 {
			out.WriteByte(text[i])
			i++
			continue
		}
		name := text[i+1 : j]
		if v, ok := e.consts[name]; ok {
			out.WriteString(v)
		} else if v, ok := e.vars[name]; ok {
			out.WriteString(v)
		} else {
			return "", compilerrors.New(file, line, 0, compilerrors.UnknownVar, "unresolved variable or constant: $"+name)
		}
		i = j
	}
	return out.String(), nil
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

package profile

import (
	"strings"

	"github.com/jn-run/jn/internal/jnerrors"
)

// substitute expands ${VAR} and ${VAR:-default} references in s using
// lookup, and unescapes "$$" to a literal "$". Expansion is single-pass:
// the result of substitution is never re-scanned, which keeps a
// maliciously or accidentally self-referential default from blowing up
// into repeated rescans. A default clause's own text is itself expanded
// recursively, since the default is evaluated, not the outer string.
func substitute(s string, lookup func(string) (string, bool)) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '$' && i+1 < len(s) && s[i+1] == '$' {
			b.WriteByte('$')
			i += 2
			continue
		}
		if c == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := matchingBrace(s, i+1)
			if end < 0 {
				return "", &jnerrors.ProfileMergeError{Err: errUnterminatedVar(s[i:])}
			}
			expr := s[i+2 : end]
			i = end + 1

			name := expr
			var def string
			hasDefault := false
			if idx := strings.Index(expr, ":-"); idx >= 0 {
				name = expr[:idx]
				def = expr[idx+2:]
				hasDefault = true
			}

			val, ok := lookup(name)
			if ok {
				b.WriteString(val)
				continue
			}
			if hasDefault {
				expanded, err := substitute(def, lookup)
				if err != nil {
					return "", err
				}
				b.WriteString(expanded)
				continue
			}
			return "", &jnerrors.VarUnsetError{Var: name}
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

// matchingBrace returns the index of the "}" closing the "{" at open,
// skipping over any nested "${...}" inside a default clause
// (e.g. "${A:-${B}}"). Returns -1 if unbalanced.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type unterminatedVarError string

func (e unterminatedVarError) Error() string { return "unterminated ${...} in: " + string(e) }

func errUnterminatedVar(rest string) error { return unterminatedVarError(rest) }

// Package address implements jn's address grammar: it turns a single
// user-supplied string into a structured, immutable description of
// where data comes from or goes to, without touching the filesystem or
// network.
package address

import (
	"strings"

	"github.com/jn-run/jn/internal/jnerrors"
)

// Kind classifies how an Address was recognized.
type Kind string

const (
	KindFile    Kind = "file"
	KindURL     Kind = "url"
	KindProfile Kind = "profile"
	KindStdio   Kind = "stdio"
	KindGlob    Kind = "glob"
)

// Direction disambiguates the "-" stdio address; set by the caller from
// context (a source address is "in", a sink address is "out"), never by
// the parser itself.
type Direction string

const (
	DirectionUnknown Direction = ""
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
)

// Param is one (possibly repeated, possibly operator-suffixed) query
// parameter, in the order it appeared in the address string.
type Param struct {
	Key   string
	Op    string // "", ">", "<", ">=", "<=", "!="
	Value string
}

// ProfileRef identifies a named profile referenced via "@namespace/name".
type ProfileRef struct {
	Namespace string
	Name      string
	Remainder string // path_part after namespace, before "?query", e.g. "users" or "users/extra"
}

// Address is the immutable, parsed form of a source/sink expression.
type Address struct {
	Raw         string
	Kind        Kind
	Protocol    string
	Path        string
	FormatHint  string
	Compression []string // decode order: first entry is the outermost (most recently applied) layer
	Parameters  []Param
	ProfileRef  *ProfileRef
	IsGlob      bool
	IsStdio     bool
	StdioDir    Direction

	// RetainedExt is the trailing path extension observed after
	// compression suffixes were stripped, kept for format inference
	// (step 7) but never committed to FormatHint by the parser itself.
	RetainedExt string
}

var compressionSuffixes = []string{".gz", ".bz2", ".xz", ".zst"}

// Parse tokenizes a raw address string into an Address. dir optionally
// disambiguates a bare "-" address; pass DirectionUnknown if the caller
// doesn't yet know.
func Parse(raw string, dir Direction) (*Address, error) {
	if raw == "" {
		return nil, &jnerrors.AddressParseError{Raw: raw, Position: 0, Reason: "empty address"}
	}

	// Step 1: stdio.
	if raw == "-" || strings.HasPrefix(raw, "-~") {
		a := &Address{Raw: raw, Kind: KindStdio, Path: "-", IsStdio: true, StdioDir: dir}
		if raw == "-" {
			return a, nil
		}
		format := raw[2:]
		if format == "" {
			return nil, &jnerrors.AddressParseError{Raw: raw, Position: len(raw), Reason: "'~' with no trailing format"}
		}
		a.FormatHint = format
		return a, nil
	}

	// Step 2: profile.
	if strings.HasPrefix(raw, "@") {
		return parseProfile(raw)
	}

	rest := raw
	a := &Address{Raw: raw}

	// Step 3: scheme://
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme := rest[:idx]
		if isValidScheme(scheme) {
			a.Protocol = strings.ToLower(scheme)
			a.Kind = KindURL
			rest = rest[idx+3:]
		}
	}
	if a.Kind == "" {
		a.Kind = KindFile
	}

	// Step 4: strip trailing ?query.
	if idx := strings.Index(rest, "?"); idx >= 0 {
		query := rest[idx+1:]
		rest = rest[:idx]
		a.Parameters = parseQuery(query)
	}

	// Step 5: strip trailing ~format.
	if idx := strings.LastIndex(rest, "~"); idx >= 0 {
		format := rest[idx+1:]
		if format == "" {
			return nil, &jnerrors.AddressParseError{Raw: raw, Position: idx, Reason: "'~' with no trailing format"}
		}
		a.FormatHint = format
		rest = rest[:idx]
	}

	// Step 6: peel recognized compression suffixes, right to left.
	for {
		suf, ok := peelSuffix(rest)
		if !ok {
			break
		}
		rest = strings.TrimSuffix(rest, suf)
		a.Compression = append(a.Compression, strings.TrimPrefix(suf, "."))
	}

	// Step 7: retain a trailing extension for later format inference.
	if idx := strings.LastIndex(rest, "."); idx >= 0 && idx < len(rest)-1 {
		// Only treat as an extension if there's no path separator after the dot.
		if !strings.ContainsAny(rest[idx:], "/\\") {
			a.RetainedExt = rest[idx+1:]
		}
	}

	a.Path = rest

	// Step 8: glob detection.
	if strings.ContainsAny(rest, "*?") || strings.Contains(rest, "{") {
		a.IsGlob = true
		a.Kind = KindGlob
	}

	return a, nil
}

func isValidScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '.' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func peelSuffix(path string) (string, bool) {
	lower := strings.ToLower(path)
	for _, suf := range compressionSuffixes {
		if strings.HasSuffix(lower, suf) && len(path) > len(suf) {
			return path[len(path)-len(suf):], true
		}
	}
	return "", false
}

func parseProfile(raw string) (*Address, error) {
	rest := raw[1:] // drop "@"
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return nil, &jnerrors.AddressParseError{Raw: raw, Position: 1, Reason: "profile address missing '/namespace/name'"}
	}
	namespace := rest[:slash]
	remainder := rest[slash+1:]

	var query string
	if q := strings.Index(remainder, "?"); q >= 0 {
		query = remainder[q+1:]
		remainder = remainder[:q]
	}

	return &Address{
		Raw:  raw,
		Kind: KindProfile,
		ProfileRef: &ProfileRef{
			Namespace: namespace,
			Name:      remainder,
			Remainder: remainder,
		},
		Parameters: parseQuery(query),
	}, nil
}

// opTokens in longest-first order so "count>=10" tokenizes as ">="
// rather than ">" followed by "=10". A bare "=" is the equality
// separator (Op "").
var opTokens = []string{">=", "<=", "!=", ">", "<", "="}

// parseQuery parses an order-preserving, repeat-allowing "key[op]value"
// query string. Empty keys and "key=" with no value are preserved; a
// piece with no operator at all keeps the whole text as its key.
func parseQuery(query string) []Param {
	if query == "" {
		return nil
	}
	var params []Param
	for _, piece := range strings.Split(query, "&") {
		if piece == "" {
			continue
		}
		params = append(params, parseQueryPiece(piece))
	}
	return params
}

func parseQueryPiece(piece string) Param {
	for i := 0; i < len(piece); i++ {
		for _, tok := range opTokens {
			if strings.HasPrefix(piece[i:], tok) {
				op := tok
				if op == "=" {
					op = ""
				}
				return Param{Key: piece[:i], Op: op, Value: piece[i+len(tok):]}
			}
		}
	}
	return Param{Key: piece}
}

// Canonical renders an Address back to a string such that parsing
// Canonical(a) yields an Address equal to a in every field except Raw.
func (a *Address) Canonical() string {
	if a.IsStdio {
		if a.FormatHint != "" {
			return "-~" + a.FormatHint
		}
		return "-"
	}
	if a.Kind == KindProfile {
		var b strings.Builder
		b.WriteString("@")
		b.WriteString(a.ProfileRef.Namespace)
		b.WriteString("/")
		b.WriteString(a.ProfileRef.Remainder)
		writeQuery(&b, a.Parameters)
		return b.String()
	}

	var b strings.Builder
	if a.Protocol != "" {
		b.WriteString(a.Protocol)
		b.WriteString("://")
	}
	b.WriteString(a.Path)
	// Compression is stored in decode order (outermost/most-recently-applied
	// first); the on-disk suffix order is the reverse of that.
	for i := len(a.Compression) - 1; i >= 0; i-- {
		b.WriteString(".")
		b.WriteString(a.Compression[i])
	}
	if a.FormatHint != "" {
		b.WriteString("~")
		b.WriteString(a.FormatHint)
	}
	writeQuery(&b, a.Parameters)
	return b.String()
}

func writeQuery(b *strings.Builder, params []Param) {
	if len(params) == 0 {
		return
	}
	b.WriteString("?")
	for i, p := range params {
		if i > 0 {
			b.WriteString("&")
		}
		b.WriteString(p.Key)
		if p.Op == "" {
			b.WriteString("=")
		} else {
			b.WriteString(p.Op)
		}
		b.WriteString(p.Value)
	}
}

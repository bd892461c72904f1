// Package filterexpr synthesizes the predicate expression text for the
// filter stage the pipeline builder inserts after the format stage:
// leftover, non-configuration address parameters become a boolean
// expression in the goja filter plugin's JavaScript-like expression
// language, evaluated once per NDJSON record bound to the identifier
// "record".
package filterexpr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jn-run/jn/internal/address"
)

// Build renders params as a single boolean expression: same key
// appearing multiple times groups with OR, distinct keys group with
// AND, and each param's operator suffix (">", "<", ">=", "<=", "!=", or
// "" for equality) is honored. Returns "" if params is empty, meaning
// no filter stage is needed.
func Build(params []address.Param) string {
	if len(params) == 0 {
		return ""
	}

	var keyOrder []string
	groups := map[string][]address.Param{}
	for _, p := range params {
		if _, seen := groups[p.Key]; !seen {
			keyOrder = append(keyOrder, p.Key)
		}
		groups[p.Key] = append(groups[p.Key], p)
	}

	var andParts []string
	for _, k := range keyOrder {
		ps := groups[k]
		var orParts []string
		for _, p := range ps {
			orParts = append(orParts, fmt.Sprintf("(%s %s %s)", fieldExpr(p.Key), jsOperator(p.Op), valueLiteral(p.Value)))
		}
		if len(orParts) == 1 {
			andParts = append(andParts, orParts[0])
		} else {
			andParts = append(andParts, "("+strings.Join(orParts, " || ")+")")
		}
	}
	return strings.Join(andParts, " && ")
}

func fieldExpr(key string) string {
	b, _ := json.Marshal(key)
	return "record[" + string(b) + "]"
}

func jsOperator(op string) string {
	switch op {
	case "":
		return "=="
	case "!=":
		return "!="
	default:
		return op // ">", "<", ">=", "<=" pass through unchanged
	}
}

// valueLiteral renders a query-string value as a JS literal: numeric
// strings become numbers so that ">"/"<" compare numerically rather
// than lexicographically; everything else is a quoted, escaped string.
func valueLiteral(v string) string {
	if f, err := strconv.ParseFloat(v, 64); err == nil && v != "" {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

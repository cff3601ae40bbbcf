// Package extract implements the deterministic extraction tiers over
// XBRL-derived company-fact documents.
package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnreadable marks a document that cannot be parsed as a fact document
// at the container level. Distinct from "readable but fields absent".
var ErrUnreadable = eris.New("extract: fact document unreadable")

// FactDocument is the company-fact container: namespace -> tag -> fact.
type FactDocument struct {
	EntityName string             `json:"entityName"`
	Facts      map[string]FactSet `json:"facts"`
}

// FactSet groups facts by tag within one namespace (e.g. "us-gaap").
type FactSet map[string]Fact

// Fact is a single tagged concept with its units and reported values.
type Fact struct {
	Label string                 `json:"label"`
	Units map[string][]FactValue `json:"units"`
}

// FactValue is one reported data point for a fact.
type FactValue struct {
	Start   string `json:"start,omitempty"`
	End     string `json:"end"`
	Val     any    `json:"val"`
	Form    string `json:"form"`
	Filed   string `json:"filed"`
	FY      int    `json:"fy,omitempty"`
	FP      string `json:"fp,omitempty"`
	Segment string `json:"segment,omitempty"`
}

// ParseFacts decodes a fact document. A document that is not valid JSON or
// carries no facts object at all is unreadable.
func ParseFacts(b []byte) (*FactDocument, error) {
	var doc FactDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, eris.Wrap(ErrUnreadable, err.Error())
	}
	if doc.Facts == nil {
		return nil, eris.Wrap(ErrUnreadable, "missing facts object")
	}
	return &doc, nil
}

// numericValue coerces a reported value to float64. Strict mode accepts only
// JSON numbers and already-clean numeric strings; lenient mode additionally
// strips grouping separators and accounting-style parentheses.
func numericValue(v any, lenient bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		if lenient {
			s = cleanNumericString(s)
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// cleanNumericString strips thousands separators and converts accounting
// parentheses to a leading minus. Repair of exotic whitespace happens at the
// byte level before parsing (see repair.go).
func cleanNumericString(s string) string {
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", " ", "", "$", "").Replace(s)
	if neg {
		s = "-" + s
	}
	return s
}

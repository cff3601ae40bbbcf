package extract

import (
	"sort"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Tier0 is the fast-path extractor: a fixed US-GAAP vocabulary lookup over a
// well-formed fact document. It returns ErrUnreadable when the container
// cannot be parsed at all; a readable document with missing fields yields a
// sparse map, signaled upstream by coverage, never by error.
func Tier0(content []byte, meta model.FilingMetadata) (model.FieldMap, error) {
	doc, err := ParseFacts(content)
	if err != nil {
		return nil, err
	}

	fields := make(model.FieldMap)
	facts, ok := doc.Facts[NamespaceUSGAAP]
	if !ok {
		return fields, nil
	}

	periodEnd := meta.PeriodEnd.Format("2006-01-02")
	for _, metric := range Metrics() {
		for _, tag := range TagsFor(NamespaceUSGAAP, metric) {
			fact, ok := facts[tag]
			if !ok {
				continue
			}
			fv, ok := selectValue(fact, periodEnd, false)
			if !ok {
				continue
			}
			val, _ := numericValue(fv.Val, false)
			fields[metric] = model.TaggedValue{
				Value:      val,
				Provenance: provenance(NamespaceUSGAAP, tag, fv.Segment),
			}
			break
		}
	}
	return fields, nil
}

// selectValue picks one reported value for a fact: the value whose period end
// matches the filing's reporting period when present, otherwise the most
// recent period end. Units are scanned in sorted order for determinism.
func selectValue(fact Fact, periodEnd string, lenient bool) (FactValue, bool) {
	units := make([]string, 0, len(fact.Units))
	for u := range fact.Units {
		units = append(units, u)
	}
	sort.Strings(units)

	var best FactValue
	found := false
	for _, u := range units {
		for _, fv := range fact.Units[u] {
			if fv.End == "" {
				continue
			}
			if _, ok := numericValue(fv.Val, lenient); !ok {
				continue
			}
			if fv.End == periodEnd {
				return fv, true
			}
			if !found || fv.End > best.End {
				best = fv
				found = true
			}
		}
	}
	return best, found
}

// provenance builds the namespaced source tag, with the segment appended when
// the value came from a tagged segment (e.g. "us-gaap:Assets[consolidated]").
func provenance(namespace, tag, segment string) string {
	p := namespace + ":" + tag
	if segment != "" {
		p += "[" + segment + "]"
	}
	return p
}

package extract

import (
	"sort"
	"strings"
	"time"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// candidate is one reported value competing for a canonical metric.
type candidate struct {
	namespace string
	tag       string
	segment   string
	value     float64
	start     time.Time
	end       time.Time
	filed     time.Time
	form      string
	fp        string
}

// annual reports whether the candidate covers a full annual period.
func (c candidate) annual() bool {
	if c.fp == "FY" {
		return true
	}
	if c.start.IsZero() || c.end.IsZero() {
		return false
	}
	days := c.end.Sub(c.start).Hours() / 24
	return days >= 330 && days <= 400
}

// Tier1 is the metadata-aware deterministic fallback. It repairs encoding
// artifacts before re-parsing, selects the tag vocabulary from the declared
// accounting standard, falls back to namespace-agnostic tag matching, and
// disambiguates competing values by the fixed preference order. It never
// fails for absent fields; an unreadable document yields an empty map and
// coverage handles the rest.
func Tier1(content []byte, meta model.FilingMetadata) model.FieldMap {
	fields := make(model.FieldMap)

	doc, err := ParseFacts(RepairBytes(content))
	if err != nil {
		return fields
	}

	ns := NamespaceFor(meta.Standard)
	for _, metric := range Metrics() {
		cands := collectCandidates(doc, ns, metric)
		if len(cands) == 0 {
			continue
		}
		win := disambiguate(cands, meta)
		fields[metric] = model.TaggedValue{
			Value:      win.value,
			Provenance: provenance(win.namespace, win.tag, win.segment),
		}
	}
	return fields
}

// collectCandidates gathers every usable value for a metric. Tags are tried
// in vocabulary preference order; for each tag the expected namespace is
// consulted first and all other namespaces as a fallback when the exact
// expected tag is absent there. The first tag that yields candidates wins.
func collectCandidates(doc *FactDocument, ns string, metric model.Metric) []candidate {
	for _, tag := range TagsFor(ns, metric) {
		if facts, ok := doc.Facts[ns]; ok {
			if fact, ok := facts[tag]; ok {
				if cands := factCandidates(ns, tag, fact); len(cands) > 0 {
					return cands
				}
			}
		}

		// Namespace-agnostic fallback: same tag, any namespace.
		var cands []candidate
		names := make([]string, 0, len(doc.Facts))
		for name := range doc.Facts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if name == ns {
				continue
			}
			if fact, ok := doc.Facts[name][tag]; ok {
				cands = append(cands, factCandidates(name, tag, fact)...)
			}
		}
		if len(cands) > 0 {
			return cands
		}
	}
	return nil
}

// factCandidates flattens a fact's values into candidates, dropping
// non-numeric entries. Lenient numeric parsing tolerates separators that
// survived the byte repair.
func factCandidates(ns, tag string, fact Fact) []candidate {
	units := make([]string, 0, len(fact.Units))
	for u := range fact.Units {
		units = append(units, u)
	}
	sort.Strings(units)

	var out []candidate
	for _, u := range units {
		for _, fv := range fact.Units[u] {
			val, ok := numericValue(fv.Val, true)
			if !ok || fv.End == "" {
				continue
			}
			out = append(out, candidate{
				namespace: ns,
				tag:       tag,
				segment:   fv.Segment,
				value:     val,
				start:     parseDate(fv.Start),
				end:       parseDate(fv.End),
				filed:     parseDate(fv.Filed),
				form:      fv.Form,
				fp:        fv.FP,
			})
		}
	}
	return out
}

// disambiguate applies the fixed preference order when multiple values
// compete for one metric: consolidated values for holding companies,
// restated/amended values when the filing is an amendment, full annual
// periods over partial ones, then the most recently filed context.
func disambiguate(cands []candidate, meta model.FilingMetadata) candidate {
	if meta.Classification == model.IssuerHolding {
		cands = narrow(cands, func(c candidate) bool {
			return strings.Contains(strings.ToLower(c.segment), "consolidated")
		})
	}
	if meta.Amended {
		cands = narrow(cands, func(c candidate) bool {
			seg := strings.ToLower(c.segment)
			return strings.Contains(seg, "restated") ||
				strings.Contains(seg, "amended") ||
				strings.HasSuffix(c.form, "/A")
		})
	}
	cands = narrow(cands, candidate.annual)

	sort.SliceStable(cands, func(i, j int) bool {
		if !cands[i].filed.Equal(cands[j].filed) {
			return cands[i].filed.After(cands[j].filed)
		}
		if !cands[i].end.Equal(cands[j].end) {
			return cands[i].end.After(cands[j].end)
		}
		return cands[i].namespace+cands[i].tag < cands[j].namespace+cands[j].tag
	})
	return cands[0]
}

// narrow filters candidates by pred, keeping the original set when the
// filter would eliminate everything.
func narrow(cands []candidate, pred func(candidate) bool) []candidate {
	var kept []candidate
	for _, c := range cands {
		if pred(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return cands
	}
	return kept
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Package validate implements the rule-based gate between an extraction
// attempt and acceptance. Validation is deterministic and does no I/O; all
// rules are evaluated and every violation is reported.
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Rule names, in evaluation order.
const (
	RuleStandardConsistency = "standard_consistency"
	RuleBalanceEquation     = "balance_equation"
	RuleConsolidation       = "consolidation"
	RuleRangeSanity         = "range_sanity"
	RuleCompleteness        = "completeness"
)

// Config holds the injected validation thresholds.
type Config struct {
	// MinCoreCoverage is the minimum number of core metrics a field map must
	// carry to pass the completeness rule.
	MinCoreCoverage int
	// BalanceTolerance is the balance-equation tolerance as a fraction of
	// total assets.
	BalanceTolerance float64
}

// DefaultConfig mirrors the deployment defaults: 5 of 8 core metrics, 1%.
func DefaultConfig() Config {
	return Config{MinCoreCoverage: 5, BalanceTolerance: 0.01}
}

// Validator evaluates field maps against the invariant rule set.
type Validator struct {
	cfg Config
}

// New creates a Validator with the given thresholds.
func New(cfg Config) *Validator {
	if cfg.MinCoreCoverage <= 0 {
		cfg.MinCoreCoverage = DefaultConfig().MinCoreCoverage
	}
	if cfg.BalanceTolerance <= 0 {
		cfg.BalanceTolerance = DefaultConfig().BalanceTolerance
	}
	return &Validator{cfg: cfg}
}

// Validate evaluates every rule against the field map and returns the full
// violation list. Accepted is true iff no rule fired.
func (v *Validator) Validate(fields model.FieldMap, meta model.FilingMetadata) model.ValidationReport {
	var violations []model.Violation
	violations = append(violations, v.checkStandardConsistency(fields, meta)...)
	violations = append(violations, v.checkBalanceEquation(fields)...)
	violations = append(violations, v.checkConsolidation(fields, meta)...)
	violations = append(violations, v.checkRangeSanity(fields, meta)...)
	violations = append(violations, v.checkCompleteness(fields)...)

	return model.ValidationReport{
		Accepted:   len(violations) == 0,
		Violations: violations,
	}
}

// vocabularyOf maps a provenance tag's namespace prefix to the accounting
// standard it belongs to. Provenance without a known vocabulary prefix (e.g.
// assisted-extraction sources) is unconstrained.
func vocabularyOf(provenance string) (model.AccountingStandard, bool) {
	ns, _, ok := strings.Cut(provenance, ":")
	if !ok {
		return "", false
	}
	switch ns {
	case "us-gaap":
		return model.StandardUSGAAP, true
	case "ifrs-full":
		return model.StandardIFRS, true
	default:
		return "", false
	}
}

// checkStandardConsistency flags fields sourced from a tag vocabulary other
// than the declared standard's, which catches reconciliation-table leakage.
func (v *Validator) checkStandardConsistency(fields model.FieldMap, meta model.FilingMetadata) []model.Violation {
	if meta.Standard == model.StandardOther {
		return nil
	}
	var out []model.Violation
	for _, metric := range sortedMetrics(fields) {
		std, known := vocabularyOf(fields[metric].Provenance)
		if !known || std == meta.Standard {
			continue
		}
		out = append(out, model.Violation{
			Rule: RuleStandardConsistency,
			Detail: fmt.Sprintf("%s sourced from %s vocabulary (%s) but filing declares %s",
				metric, std, fields[metric].Provenance, meta.Standard),
		})
	}
	return out
}

// checkBalanceEquation asserts assets = liabilities + equity within the
// configured tolerance of total assets, when all three are present.
func (v *Validator) checkBalanceEquation(fields model.FieldMap) []model.Violation {
	assets, okA := fields[model.MetricTotalAssets]
	liabilities, okL := fields[model.MetricTotalLiabilities]
	equity, okE := fields[model.MetricTotalEquity]
	if !okA || !okL || !okE {
		return nil
	}
	diff := math.Abs(assets.Value - (liabilities.Value + equity.Value))
	limit := v.cfg.BalanceTolerance * math.Abs(assets.Value)
	if diff <= limit {
		return nil
	}
	return []model.Violation{{
		Rule: RuleBalanceEquation,
		Detail: fmt.Sprintf("assets %.2f vs liabilities+equity %.2f differ by %.2f (tolerance %.2f)",
			assets.Value, liabilities.Value+equity.Value, diff, limit),
	}}
}

// checkConsolidation requires at least one consolidated-sourced field for
// holding companies, guarding against parent-only substitution.
func (v *Validator) checkConsolidation(fields model.FieldMap, meta model.FilingMetadata) []model.Violation {
	if meta.Classification != model.IssuerHolding || len(fields) == 0 {
		return nil
	}
	for _, tv := range fields {
		if strings.Contains(strings.ToLower(tv.Provenance), "consolidated") {
			return nil
		}
	}
	return []model.Violation{{
		Rule:   RuleConsolidation,
		Detail: "holding company with no consolidated-sourced field; possible parent-only values",
	}}
}

// checkRangeSanity applies coarse magnitude checks: non-negative revenue
// (SPACs excepted), net income bounded by revenue, positive total assets.
func (v *Validator) checkRangeSanity(fields model.FieldMap, meta model.FilingMetadata) []model.Violation {
	var out []model.Violation

	if rev, ok := fields[model.MetricRevenue]; ok {
		if rev.Value < 0 && meta.Classification != model.IssuerSPAC {
			out = append(out, model.Violation{
				Rule:   RuleRangeSanity,
				Detail: fmt.Sprintf("negative revenue %.2f for non-SPAC issuer", rev.Value),
			})
		}
		if ni, ok := fields[model.MetricNetIncome]; ok {
			if math.Abs(ni.Value) > 2*math.Abs(rev.Value) {
				out = append(out, model.Violation{
					Rule:   RuleRangeSanity,
					Detail: fmt.Sprintf("net income %.2f exceeds twice revenue %.2f", ni.Value, rev.Value),
				})
			}
		}
	}

	if assets, ok := fields[model.MetricTotalAssets]; ok && assets.Value <= 0 {
		out = append(out, model.Violation{
			Rule:   RuleRangeSanity,
			Detail: fmt.Sprintf("total assets %.2f not positive", assets.Value),
		})
	}

	return out
}

// checkCompleteness re-asserts the coverage floor so the validator stays
// correct independent of the orchestrator's pre-check.
func (v *Validator) checkCompleteness(fields model.FieldMap) []model.Violation {
	got := fields.CoreCoverage()
	if got >= v.cfg.MinCoreCoverage {
		return nil
	}
	return []model.Violation{{
		Rule:   RuleCompleteness,
		Detail: fmt.Sprintf("%d of %d core metrics present, need %d", got, len(model.CoreMetrics), v.cfg.MinCoreCoverage),
	}}
}

func sortedMetrics(fields model.FieldMap) []model.Metric {
	out := make([]model.Metric, 0, len(fields))
	for m := range fields {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package model

// Metric is one entry in the canonical vocabulary of financial fields.
type Metric string

const (
	MetricRevenue           Metric = "revenue"
	MetricNetIncome         Metric = "net_income"
	MetricTotalAssets       Metric = "total_assets"
	MetricTotalLiabilities  Metric = "total_liabilities"
	MetricTotalEquity       Metric = "total_equity"
	MetricTotalDebt         Metric = "total_debt"
	MetricOperatingCashFlow Metric = "operating_cash_flow"
	MetricEPSDiluted        Metric = "eps_diluted"

	// Non-core metrics: extracted when available but not counted toward coverage.
	MetricOperatingIncome    Metric = "operating_income"
	MetricCashAndEquivalents Metric = "cash_and_equivalents"
	MetricInterestExpense    Metric = "interest_expense"
	MetricSharesOutstanding  Metric = "shares_outstanding"
)

// CoreMetrics is the fixed set of metrics counted toward field-map coverage.
var CoreMetrics = []Metric{
	MetricRevenue,
	MetricNetIncome,
	MetricTotalAssets,
	MetricTotalLiabilities,
	MetricTotalEquity,
	MetricTotalDebt,
	MetricOperatingCashFlow,
	MetricEPSDiluted,
}

// TaggedValue is an extracted value with its provenance. Provenance is the
// namespaced source tag (e.g. "us-gaap:Revenues"), optionally suffixed with
// the segment it was taken from. Confidence is set only by assisted extraction.
type TaggedValue struct {
	Value      float64  `json:"value"`
	Provenance string   `json:"provenance"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// FieldMap is a partial mapping from canonical metric to extracted value.
// Absence means "not found", never zero.
type FieldMap map[Metric]TaggedValue

// CoreCoverage counts how many core metrics are present in the map.
func (m FieldMap) CoreCoverage() int {
	n := 0
	for _, metric := range CoreMetrics {
		if _, ok := m[metric]; ok {
			n++
		}
	}
	return n
}

// Clone returns a shallow copy of the field map.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

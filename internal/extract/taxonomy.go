package extract

import "github.com/syz51/fundamental-analysis-system-sub002/internal/model"

// Namespaces for the supported tag vocabularies.
const (
	NamespaceUSGAAP = "us-gaap"
	NamespaceIFRS   = "ifrs-full"
)

// NamespaceFor maps a declared accounting standard to its tag namespace.
// OTHER falls back to US-GAAP, the broadest vocabulary.
func NamespaceFor(std model.AccountingStandard) string {
	if std == model.StandardIFRS {
		return NamespaceIFRS
	}
	return NamespaceUSGAAP
}

// usGAAPTags maps canonical metrics to US-GAAP tags in preference order.
var usGAAPTags = map[model.Metric][]string{
	model.MetricRevenue: {
		"Revenues",
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"SalesRevenueNet",
	},
	model.MetricNetIncome: {
		"NetIncomeLoss",
		"ProfitLoss",
	},
	model.MetricTotalAssets: {
		"Assets",
	},
	model.MetricTotalLiabilities: {
		"Liabilities",
	},
	model.MetricTotalEquity: {
		"StockholdersEquity",
		"StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest",
	},
	model.MetricTotalDebt: {
		"DebtLongtermAndShorttermCombinedAmount",
		"LongTermDebt",
	},
	model.MetricOperatingCashFlow: {
		"NetCashProvidedByUsedInOperatingActivities",
		"NetCashProvidedByOperatingActivities",
	},
	model.MetricEPSDiluted: {
		"EarningsPerShareDiluted",
	},
	model.MetricOperatingIncome: {
		"OperatingIncomeLoss",
	},
	model.MetricCashAndEquivalents: {
		"CashAndCashEquivalentsAtCarryingValue",
	},
	model.MetricInterestExpense: {
		"InterestExpense",
	},
	model.MetricSharesOutstanding: {
		"CommonStockSharesOutstanding",
	},
}

// ifrsTags maps canonical metrics to IFRS tags in preference order.
var ifrsTags = map[model.Metric][]string{
	model.MetricRevenue: {
		"Revenue",
		"RevenueFromContractsWithCustomers",
	},
	model.MetricNetIncome: {
		"ProfitLoss",
		"ProfitLossAttributableToOwnersOfParent",
	},
	model.MetricTotalAssets: {
		"Assets",
	},
	model.MetricTotalLiabilities: {
		"Liabilities",
	},
	model.MetricTotalEquity: {
		"Equity",
		"EquityAttributableToOwnersOfParent",
	},
	model.MetricTotalDebt: {
		"Borrowings",
		"NoncurrentPortionOfNoncurrentBorrowings",
	},
	model.MetricOperatingCashFlow: {
		"CashFlowsFromUsedInOperatingActivities",
	},
	model.MetricEPSDiluted: {
		"DilutedEarningsLossPerShare",
	},
	model.MetricOperatingIncome: {
		"ProfitLossFromOperatingActivities",
	},
	model.MetricCashAndEquivalents: {
		"CashAndCashEquivalents",
	},
	model.MetricInterestExpense: {
		"InterestExpenseOnBorrowings",
	},
	model.MetricSharesOutstanding: {
		"NumberOfSharesOutstanding",
	},
}

// TagsFor returns the tag preference list for a metric in the given namespace.
func TagsFor(namespace string, metric model.Metric) []string {
	if namespace == NamespaceIFRS {
		return ifrsTags[metric]
	}
	return usGAAPTags[metric]
}

// Metrics lists every canonical metric with a taxonomy entry.
func Metrics() []model.Metric {
	out := make([]model.Metric, 0, len(usGAAPTags))
	for _, m := range model.CoreMetrics {
		out = append(out, m)
	}
	for _, m := range []model.Metric{
		model.MetricOperatingIncome,
		model.MetricCashAndEquivalents,
		model.MetricInterestExpense,
		model.MetricSharesOutstanding,
	} {
		out = append(out, m)
	}
	return out
}

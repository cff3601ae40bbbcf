// Package infer adapts the external assisted-extraction service for Tier 2.
// The pipeline calls it exactly once per document; retry, backoff, and rate
// limiting live on this side of the boundary, not in the orchestrator.
package infer

import (
	"context"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Result is an assisted-extraction field map with a scalar confidence in [0,1].
type Result struct {
	Fields     model.FieldMap
	Confidence float64
}

// Client is the assisted-extraction collaborator.
type Client interface {
	Infer(ctx context.Context, doc model.FilingDocument) (*Result, error)
}

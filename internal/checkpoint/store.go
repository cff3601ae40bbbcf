// Package checkpoint persists per-document pipeline state so a batch run can
// resume after failure without re-running completed tiers.
package checkpoint

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// ErrNotFound is returned by Load when no checkpoint exists for a document.
var ErrNotFound = eris.New("checkpoint: not found")

// ErrStaleWrite is returned by Save when the durable record already carries a
// newer write version, so the upsert matched nothing. The caller's in-memory
// state is left untouched; reload before retrying.
var ErrStaleWrite = eris.New("checkpoint: stale write")

// Store is the durable checkpoint record, keyed by document identifier.
//
// Save is an upsert with last-write-wins resolution on the state's write
// version; it must be acknowledged by the durable medium before returning.
// Writes for distinct document identifiers never contend, and a worker
// always reads its own last acknowledged write.
type Store interface {
	Save(ctx context.Context, state *model.PipelineState) error
	Load(ctx context.Context, documentID string) (*model.PipelineState, error)
	List(ctx context.Context, filter ListFilter) ([]model.PipelineState, error)
	Migrate(ctx context.Context) error
	Close() error
}

// ListFilter narrows List results.
type ListFilter struct {
	Status model.TerminalStatus
	Limit  int
}

// LoadOrInit reads the checkpoint for a document, returning a freshly
// initialized PENDING state when none exists. This is what lets a crashed
// batch resume by simply advancing every identifier until terminal.
func LoadOrInit(ctx context.Context, s Store, documentID string) (*model.PipelineState, error) {
	state, err := s.Load(ctx, documentID)
	if err == nil {
		return state, nil
	}
	if eris.Is(err, ErrNotFound) {
		return model.NewPipelineState(documentID), nil
	}
	return nil, err
}

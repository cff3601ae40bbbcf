package checkpoint

import (
	"context"
	"sync"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// CachedStore fronts a durable Store with an in-memory read cache. The cache
// is populated opportunistically on Save and Load but is never the source of
// truth: a miss always falls through, and a cached copy with an older write
// version than the durable record is replaced by the durable one.
type CachedStore struct {
	durable Store

	mu    sync.RWMutex
	cache map[string]*model.PipelineState
}

// NewCached wraps a durable store with a read cache.
func NewCached(durable Store) *CachedStore {
	return &CachedStore{
		durable: durable,
		cache:   make(map[string]*model.PipelineState),
	}
}

// Save writes through to the durable store first; the cache is only updated
// after the durable write is acknowledged, preserving read-your-writes.
func (c *CachedStore) Save(ctx context.Context, state *model.PipelineState) error {
	if err := c.durable.Save(ctx, state); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache[state.DocumentID] = state.Clone()
	c.mu.Unlock()
	return nil
}

// Load serves from cache when possible. Cached entries are only written
// after a durable acknowledgment, so a hit can never be older than the
// caller's own last write; a miss falls through to the durable record.
func (c *CachedStore) Load(ctx context.Context, documentID string) (*model.PipelineState, error) {
	c.mu.RLock()
	cached, ok := c.cache[documentID]
	c.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	state, err := c.durable.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[documentID] = state.Clone()
	c.mu.Unlock()
	return state, nil
}

// List always hits the durable store; listing is a dashboard path, not a
// worker hot path.
func (c *CachedStore) List(ctx context.Context, filter ListFilter) ([]model.PipelineState, error) {
	return c.durable.List(ctx, filter)
}

func (c *CachedStore) Migrate(ctx context.Context) error {
	return c.durable.Migrate(ctx)
}

func (c *CachedStore) Close() error {
	c.mu.Lock()
	c.cache = make(map[string]*model.PipelineState)
	c.mu.Unlock()
	return c.durable.Close()
}

// Invalidate drops the cached entry for a document, forcing the next Load to
// consult the durable record.
func (c *CachedStore) Invalidate(documentID string) {
	c.mu.Lock()
	delete(c.cache, documentID)
	c.mu.Unlock()
}

package orchestrator

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// DocumentHandle tracks one submitted document to its terminal state.
type DocumentHandle struct {
	DocumentID string

	done  chan struct{}
	state *model.PipelineState
	err   error
}

// Wait blocks until the document reaches a terminal state or ctx is done.
func (h *DocumentHandle) Wait(ctx context.Context) (*model.PipelineState, error) {
	select {
	case <-h.done:
		return h.state, h.err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "orchestrator: wait for document")
	}
}

// Processor runs the tier cascade for many documents in parallel. A document
// identifier is advanced by at most one worker at a time; across identifiers
// workers are fully parallel.
type Processor struct {
	orch  *Orchestrator
	store checkpoint.Store

	concurrency int
	queue       chan model.FilingDocument
	locks       sync.Map // document ID -> *sync.Mutex

	mu      sync.Mutex
	handles map[string]*DocumentHandle
	closed  bool
}

// NewProcessor creates a Processor with the given worker count and queue
// depth.
func NewProcessor(orch *Orchestrator, store checkpoint.Store, concurrency, queueDepth int) *Processor {
	if concurrency <= 0 {
		concurrency = 4
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Processor{
		orch:        orch,
		store:       store,
		concurrency: concurrency,
		queue:       make(chan model.FilingDocument, queueDepth),
		handles:     make(map[string]*DocumentHandle),
	}
}

// Submit enqueues a document for processing and returns its handle.
// Re-submitting an identifier returns the existing handle. Submit blocks
// when the queue is full.
func (p *Processor) Submit(doc model.FilingDocument) (*DocumentHandle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, eris.New("orchestrator: processor closed")
	}
	if h, ok := p.handles[doc.Meta.ID]; ok {
		p.mu.Unlock()
		return h, nil
	}
	h := &DocumentHandle{DocumentID: doc.Meta.ID, done: make(chan struct{})}
	p.handles[doc.Meta.ID] = h
	p.mu.Unlock()

	p.queue <- doc
	return h, nil
}

// Status reads the current checkpoint for a document: a point-in-time view
// for dashboards, not a synchronization primitive.
func (p *Processor) Status(ctx context.Context, documentID string) (*model.PipelineState, error) {
	return checkpoint.LoadOrInit(ctx, p.store, documentID)
}

// AwaitBatch blocks until every given identifier is terminal (or ctx ends)
// and returns the final states.
func (p *Processor) AwaitBatch(ctx context.Context, documentIDs []string) (map[string]*model.PipelineState, error) {
	out := make(map[string]*model.PipelineState, len(documentIDs))
	for _, id := range documentIDs {
		p.mu.Lock()
		h, ok := p.handles[id]
		p.mu.Unlock()
		if !ok {
			return nil, eris.Errorf("orchestrator: document %s was never submitted", id)
		}
		state, err := h.Wait(ctx)
		if err != nil {
			return nil, err
		}
		out[id] = state
	}
	return out, nil
}

// Run consumes the queue with the configured worker pool until the context
// is cancelled or Close drains the queue. Cancellation is honored between
// documents and between Advance calls, never inside one.
func (p *Processor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case doc, ok := <-p.queue:
					if !ok {
						return nil
					}
					p.process(gctx, doc)
				}
			}
		})
	}
	return g.Wait()
}

// Close stops accepting submissions; Run returns after in-flight documents
// finish.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
}

// process advances one document to a terminal state under its exclusivity
// lock, then completes its handle.
func (p *Processor) process(ctx context.Context, doc model.FilingDocument) {
	state, err := p.advanceToTerminal(ctx, doc)

	p.mu.Lock()
	h := p.handles[doc.Meta.ID]
	p.mu.Unlock()
	if h == nil {
		return
	}
	h.state = state
	h.err = err
	close(h.done)
}

// advanceToTerminal runs the synchronous tier cascade for a single document.
func (p *Processor) advanceToTerminal(ctx context.Context, doc model.FilingDocument) (*model.PipelineState, error) {
	lock := p.lockFor(doc.Meta.ID)
	lock.Lock()
	defer lock.Unlock()

	state, err := checkpoint.LoadOrInit(ctx, p.store, doc.Meta.ID)
	if err != nil {
		return nil, err
	}

	for !state.Status.Terminal() {
		if ctx.Err() != nil {
			// Cancelled between advances; the checkpoint holds the
			// intermediate state and a resumed run picks it up.
			return state, eris.Wrap(ctx.Err(), "orchestrator: cancelled mid-cascade")
		}
		next, err := p.orch.Advance(ctx, doc, state)
		if err != nil {
			zap.L().Error("advance failed",
				zap.String("document", doc.Meta.ID),
				zap.Error(err),
			)
			return state, err
		}
		state = next
	}
	return state, nil
}

func (p *Processor) lockFor(documentID string) *sync.Mutex {
	actual, _ := p.locks.LoadOrStore(documentID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

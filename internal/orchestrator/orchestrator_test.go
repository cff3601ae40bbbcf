package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/extract"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/infer"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/validate"
)

// memStore is an in-memory checkpoint.Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	states   map[string]*model.PipelineState
	saves    int
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*model.PipelineState)}
}

func (m *memStore) Save(_ context.Context, state *model.PipelineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return eris.New("durable medium unavailable")
	}
	m.saves++
	state.WriteVersion++
	state.UpdatedAt = time.Now().UTC()
	m.states[state.DocumentID] = state.Clone()
	return nil
}

func (m *memStore) Load(_ context.Context, documentID string) (*model.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[documentID]
	if !ok {
		return nil, eris.Wrap(checkpoint.ErrNotFound, documentID)
	}
	return state.Clone(), nil
}

func (m *memStore) List(_ context.Context, filter checkpoint.ListFilter) ([]model.PipelineState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PipelineState
	for _, st := range m.states {
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		out = append(out, *st.Clone())
	}
	return out, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// inferStub is a canned assisted-extraction client.
type inferStub struct {
	mu    sync.Mutex
	res   *infer.Result
	err   error
	calls int
}

func (s *inferStub) Infer(context.Context, model.FilingDocument) (*infer.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func (s *inferStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// collectSink buffers published events.
type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *collectSink) Publish(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collectSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

type fixture struct {
	orch  *Orchestrator
	store *memStore
	infer *inferStub
	sink  *collectSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	stub := &inferStub{}
	sink := &collectSink{}
	orch := New(DefaultConfig(), validate.New(validate.DefaultConfig()), store, stub, sink)
	return &fixture{orch: orch, store: store, infer: stub, sink: sink}
}

// coreValues is a balance-consistent set of core metric values.
var coreValues = map[model.Metric]float64{
	model.MetricRevenue:           1_000_000,
	model.MetricNetIncome:         80_000,
	model.MetricTotalAssets:       2_000_000,
	model.MetricTotalLiabilities:  1_200_000,
	model.MetricTotalEquity:       800_000,
	model.MetricTotalDebt:         400_000,
	model.MetricOperatingCashFlow: 120_000,
	model.MetricEPSDiluted:        1.25,
}

// factContent marshals a fact document carrying the core values under each
// given namespace, dated to the 2024-12-31 annual period.
func factContent(t *testing.T, namespaces ...string) []byte {
	t.Helper()
	doc := extract.FactDocument{EntityName: "Test Filer", Facts: map[string]extract.FactSet{}}
	for _, ns := range namespaces {
		set := extract.FactSet{}
		for metric, value := range coreValues {
			tags := extract.TagsFor(ns, metric)
			require.NotEmpty(t, tags)
			set[tags[0]] = extract.Fact{Units: map[string][]extract.FactValue{"USD": {{
				Start: "2024-01-01",
				End:   "2024-12-31",
				Val:   value,
				Form:  "10-K",
				Filed: "2025-02-20",
				FP:    "FY",
			}}}}
		}
		doc.Facts[ns] = set
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return b
}

func testDoc(t *testing.T, standard model.AccountingStandard, content []byte) model.FilingDocument {
	t.Helper()
	end, err := time.Parse("2006-01-02", "2024-12-31")
	require.NoError(t, err)
	return model.FilingDocument{
		Meta: model.FilingMetadata{
			ID:             "doc-1",
			PeriodEnd:      end,
			FilingType:     "10-K",
			Standard:       standard,
			Classification: model.IssuerOperating,
		},
		Content: content,
	}
}

// llmFields mirrors coreValues with assisted-extraction provenance.
func llmFields() model.FieldMap {
	fields := make(model.FieldMap, len(coreValues))
	for metric, value := range coreValues {
		fields[metric] = model.TaggedValue{Value: value, Provenance: "llm:financial statements"}
	}
	return fields
}

func TestAdvance_FastPathAccepted(t *testing.T) {
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	state, err := f.orch.Advance(context.Background(), doc, nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusAccepted, state.Status)
	require.Len(t, state.Attempts, 1)
	attempt := state.Attempts[0]
	assert.Equal(t, model.TierFastPath, attempt.Tier)
	assert.Equal(t, model.OutcomeSuccess, attempt.Outcome)
	require.NotNil(t, attempt.Validation)
	assert.True(t, attempt.Validation.Accepted)
	assert.Equal(t, len(model.CoreMetrics), state.AcceptedFields.CoreCoverage())
	assert.Equal(t, int64(1), state.WriteVersion)
	assert.Zero(t, f.infer.callCount())

	events := f.sink.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].Accepted)
	assert.Equal(t, model.StatusAccepted, events[0].Status)
	assert.Equal(t, state.AcceptedFields, events[0].Fields)
}

func TestAdvance_AcceptedEventCarriesFields(t *testing.T) {
	// The event stream is the ingestion hand-off: the accepted field map
	// rides the event itself, as an independent copy.
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	state, err := f.orch.Advance(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Equal(t, model.StatusAccepted, state.Status)

	events := f.sink.all()
	require.Len(t, events, 1)
	ev := events[0]
	require.NotNil(t, ev.Fields)
	assert.Equal(t, len(model.CoreMetrics), ev.Fields.CoreCoverage())
	assert.Equal(t, state.AcceptedFields, ev.Fields)

	// Mutating the event's copy must not reach the checkpointed state.
	rev := ev.Fields[model.MetricRevenue]
	rev.Value = -1
	ev.Fields[model.MetricRevenue] = rev
	assert.NotEqual(t, ev.Fields[model.MetricRevenue], state.AcceptedFields[model.MetricRevenue])
}

func TestAdvance_MixedVocabularyFallsToRepair(t *testing.T) {
	// An IFRS filer whose fast-path values leak from the US-GAAP
	// reconciliation table: the validator rejects the vocabulary mismatch
	// and the repair tier re-extracts from the declared standard.
	f := newFixture(t)
	content := factContent(t, extract.NamespaceUSGAAP, extract.NamespaceIFRS)
	doc := testDoc(t, model.StandardIFRS, content)
	ctx := context.Background()

	state, err := f.orch.Advance(ctx, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, state.Status)
	assert.Equal(t, model.TierRepair, state.CurrentTier)
	require.NotNil(t, state.Attempts[0].Validation)
	assert.False(t, state.Attempts[0].Validation.Accepted)

	state, err = f.orch.Advance(ctx, doc, state)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, state.Status)
	for _, tv := range state.AcceptedFields {
		assert.True(t, strings.HasPrefix(tv.Provenance, "ifrs-full:"), tv.Provenance)
	}
	assert.Equal(t, int64(2), state.WriteVersion)
	assert.Zero(t, f.infer.callCount())
}

func TestAdvance_UnreadableCascadesToAssisted(t *testing.T) {
	f := newFixture(t)
	f.infer.res = &infer.Result{Fields: llmFields(), Confidence: 0.92}
	doc := testDoc(t, model.StandardUSGAAP, []byte("%PDF-1.4 scanned garbage"))
	ctx := context.Background()

	state, err := f.orch.Advance(ctx, doc, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeError, state.Attempts[0].Outcome)
	assert.NotEmpty(t, state.Attempts[0].Error)

	state, err = f.orch.Advance(ctx, doc, state)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInsufficient, state.Attempts[1].Outcome)

	state, err = f.orch.Advance(ctx, doc, state)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, state.Status)
	require.Len(t, state.Attempts, 3)
	attempt := state.Attempts[2]
	assert.Equal(t, model.TierAssisted, attempt.Tier)
	require.NotNil(t, attempt.Confidence)
	assert.InDelta(t, 0.92, *attempt.Confidence, 1e-9)
	assert.Equal(t, 1, f.infer.callCount())
}

func TestAdvance_LowConfidenceSkipsValidation(t *testing.T) {
	f := newFixture(t)
	f.infer.res = &infer.Result{Fields: llmFields(), Confidence: 0.65}
	doc := testDoc(t, model.StandardUSGAAP, []byte("unreadable"))
	ctx := context.Background()

	state, err := f.orch.Advance(ctx, doc, nil)
	require.NoError(t, err)
	state, err = f.orch.Advance(ctx, doc, state)
	require.NoError(t, err)
	state, err = f.orch.Advance(ctx, doc, state)
	require.NoError(t, err)

	assert.Equal(t, model.StatusEscalated, state.Status)
	attempt := state.AttemptForTier(model.TierAssisted)
	require.NotNil(t, attempt)
	assert.Equal(t, model.OutcomeInsufficient, attempt.Outcome)
	assert.Nil(t, attempt.Validation, "sub-threshold confidence must not reach the validator")
	assert.Empty(t, state.AcceptedFields)
}

func TestAdvance_EscalatesAfterAllTiers(t *testing.T) {
	f := newFixture(t)
	f.infer.err = eris.New("service unavailable")
	// Readable but too sparse for any deterministic tier.
	sparse := []byte(`{"entityName":"Sparse Co","facts":{"us-gaap":{}}}`)
	doc := testDoc(t, model.StandardUSGAAP, sparse)
	ctx := context.Background()

	var state *model.PipelineState
	var err error
	for i := 0; i < 3; i++ {
		state, err = f.orch.Advance(ctx, doc, state)
		require.NoError(t, err)
	}

	assert.Equal(t, model.StatusEscalated, state.Status)
	require.Len(t, state.Attempts, 3)
	for i, attempt := range state.Attempts {
		assert.Equal(t, model.Tier(i), attempt.Tier)
	}
	assert.Equal(t, model.OutcomeError, state.Attempts[2].Outcome)
	assert.Equal(t, int64(3), state.WriteVersion)

	events := f.sink.all()
	require.Len(t, events, 3)
	assert.Equal(t, model.StatusEscalated, events[2].Status)
}

func TestAdvance_TerminalStateIsNoOp(t *testing.T) {
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	for _, status := range []model.TerminalStatus{
		model.StatusAccepted, model.StatusEscalated, model.StatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			terminal := model.NewPipelineState("doc-1")
			terminal.Status = status

			before := f.store.saveCount()
			got, err := f.orch.Advance(context.Background(), doc, terminal)
			require.NoError(t, err)
			assert.Same(t, terminal, got)
			assert.Equal(t, before, f.store.saveCount(), "terminal advance must not write")
		})
	}
	assert.Zero(t, f.infer.callCount())
}

func TestAdvance_CheckpointWriteFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.store.failSave = true
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	original := model.NewPipelineState("doc-1")
	got, err := f.orch.Advance(context.Background(), doc, original)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCheckpointWrite))

	// The transition is discarded wholesale.
	assert.Same(t, original, got)
	assert.Empty(t, got.Attempts)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, model.TierFastPath, got.CurrentTier)
	assert.Empty(t, f.sink.all(), "no event for an unacknowledged transition")

	// Retry succeeds once the store recovers.
	f.store.failSave = false
	got, err = f.orch.Advance(context.Background(), doc, original)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestAdvance_RejectsDuplicateTierAttempt(t *testing.T) {
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	state := model.NewPipelineState("doc-1")
	state.Attempts = []model.ExtractionAttempt{{ID: "a1", Tier: model.TierFastPath}}

	_, err := f.orch.Advance(context.Background(), doc, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already attempted")
}

func TestAdvance_RejectsMismatchedDocument(t *testing.T) {
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	state := model.NewPipelineState("other-doc")
	_, err := f.orch.Advance(context.Background(), doc, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestAdvance_ResumeMatchesUninterruptedRun(t *testing.T) {
	// A run that reloads from the checkpoint between tiers produces the same
	// attempt sequence as one that never stopped.
	content := factContent(t, extract.NamespaceUSGAAP, extract.NamespaceIFRS)
	ctx := context.Background()

	runCascade := func(f *fixture, reload bool) *model.PipelineState {
		doc := testDoc(t, model.StandardIFRS, content)
		var state *model.PipelineState
		for {
			next, err := f.orch.Advance(ctx, doc, state)
			require.NoError(t, err)
			if next.Status.Terminal() {
				return next
			}
			state = next
			if reload {
				// Simulate a crash: drop the in-memory state and recover
				// from the durable record.
				recovered, err := checkpoint.LoadOrInit(ctx, f.store, doc.Meta.ID)
				require.NoError(t, err)
				state = recovered
			}
		}
	}

	uninterrupted := runCascade(newFixture(t), false)
	resumed := runCascade(newFixture(t), true)

	require.Len(t, resumed.Attempts, len(uninterrupted.Attempts))
	for i := range resumed.Attempts {
		assert.Equal(t, uninterrupted.Attempts[i].Tier, resumed.Attempts[i].Tier)
		assert.Equal(t, uninterrupted.Attempts[i].Outcome, resumed.Attempts[i].Outcome)
	}
	assert.Equal(t, uninterrupted.Status, resumed.Status)
	assert.Equal(t, uninterrupted.AcceptedFields, resumed.AcceptedFields)
}

func TestAdvance_NilStateInitializes(t *testing.T) {
	f := newFixture(t)
	doc := testDoc(t, model.StandardUSGAAP, factContent(t, extract.NamespaceUSGAAP))

	state, err := f.orch.Advance(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", state.DocumentID)
}

// Package orchestrator drives a filing document through the tiered
// extraction cascade: deterministic fast path, deterministic repair
// fallback, then assisted extraction, with validation gating acceptance and
// a checkpoint write on every transition.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/checkpoint"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/extract"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/infer"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/validate"
)

// ErrCheckpointWrite marks a failed durability acknowledgment. It is the only
// error Advance surfaces to the batch driver: the in-memory transition is
// discarded and the prior checkpoint remains authoritative, so the call is
// safe to retry.
var ErrCheckpointWrite = eris.New("orchestrator: checkpoint write failed")

// Config holds the injected pipeline thresholds.
type Config struct {
	// MinCoreCoverage is the minimum core-metric count below which a tier's
	// attempt is INSUFFICIENT and validation is skipped.
	MinCoreCoverage int
	// MinConfidence is the assisted-extraction confidence floor; below it the
	// Tier 2 attempt is INSUFFICIENT regardless of field coverage.
	MinConfidence float64
	// InferTimeout bounds the single Tier 2 delegation call.
	InferTimeout time.Duration
}

// DefaultConfig returns the deployment defaults: 5 of 8 core metrics,
// confidence 0.80, 90s inference timeout.
func DefaultConfig() Config {
	return Config{MinCoreCoverage: 5, MinConfidence: 0.80, InferTimeout: 90 * time.Second}
}

// Orchestrator owns the per-document state machine.
type Orchestrator struct {
	cfg       Config
	validator *validate.Validator
	store     checkpoint.Store
	infer     infer.Client
	sink      Sink
	now       func() time.Time // injectable for testing
}

// New creates an Orchestrator. The sink may be nil when no observer cares
// about transitions.
func New(cfg Config, validator *validate.Validator, store checkpoint.Store, inferClient infer.Client, sink Sink) *Orchestrator {
	def := DefaultConfig()
	if cfg.MinCoreCoverage <= 0 {
		cfg.MinCoreCoverage = def.MinCoreCoverage
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.InferTimeout <= 0 {
		cfg.InferTimeout = def.InferTimeout
	}
	return &Orchestrator{
		cfg:       cfg,
		validator: validator,
		store:     store,
		infer:     inferClient,
		sink:      sink,
		now:       time.Now,
	}
}

// WithNow fixes the clock for tests.
func (o *Orchestrator) WithNow(fn func() time.Time) *Orchestrator {
	o.now = fn
	return o
}

// Advance runs exactly the next tier for the document, validates its output
// when eligible, computes the new terminal status, and checkpoints the result
// before returning. Calling Advance on a terminal state is a no-op returning
// the state unchanged, which is what makes checkpoint resume safe to repeat.
func (o *Orchestrator) Advance(ctx context.Context, doc model.FilingDocument, state *model.PipelineState) (*model.PipelineState, error) {
	if state == nil {
		state = model.NewPipelineState(doc.Meta.ID)
	}
	if state.Status.Terminal() {
		return state, nil
	}
	if state.DocumentID != doc.Meta.ID {
		return state, eris.Errorf("orchestrator: state %s does not match document %s", state.DocumentID, doc.Meta.ID)
	}

	next := state.Clone()
	tier := next.CurrentTier
	if next.AttemptForTier(tier) != nil {
		return state, eris.Errorf("orchestrator: tier %s already attempted for %s", tier, doc.Meta.ID)
	}

	attempt := o.runTier(ctx, tier, doc)

	var report *model.ValidationReport
	if attempt.Outcome == model.OutcomeSuccess {
		r := o.validator.Validate(attempt.Fields, doc.Meta)
		report = &r
		attempt.Validation = report
	}

	next.Attempts = append(next.Attempts, attempt)

	switch {
	case report != nil && report.Accepted:
		next.Status = model.StatusAccepted
		next.AcceptedFields = attempt.Fields.Clone()
	case tier < model.LastTier:
		next.Status = model.StatusPending
		next.CurrentTier = tier + 1
	default:
		next.Status = model.StatusEscalated
	}

	if err := o.store.Save(ctx, next); err != nil {
		// Discard the transition; the caller keeps retrying from the prior
		// checkpoint.
		return state, eris.Wrap(ErrCheckpointWrite, err.Error())
	}

	o.publish(next, attempt, report)
	return next, nil
}

// runTier executes one tier and classifies its outcome. Tier-internal
// failures never escape: they become ERROR or INSUFFICIENT outcomes that
// drive tier progression.
func (o *Orchestrator) runTier(ctx context.Context, tier model.Tier, doc model.FilingDocument) model.ExtractionAttempt {
	attempt := model.ExtractionAttempt{
		ID:   uuid.New().String(),
		Tier: tier,
		At:   o.now().UTC(),
	}

	switch tier {
	case model.TierFastPath:
		fields, err := extract.Tier0(doc.Content, doc.Meta)
		if err != nil {
			attempt.Outcome = model.OutcomeError
			attempt.Error = err.Error()
			return attempt
		}
		attempt.Fields = fields
		attempt.Outcome = o.coverageOutcome(fields)

	case model.TierRepair:
		fields := extract.Tier1(doc.Content, doc.Meta)
		attempt.Fields = fields
		attempt.Outcome = o.coverageOutcome(fields)

	case model.TierAssisted:
		inferCtx, cancel := context.WithTimeout(ctx, o.cfg.InferTimeout)
		defer cancel()

		res, err := o.infer.Infer(inferCtx, doc)
		if err != nil {
			attempt.Outcome = model.OutcomeError
			attempt.Error = err.Error()
			return attempt
		}
		attempt.Fields = res.Fields
		attempt.Confidence = &res.Confidence
		if res.Confidence < o.cfg.MinConfidence {
			attempt.Outcome = model.OutcomeInsufficient
			return attempt
		}
		attempt.Outcome = o.coverageOutcome(res.Fields)

	default:
		attempt.Outcome = model.OutcomeError
		attempt.Error = "unknown tier"
	}
	return attempt
}

func (o *Orchestrator) coverageOutcome(fields model.FieldMap) model.AttemptOutcome {
	if fields.CoreCoverage() < o.cfg.MinCoreCoverage {
		return model.OutcomeInsufficient
	}
	return model.OutcomeSuccess
}

func (o *Orchestrator) publish(state *model.PipelineState, attempt model.ExtractionAttempt, report *model.ValidationReport) {
	ev := Event{
		ID:         uuid.New().String(),
		DocumentID: state.DocumentID,
		Tier:       attempt.Tier,
		Outcome:    attempt.Outcome,
		Status:     state.Status,
		At:         attempt.At,
	}
	if report != nil {
		ev.Validated = true
		ev.Accepted = report.Accepted
		ev.Violations = report.Violations
	}
	if state.Status == model.StatusAccepted {
		// Downstream consumers ingest the accepted field map straight off the
		// stream; a copy keeps them isolated from the checkpointed state.
		ev.Fields = state.AcceptedFields.Clone()
	}
	if state.Status == model.StatusEscalated && ev.Violations == nil {
		// The final tier failed without reaching validation; the notification
		// still carries the violations accumulated on the way here.
		ev.Violations = state.LastViolations()
	}
	if o.sink != nil {
		o.sink.Publish(ev)
	}

	log := zap.L().With(
		zap.String("document", state.DocumentID),
		zap.String("tier", attempt.Tier.String()),
		zap.String("outcome", string(attempt.Outcome)),
		zap.String("status", string(state.Status)),
	)
	switch state.Status {
	case model.StatusEscalated:
		log.Warn("document escalated for review", zap.Int("violations", len(state.LastViolations())))
	case model.StatusAccepted:
		log.Info("document accepted", zap.Int("fields", len(state.AcceptedFields)))
	default:
		log.Debug("tier advanced")
	}
}

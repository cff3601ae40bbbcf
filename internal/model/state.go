package model

import "time"

// Tier identifies one extraction strategy in the escalation sequence.
type Tier int

const (
	TierFastPath Tier = 0 // fixed-vocabulary deterministic parse
	TierRepair   Tier = 1 // metadata-aware deterministic fallback
	TierAssisted Tier = 2 // external assisted extraction
)

// LastTier is the final automated tier; rejection there escalates to review.
const LastTier = TierAssisted

func (t Tier) String() string {
	switch t {
	case TierFastPath:
		return "tier0"
	case TierRepair:
		return "tier1"
	case TierAssisted:
		return "tier2"
	default:
		return "unknown"
	}
}

// AttemptOutcome classifies a single tier invocation.
type AttemptOutcome string

const (
	OutcomeSuccess      AttemptOutcome = "SUCCESS"
	OutcomeInsufficient AttemptOutcome = "INSUFFICIENT"
	OutcomeError        AttemptOutcome = "ERROR"
)

// TerminalStatus is the document-level pipeline status.
type TerminalStatus string

const (
	StatusPending   TerminalStatus = "PENDING"
	StatusAccepted  TerminalStatus = "ACCEPTED"
	StatusEscalated TerminalStatus = "ESCALATED"
	StatusFailed    TerminalStatus = "FAILED"
)

// Terminal reports whether the status permits no further advancement.
func (s TerminalStatus) Terminal() bool {
	return s != StatusPending
}

// Violation is one validator rule failure.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// ValidationReport is the validator verdict for one extraction attempt.
// Accepted is true iff Violations is empty.
type ValidationReport struct {
	Accepted   bool        `json:"accepted"`
	Violations []Violation `json:"violations,omitempty"`
}

// ExtractionAttempt records one tier invocation for a document. At most one
// attempt exists per tier per document; tiers are never retried internally.
type ExtractionAttempt struct {
	ID         string            `json:"id"`
	Tier       Tier              `json:"tier"`
	Fields     FieldMap          `json:"fields,omitempty"`
	Outcome    AttemptOutcome    `json:"outcome"`
	Confidence *float64          `json:"confidence,omitempty"`
	Error      string            `json:"error,omitempty"`
	Validation *ValidationReport `json:"validation,omitempty"`
	At         time.Time         `json:"at"`
}

// PipelineState is the authoritative per-document progress record and the
// checkpoint-resume anchor. Mutated only by the orchestrator; never deleted.
type PipelineState struct {
	DocumentID     string              `json:"document_id"`
	CurrentTier    Tier                `json:"current_tier"`
	Attempts       []ExtractionAttempt `json:"attempts"`
	Status         TerminalStatus      `json:"status"`
	AcceptedFields FieldMap            `json:"accepted_fields,omitempty"`

	// WriteVersion is a monotonically increasing counter used by the
	// checkpoint store for last-write-wins resolution.
	WriteVersion int64 `json:"write_version"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewPipelineState returns the initial PENDING state for a document.
func NewPipelineState(documentID string) *PipelineState {
	return &PipelineState{
		DocumentID:  documentID,
		CurrentTier: TierFastPath,
		Status:      StatusPending,
	}
}

// Clone deep-copies the state so an Advance call can fail without mutating
// the caller's copy.
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	out := *s
	out.Attempts = make([]ExtractionAttempt, len(s.Attempts))
	copy(out.Attempts, s.Attempts)
	for i := range out.Attempts {
		out.Attempts[i].Fields = s.Attempts[i].Fields.Clone()
		if s.Attempts[i].Validation != nil {
			v := *s.Attempts[i].Validation
			v.Violations = append([]Violation(nil), s.Attempts[i].Validation.Violations...)
			out.Attempts[i].Validation = &v
		}
	}
	out.AcceptedFields = s.AcceptedFields.Clone()
	return &out
}

// AttemptForTier returns the attempt recorded for the given tier, if any.
func (s *PipelineState) AttemptForTier(t Tier) *ExtractionAttempt {
	for i := range s.Attempts {
		if s.Attempts[i].Tier == t {
			return &s.Attempts[i]
		}
	}
	return nil
}

// LastViolations returns the violations from the most recent validated
// attempt, for escalation notifications.
func (s *PipelineState) LastViolations() []Violation {
	for i := len(s.Attempts) - 1; i >= 0; i-- {
		if s.Attempts[i].Validation != nil {
			return s.Attempts[i].Validation.Violations
		}
	}
	return nil
}

package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// Event records one pipeline transition. The orchestrator keeps no counters
// of its own; success and escalation rates are folds over this stream.
type Event struct {
	ID         string               `json:"id"`
	DocumentID string               `json:"document_id"`
	Tier       model.Tier           `json:"tier"`
	Outcome    model.AttemptOutcome `json:"outcome"`
	Validated  bool                 `json:"validated"`
	Accepted   bool                 `json:"accepted"`
	Fields     model.FieldMap       `json:"fields,omitempty"`
	Violations []model.Violation    `json:"violations,omitempty"`
	Status     model.TerminalStatus `json:"status"`
	At         time.Time            `json:"at"`
}

// Sink consumes transition events. Publish must not block the worker for
// long; slow consumers should buffer internally.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// LogSink writes every transition to the structured log.
func LogSink() Sink {
	return SinkFunc(func(ev Event) {
		zap.L().Info("pipeline transition",
			zap.String("document", ev.DocumentID),
			zap.String("tier", ev.Tier.String()),
			zap.String("outcome", string(ev.Outcome)),
			zap.String("status", string(ev.Status)),
			zap.Bool("accepted", ev.Accepted),
			zap.Int("violations", len(ev.Violations)),
		)
	})
}

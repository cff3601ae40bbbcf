// Package monitoring aggregates pipeline health from the orchestrator's
// transition events. The core keeps no shared counters; everything here is a
// pure fold over the event stream.
package monitoring

import (
	"sync"
	"time"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
	"github.com/syz51/fundamental-analysis-system-sub002/internal/orchestrator"
)

// TierTally counts outcomes for one tier.
type TierTally struct {
	Success      int `json:"success"`
	Insufficient int `json:"insufficient"`
	Error        int `json:"error"`
}

// Snapshot is a point-in-time view of pipeline health.
type Snapshot struct {
	Transitions int `json:"transitions"`
	Accepted    int `json:"accepted"`
	Escalated   int `json:"escalated"`

	AcceptanceRate float64 `json:"acceptance_rate"`
	EscalationRate float64 `json:"escalation_rate"`

	Tiers            map[string]TierTally `json:"tiers"`
	ViolationsByRule map[string]int       `json:"violations_by_rule"`

	CollectedAt time.Time `json:"collected_at"`
}

// Fold reduces an event stream to a snapshot. Terminal rates are computed
// over documents that reached a terminal status within the stream.
func Fold(events []orchestrator.Event) *Snapshot {
	snap := &Snapshot{
		Tiers:            make(map[string]TierTally),
		ViolationsByRule: make(map[string]int),
		CollectedAt:      time.Now().UTC(),
	}

	for _, ev := range events {
		snap.Transitions++

		tally := snap.Tiers[ev.Tier.String()]
		switch ev.Outcome {
		case model.OutcomeSuccess:
			tally.Success++
		case model.OutcomeInsufficient:
			tally.Insufficient++
		case model.OutcomeError:
			tally.Error++
		}
		snap.Tiers[ev.Tier.String()] = tally

		for _, v := range ev.Violations {
			snap.ViolationsByRule[v.Rule]++
		}

		switch ev.Status {
		case model.StatusAccepted:
			snap.Accepted++
		case model.StatusEscalated:
			snap.Escalated++
		}
	}

	terminal := snap.Accepted + snap.Escalated
	if terminal > 0 {
		snap.AcceptanceRate = float64(snap.Accepted) / float64(terminal)
		snap.EscalationRate = float64(snap.Escalated) / float64(terminal)
	}
	return snap
}

// Recorder is a Sink that buffers events for later folding, for the serve
// command's metrics endpoint.
type Recorder struct {
	mu     sync.Mutex
	events []orchestrator.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish implements orchestrator.Sink.
func (r *Recorder) Publish(ev orchestrator.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Snapshot folds the events recorded so far.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	events := make([]orchestrator.Event, len(r.events))
	copy(events, r.events)
	r.mu.Unlock()
	return Fold(events)
}

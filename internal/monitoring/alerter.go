package monitoring

import (
	"fmt"

	"go.uber.org/zap"
)

// AlertConfig sets the escalation-rate alarm thresholds.
type AlertConfig struct {
	MaxEscalationRate float64 `yaml:"max_escalation_rate" mapstructure:"max_escalation_rate"`
	MinSample         int     `yaml:"min_sample" mapstructure:"min_sample"`
}

// CheckEscalationRate reports whether the snapshot's escalation rate breaches
// the configured ceiling. Small samples never alarm.
func CheckEscalationRate(snap *Snapshot, cfg AlertConfig) (bool, string) {
	terminal := snap.Accepted + snap.Escalated
	if cfg.MinSample > 0 && terminal < cfg.MinSample {
		return false, ""
	}
	if cfg.MaxEscalationRate <= 0 || snap.EscalationRate <= cfg.MaxEscalationRate {
		return false, ""
	}
	msg := fmt.Sprintf("escalation rate %.1f%% over %d documents exceeds ceiling %.1f%%",
		snap.EscalationRate*100, terminal, cfg.MaxEscalationRate*100)
	zap.L().Warn("escalation rate alert", zap.String("detail", msg))
	return true, msg
}

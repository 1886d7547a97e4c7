package trigger

import (
	"context"
	"sync"
	"time"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

type cpuSample struct {
	at      time.Time
	percent float64
}

// CPUEvaluator matches when CPU load is at or above the threshold,
// sustained for duration_minutes. It keeps a short rolling window of
// samples per rule; an instantaneous spike is not enough unless the
// rule asks for no sustain window.
type CPUEvaluator struct {
	stats ports.SystemStats

	mu      sync.Mutex
	windows map[id.RuleID][]cpuSample
}

func NewCPUEvaluator(stats ports.SystemStats) *CPUEvaluator {
	return &CPUEvaluator{
		stats:   stats,
		windows: make(map[id.RuleID][]cpuSample),
	}
}

func (e *CPUEvaluator) Kind() models.TriggerKind { return models.TriggerCPUThreshold }

func (e *CPUEvaluator) Evaluate(ctx context.Context, rule *models.Rule, now time.Time) (models.Verdict, error) {
	cfg, err := validate.Decode[validate.CPUThresholdConfig](rule.TriggerConfig)
	if err != nil {
		return models.Verdict{}, err
	}

	percent, err := e.stats.CPUPercent(ctx)
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "cpu snapshot unavailable")
	}

	duration := time.Duration(cfg.DurationMinutes) * time.Minute
	if duration == 0 {
		if percent >= cfg.Threshold {
			return models.Verdict{Matched: true, Payload: map[string]any{
				"cpu_percent": percent,
				"threshold":   cfg.Threshold,
			}}, nil
		}
		return models.Verdict{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	window := append(e.windows[rule.ID], cpuSample{at: now, percent: percent})

	// Keep a small margin past the sustain window so boundary samples
	// are not lost between ticks.
	cutoff := now.Add(-duration - time.Minute)
	trimmed := window[:0]
	for _, s := range window {
		if s.at.After(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	e.windows[rule.ID] = trimmed

	// The window must span the full sustain duration, and every sample
	// inside it must be at or above the threshold.
	spanStart := now.Add(-duration)
	spans := false
	for _, s := range trimmed {
		if !s.at.After(spanStart) {
			spans = true
			break
		}
	}
	if !spans {
		return models.Verdict{}, nil
	}

	for _, s := range trimmed {
		if s.at.Before(spanStart) {
			continue
		}
		if s.percent < cfg.Threshold {
			return models.Verdict{}, nil
		}
	}

	return models.Verdict{Matched: true, Payload: map[string]any{
		"cpu_percent":      percent,
		"threshold":        cfg.Threshold,
		"duration_minutes": cfg.DurationMinutes,
	}}, nil
}

func (e *CPUEvaluator) forget(ruleID id.RuleID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.windows, ruleID)
}

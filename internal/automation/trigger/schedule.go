package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

// ScheduleEvaluator matches when the current tick has crossed a
// cron-computed fire time since the previous check. Tracking the last
// check per rule makes it immune to tick granularity: a boundary is
// crossed exactly once no matter how often the scheduler polls.
type ScheduleEvaluator struct {
	mu        sync.Mutex
	lastCheck map[id.RuleID]time.Time
}

func NewScheduleEvaluator() *ScheduleEvaluator {
	return &ScheduleEvaluator{lastCheck: make(map[id.RuleID]time.Time)}
}

func (e *ScheduleEvaluator) Kind() models.TriggerKind { return models.TriggerScheduled }

func (e *ScheduleEvaluator) Evaluate(_ context.Context, rule *models.Rule, now time.Time) (models.Verdict, error) {
	cfg, err := validate.Decode[validate.ScheduledConfig](rule.TriggerConfig)
	if err != nil {
		return models.Verdict{}, err
	}

	schedule, err := cron.ParseStandard(cfg.Cron)
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(err, dErrors.CodeValidation, "cron expression is not a valid 5-field schedule")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	last, seen := e.lastCheck[rule.ID]
	e.lastCheck[rule.ID] = now
	if !seen {
		// First observation after start or rule creation: arm the
		// schedule without firing for boundaries already in the past.
		return models.Verdict{}, nil
	}

	next := schedule.Next(last)
	if next.After(now) {
		return models.Verdict{}, nil
	}

	return models.Verdict{Matched: true, Payload: map[string]any{
		"cron":     cfg.Cron,
		"fired_at": next.Format(time.RFC3339),
	}}, nil
}

func (e *ScheduleEvaluator) forget(ruleID id.RuleID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastCheck, ruleID)
}

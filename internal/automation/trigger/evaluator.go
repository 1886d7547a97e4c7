// Package trigger implements the five condition strategies. Each
// evaluator turns (rule config, current snapshot) into a Verdict; only
// file_upload is event-driven, the rest are polled per scheduler tick.
package trigger

import (
	"context"
	"time"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

// Evaluator produces a match verdict for one rule on one tick.
type Evaluator interface {
	Kind() models.TriggerKind
	Evaluate(ctx context.Context, rule *models.Rule, now time.Time) (models.Verdict, error)
}

// Registry dispatches evaluation by trigger kind. Adding a kind means
// registering one more evaluator, nothing else changes.
type Registry struct {
	evaluators map[models.TriggerKind]Evaluator
	upload     *UploadEvaluator
}

// Deps are the external snapshots evaluators read from.
type Deps struct {
	Stats   ports.SystemStats
	Querier ports.DatabaseQuerier
}

// NewRegistry builds the full evaluator set.
func NewRegistry(deps Deps) *Registry {
	upload := NewUploadEvaluator()
	evaluators := []Evaluator{
		NewStorageEvaluator(deps.Stats),
		NewCPUEvaluator(deps.Stats),
		NewScheduleEvaluator(),
		NewDatabaseQueryEvaluator(deps.Querier),
		upload,
	}

	byKind := make(map[models.TriggerKind]Evaluator, len(evaluators))
	for _, e := range evaluators {
		byKind[e.Kind()] = e
	}
	return &Registry{evaluators: byKind, upload: upload}
}

// Evaluate runs the evaluator for the rule's trigger kind.
func (r *Registry) Evaluate(ctx context.Context, rule *models.Rule, now time.Time) (models.Verdict, error) {
	evaluator, ok := r.evaluators[rule.TriggerKind]
	if !ok {
		return models.Verdict{}, dErrors.Newf(dErrors.CodeValidation, "no evaluator for trigger kind %q", rule.TriggerKind)
	}
	return evaluator.Evaluate(ctx, rule, now)
}

// Upload exposes the event-driven evaluator for the ingest path.
func (r *Registry) Upload() *UploadEvaluator { return r.upload }

// stateful is implemented by evaluators that keep per-rule history.
type statefulEvaluator interface {
	forget(ruleID id.RuleID)
}

// Forget drops any per-rule evaluator state (deleted or edited rules).
func (r *Registry) Forget(ruleID id.RuleID) {
	for _, e := range r.evaluators {
		if f, ok := e.(statefulEvaluator); ok {
			f.forget(ruleID)
		}
	}
}

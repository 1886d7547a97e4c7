// Package config holds the engine tunables and the plan tier table.
package config

import (
	"context"
	"time"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
)

// TierLimits is what one plan tier permits.
type TierLimits struct {
	MaxActiveRules  int
	AllowedTriggers []models.TriggerKind
	AllowedActions  []models.ActionKind
}

// Config tunes the scheduler, dispatcher and gate.
type Config struct {
	// TickInterval is the scheduler cadence.
	TickInterval time.Duration

	// EvalWorkers bounds per-tick evaluation fan-out.
	EvalWorkers int

	// DispatchWorkers bounds concurrent action sends; a stuck webhook
	// must not delay evaluation of other rules.
	DispatchWorkers int

	// DispatchQueueSize bounds firings waiting for a dispatch worker.
	DispatchQueueSize int

	// ActionTimeout bounds each external send attempt.
	ActionTimeout time.Duration

	// MaxAttempts bounds send attempts per firing, including the first.
	MaxAttempts int

	// RetryBackoff is the pause between attempts on transient failure.
	RetryBackoff time.Duration

	// DefaultCooldowns is the per-kind cool-down applied when the rule
	// does not configure its own (only database_query does).
	DefaultCooldowns map[models.TriggerKind]time.Duration

	// LogPageSize bounds execution-log listing.
	LogPageSize int

	// Tiers maps plan tiers to their limits. Delinquent billing
	// degrades any tier to the free limits.
	Tiers map[models.PlanTier]TierLimits
}

// Default returns production defaults.
func Default() *Config {
	return &Config{
		TickInterval:      time.Minute,
		EvalWorkers:       8,
		DispatchWorkers:   4,
		DispatchQueueSize: 256,
		ActionTimeout:     10 * time.Second,
		MaxAttempts:       3,
		RetryBackoff:      2 * time.Second,
		DefaultCooldowns: map[models.TriggerKind]time.Duration{
			models.TriggerStorageThreshold: time.Hour,
			models.TriggerCPUThreshold:     30 * time.Minute,
			models.TriggerFileUpload:       0,
			models.TriggerScheduled:        0,
			models.TriggerDatabaseQuery:    15 * time.Minute,
		},
		LogPageSize: 100,
		Tiers: map[models.PlanTier]TierLimits{
			models.PlanFree: {
				MaxActiveRules: 3,
				AllowedTriggers: []models.TriggerKind{
					models.TriggerStorageThreshold,
					models.TriggerScheduled,
				},
				AllowedActions: []models.ActionKind{
					models.ActionDashboardAlert,
				},
			},
			models.PlanPlus: {
				MaxActiveRules: 10,
				AllowedTriggers: []models.TriggerKind{
					models.TriggerStorageThreshold,
					models.TriggerCPUThreshold,
					models.TriggerFileUpload,
					models.TriggerScheduled,
				},
				AllowedActions: []models.ActionKind{
					models.ActionDashboardAlert,
					models.ActionEmail,
					models.ActionDiscord,
				},
			},
			models.PlanPro: {
				MaxActiveRules:  50,
				AllowedTriggers: models.AllTriggerKinds(),
				AllowedActions:  models.AllActionKinds(),
			},
		},
	}
}

// StaticPlanSource serves one plan for every owner. Self-hosted
// single-tenant installs configure it from the license; multi-tenant
// installs swap in a billing-backed source.
type StaticPlanSource struct {
	plan models.Plan
}

func NewStaticPlanSource(plan models.Plan) *StaticPlanSource {
	if !plan.Tier.IsValid() {
		plan.Tier = models.PlanFree
	}
	return &StaticPlanSource{plan: plan}
}

func (s *StaticPlanSource) PlanFor(_ context.Context, _ id.OwnerID) (models.Plan, error) {
	return s.plan, nil
}

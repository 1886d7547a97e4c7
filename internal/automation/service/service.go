// Package service implements rule lifecycle operations: create, read,
// update, delete, plan reconciliation and execution-log access. All
// operations are owner-scoped; the plan gate runs synchronously on
// every write.
package service

import (
	"context"
	"log/slog"
	"strings"

	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/gate"
	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

// evaluatorState is the trigger-registry surface the service needs:
// dropping per-rule history when a rule is deleted or redefined.
type evaluatorState interface {
	Forget(ruleID id.RuleID)
}

type Service struct {
	config   *c.Config
	rules    ports.RuleStore
	logs     ports.ExecutionLogStore
	debounce ports.DebounceStore
	state    evaluatorState
	gate     *gate.Gate
	plans    ports.PlanSource
	clock    ports.Clock
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(clock ports.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func New(
	config *c.Config,
	rules ports.RuleStore,
	logs ports.ExecutionLogStore,
	debounce ports.DebounceStore,
	state evaluatorState,
	g *gate.Gate,
	plans ports.PlanSource,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		config:   config,
		rules:    rules,
		logs:     logs,
		debounce: debounce,
		state:    state,
		gate:     g,
		plans:    plans,
		clock:    ports.WallClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new rule. The gate sees the complete
// definition before anything is stored; a rejected rule leaves no trace.
func (s *Service) Create(ctx context.Context, ownerID id.OwnerID, req models.CreateRuleRequest) (*models.Rule, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if err := validate.Rule(req.TriggerKind, req.TriggerConfig, req.ActionKind, req.ActionConfig); err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	profile, err := s.profileFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckKinds(profile, req.TriggerKind, req.ActionKind); err != nil {
		return nil, err
	}
	if active {
		count, err := s.rules.CountActive(ctx, ownerID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count active rules")
		}
		if err := s.gate.CheckQuota(profile, count); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	rule := &models.Rule{
		ID:                id.NewRuleID(),
		OwnerID:           ownerID,
		Name:              name,
		Description:       strings.TrimSpace(req.Description),
		Active:            active,
		EnforcementStatus: models.EnforcementEnforced,
		TriggerKind:       req.TriggerKind,
		TriggerConfig:     req.TriggerConfig,
		ActionKind:        req.ActionKind,
		ActionConfig:      req.ActionConfig,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("rule created",
		"rule_id", rule.ID,
		"owner_id", ownerID,
		"trigger_kind", rule.TriggerKind,
		"action_kind", rule.ActionKind,
	)
	return rule, nil
}

// Get returns one rule, owner-scoped.
func (s *Service) Get(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) (*models.Rule, error) {
	return s.rules.Get(ctx, ownerID, ruleID)
}

// List returns the owner's rules, newest first.
func (s *Service) List(ctx context.Context, ownerID id.OwnerID) ([]*models.Rule, error) {
	return s.rules.ListByOwner(ctx, ownerID)
}

// Update replaces a rule's definition. An update that passes the gate
// re-enforces a rule previously suspended by plan drift; evaluator
// history for the old definition is dropped.
func (s *Service) Update(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID, req models.UpdateRuleRequest) (*models.Rule, error) {
	existing, err := s.rules.Get(ctx, ownerID, ruleID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if err := validate.Rule(req.TriggerKind, req.TriggerConfig, req.ActionKind, req.ActionConfig); err != nil {
		return nil, err
	}

	profile, err := s.profileFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckKinds(profile, req.TriggerKind, req.ActionKind); err != nil {
		return nil, err
	}
	if req.Active && !existing.Active {
		count, err := s.rules.CountActive(ctx, ownerID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count active rules")
		}
		if err := s.gate.CheckQuota(profile, count); err != nil {
			return nil, err
		}
	}

	updated := *existing
	updated.Name = name
	updated.Description = strings.TrimSpace(req.Description)
	updated.Active = req.Active
	updated.EnforcementStatus = models.EnforcementEnforced
	updated.TriggerKind = req.TriggerKind
	updated.TriggerConfig = req.TriggerConfig
	updated.ActionKind = req.ActionKind
	updated.ActionConfig = req.ActionConfig
	updated.UpdatedAt = s.clock.Now()

	if err := s.rules.Update(ctx, &updated); err != nil {
		return nil, err
	}
	s.state.Forget(ruleID)

	s.logger.Info("rule updated", "rule_id", ruleID, "owner_id", ownerID)
	return &updated, nil
}

// Delete removes a rule and all of its evaluator and debounce state.
// Its execution log entries survive.
func (s *Service) Delete(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) error {
	if err := s.rules.Delete(ctx, ownerID, ruleID); err != nil {
		return err
	}
	s.state.Forget(ruleID)
	if err := s.debounce.Forget(ctx, ruleID); err != nil {
		s.logger.Warn("failed to drop debounce state for deleted rule", "rule_id", ruleID, "error", err)
	}

	s.logger.Info("rule deleted", "rule_id", ruleID, "owner_id", ownerID)
	return nil
}

// ReconcilePlan re-checks the owner's rules against their current plan.
// Rules outside the plan are suspended, never deleted; previously
// suspended rules that fit again are re-enforced. Oldest rules keep
// their slots when the quota shrinks.
func (s *Service) ReconcilePlan(ctx context.Context, ownerID id.OwnerID) (suspended, restored int, err error) {
	profile, err := s.profileFor(ctx, ownerID)
	if err != nil {
		return 0, 0, err
	}

	rules, err := s.rules.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, 0, err
	}
	// ListByOwner is newest first; reconcile oldest first so long-lived
	// rules win the quota slots.
	for i, j := 0, len(rules)-1; i < j; i, j = i+1, j-1 {
		rules[i], rules[j] = rules[j], rules[i]
	}

	enforcedCount := 0
	for _, rule := range rules {
		if !rule.Active {
			continue
		}

		fits := profile.AllowsTrigger(rule.TriggerKind) &&
			profile.AllowsAction(rule.ActionKind) &&
			enforcedCount < profile.MaxActiveRules
		if fits {
			enforcedCount++
		}

		switch {
		case fits && rule.EnforcementStatus == models.EnforcementSuspendedByGate:
			if err := s.rules.SetEnforcementStatus(ctx, rule.ID, models.EnforcementEnforced); err != nil {
				return suspended, restored, err
			}
			restored++
		case !fits && rule.EnforcementStatus == models.EnforcementEnforced:
			if err := s.rules.SetEnforcementStatus(ctx, rule.ID, models.EnforcementSuspendedByGate); err != nil {
				return suspended, restored, err
			}
			suspended++
		}
	}

	if suspended > 0 || restored > 0 {
		s.logger.Info("plan reconciled",
			"owner_id", ownerID,
			"suspended", suspended,
			"restored", restored,
		)
	}
	return suspended, restored, nil
}

// ListLogs returns the owner's execution log, newest first. limit is
// clamped to the configured page size; zero means one full page.
func (s *Service) ListLogs(ctx context.Context, ownerID id.OwnerID, limit int) ([]*models.ExecutionLogEntry, error) {
	if limit <= 0 || limit > s.config.LogPageSize {
		limit = s.config.LogPageSize
	}
	return s.logs.ListByOwner(ctx, ownerID, limit)
}

// ClearLogs removes the owner's execution log and reports the count.
func (s *Service) ClearLogs(ctx context.Context, ownerID id.OwnerID) (int, error) {
	removed, err := s.logs.ClearOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("execution log cleared", "owner_id", ownerID, "removed", removed)
	return removed, nil
}

func (s *Service) profileFor(ctx context.Context, ownerID id.OwnerID) (models.CapabilityProfile, error) {
	plan, err := s.plans.PlanFor(ctx, ownerID)
	if err != nil {
		return models.CapabilityProfile{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve plan")
	}
	return s.gate.Profile(plan), nil
}

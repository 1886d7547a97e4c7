// Package scheduler drives rule evaluation: a ticker polls every active
// rule through the trigger registry, debounces matches against the
// per-kind cool-down, and hands surviving firings to the dispatcher.
// Upload events skip the poll and arrive through HandleUpload.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	c "nimbus/internal/automation/config"
	"nimbus/internal/automation/gate"
	"nimbus/internal/automation/metrics"
	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/trigger"
	"nimbus/internal/automation/validate"
	id "nimbus/pkg/domain"
)

// firingQueue is the dispatcher surface the scheduler needs.
type firingQueue interface {
	Enqueue(firing models.Firing) error
}

type Scheduler struct {
	config     *c.Config
	rules      ports.RuleStore
	registry   *trigger.Registry
	debounce   ports.DebounceStore
	queue      firingQueue
	logs       ports.ExecutionLogStore
	gate       *gate.Gate
	plans      ports.PlanSource
	clock      ports.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	ruleLocks  keyedMutex
	cancelTick context.CancelFunc
	done       chan struct{}
}

type Option func(*Scheduler)

func WithClock(clock ports.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(
	config *c.Config,
	rules ports.RuleStore,
	registry *trigger.Registry,
	debounce ports.DebounceStore,
	queue firingQueue,
	logs ports.ExecutionLogStore,
	g *gate.Gate,
	plans ports.PlanSource,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		config:   config,
		rules:    rules,
		registry: registry,
		debounce: debounce,
		queue:    queue,
		logs:     logs,
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

// Start launches the tick loop. The first tick runs one interval after
// start, not immediately, so threshold evaluators see a settled system.
func (s *Scheduler) Start(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancelTick = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.Tick(tickCtx, s.clock.Now())
			}
		}
	}()
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancelTick == nil {
		return
	}
	s.cancelTick()
	<-s.done
}

// Tick evaluates every active rule once. Evaluation fans out across a
// bounded worker group; one slow database query must not starve the
// rest of the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active rules for tick", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveRules.Set(float64(len(rules)))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.EvalWorkers)
	for _, rule := range rules {
		if !rule.Evaluable() || rule.TriggerKind == models.TriggerFileUpload {
			continue
		}
		rule := rule
		group.Go(func() error {
			s.evaluate(groupCtx, rule, now)
			return nil
		})
	}
	_ = group.Wait()
}

// HandleUpload routes one upload event to the owner's file_upload rules.
func (s *Scheduler) HandleUpload(ctx context.Context, event models.UploadEvent) {
	if s.metrics != nil {
		s.metrics.UploadEventsTotal.Inc()
	}

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active rules for upload event", "error", err)
		return
	}

	now := s.clock.Now()
	for _, rule := range rules {
		if !rule.Evaluable() || rule.TriggerKind != models.TriggerFileUpload || rule.OwnerID != event.OwnerID {
			continue
		}
		verdict, err := s.registry.Upload().Match(rule, event)
		if err != nil {
			s.recordEvaluationFailure(ctx, rule, err, now)
			continue
		}
		if verdict.Matched {
			s.proceed(ctx, rule, verdict, now)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, rule *models.Rule, now time.Time) {
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.Inc()
	}

	verdict, err := s.registry.Evaluate(ctx, rule, now)
	if err != nil {
		s.recordEvaluationFailure(ctx, rule, err, now)
		return
	}
	if verdict.Matched {
		s.proceed(ctx, rule, verdict, now)
	}
}

// proceed takes a matched rule through the debounce gate, the plan
// belt-check, and into the dispatch queue. The per-rule lock makes the
// check-then-mark atomic so concurrent match paths (tick vs upload)
// cannot double-fire one rule.
func (s *Scheduler) proceed(ctx context.Context, rule *models.Rule, verdict models.Verdict, now time.Time) {
	unlock := s.ruleLocks.lock(rule.ID)
	defer unlock()

	cooldown := s.cooldownFor(rule)
	if cooldown > 0 {
		last, ok, err := s.debounce.LastFired(ctx, rule.ID)
		if err != nil {
			s.logger.Warn("debounce lookup failed, firing anyway", "rule_id", rule.ID, "error", err)
			ok = false
		}
		if !ok && rule.LastTriggered != nil {
			// Store state was lost (restart with the memory store); fall
			// back to the persisted firing time.
			last, ok = *rule.LastTriggered, true
		}
		if ok && now.Sub(last) < cooldown {
			if s.metrics != nil {
				s.metrics.DebounceSuppressedTotal.Inc()
			}
			return
		}
	}

	// Belt check against the current plan: suspension normally happens
	// at reconcile time, but a rule matching mid-downgrade is logged as
	// gated instead of fired.
	if plan, err := s.plans.PlanFor(ctx, rule.OwnerID); err == nil {
		profile := s.gate.Profile(plan)
		if !profile.AllowsTrigger(rule.TriggerKind) || !profile.AllowsAction(rule.ActionKind) {
			s.recordGated(ctx, rule, verdict, now)
			return
		}
	}

	if err := s.debounce.MarkFired(ctx, rule.ID, now, cooldown); err != nil {
		s.logger.Warn("failed to record debounce state", "rule_id", rule.ID, "error", err)
	}
	if err := s.rules.SetLastTriggered(ctx, rule.ID, now); err != nil {
		s.logger.Warn("failed to record last triggered", "rule_id", rule.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.FiringsTotal.Inc()
	}

	firing := models.Firing{
		RuleID:     rule.ID,
		OwnerID:    rule.OwnerID,
		RuleName:   rule.Name,
		ActionKind: rule.ActionKind,
		Config:     rule.ActionConfig,
		Payload:    verdict.Payload,
		MatchedAt:  now,
	}
	if err := s.queue.Enqueue(firing); err != nil {
		s.logger.Error("failed to enqueue firing", "rule_id", rule.ID, "error", err)
		s.appendEntry(ctx, &models.ExecutionLogEntry{
			ID:        id.NewLogID(),
			OwnerID:   rule.OwnerID,
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Status:    models.ExecutionFailed,
			Payload:   verdict.Payload,
			Error:     err.Error(),
			CreatedAt: now,
		})
	}
}

// cooldownFor resolves the rule's debounce window: database_query rules
// carry their own, every other kind uses the engine default.
func (s *Scheduler) cooldownFor(rule *models.Rule) time.Duration {
	if rule.TriggerKind == models.TriggerDatabaseQuery {
		if cfg, err := validate.Decode[validate.DatabaseQueryConfig](rule.TriggerConfig); err == nil && cfg.DebounceMinutes > 0 {
			return time.Duration(cfg.DebounceMinutes) * time.Minute
		}
	}
	return s.config.DefaultCooldowns[rule.TriggerKind]
}

func (s *Scheduler) recordEvaluationFailure(ctx context.Context, rule *models.Rule, evalErr error, now time.Time) {
	if s.metrics != nil {
		s.metrics.EvaluationErrorsTotal.Inc()
	}
	s.logger.Warn("trigger evaluation failed",
		"rule_id", rule.ID,
		"trigger_kind", rule.TriggerKind,
		"error", evalErr,
	)
	s.appendEntry(ctx, &models.ExecutionLogEntry{
		ID:        id.NewLogID(),
		OwnerID:   rule.OwnerID,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Status:    models.ExecutionFailed,
		Error:     evalErr.Error(),
		CreatedAt: now,
	})
}

func (s *Scheduler) recordGated(ctx context.Context, rule *models.Rule, verdict models.Verdict, now time.Time) {
	s.appendEntry(ctx, &models.ExecutionLogEntry{
		ID:        id.NewLogID(),
		OwnerID:   rule.OwnerID,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Status:    models.ExecutionGated,
		Payload:   verdict.Payload,
		Error:     "rule matched but is not covered by the current plan",
		CreatedAt: now,
	})
}

func (s *Scheduler) appendEntry(ctx context.Context, entry *models.ExecutionLogEntry) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error("failed to append execution log entry", "rule_id", entry.RuleID, "error", err)
	}
}

// keyedMutex serializes work per rule ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[id.RuleID]*sync.Mutex
}

func (k *keyedMutex) lock(ruleID id.RuleID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[id.RuleID]*sync.Mutex)
	}
	m, ok := k.locks[ruleID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[ruleID] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

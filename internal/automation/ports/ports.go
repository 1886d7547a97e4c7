// Package ports defines shared interfaces for the automation module.
// Interfaces live here when consumed by multiple packages; single
// consumers declare their own.
package ports

import (
	"context"
	"time"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
)

// RuleStore persists rule definitions. It is the only component that
// mutates them.
type RuleStore interface {
	// Create persists a new rule.
	Create(ctx context.Context, rule *models.Rule) error

	// Get returns the rule, owner-scoped. Missing and foreign rules are
	// both reported as not found so ownership is never leaked.
	Get(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) (*models.Rule, error)

	// Update replaces a rule's mutable attributes, owner-scoped.
	Update(ctx context.Context, rule *models.Rule) error

	// Delete removes a rule, owner-scoped.
	Delete(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) error

	// ListByOwner returns the owner's rules, newest first.
	ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*models.Rule, error)

	// ListActive returns every active rule across owners, for the
	// scheduler tick.
	ListActive(ctx context.Context) ([]*models.Rule, error)

	// CountActive counts the owner's active rules, for quota gating.
	CountActive(ctx context.Context, ownerID id.OwnerID) (int, error)

	// SetLastTriggered records the most recent firing time.
	SetLastTriggered(ctx context.Context, ruleID id.RuleID, at time.Time) error

	// SetEnforcementStatus flips a rule's enforcement status without
	// touching its configuration (plan drift marking).
	SetEnforcementStatus(ctx context.Context, ruleID id.RuleID, status models.EnforcementStatus) error
}

// ExecutionLogStore is the append-only record of firing attempts.
type ExecutionLogStore interface {
	// Append stores one entry. Entries are never mutated afterwards.
	Append(ctx context.Context, entry *models.ExecutionLogEntry) error

	// ListByOwner returns the owner's entries, most recent first,
	// bounded by limit.
	ListByOwner(ctx context.Context, ownerID id.OwnerID, limit int) ([]*models.ExecutionLogEntry, error)

	// ClearOwner removes all of the owner's entries and reports the count.
	ClearOwner(ctx context.Context, ownerID id.OwnerID) (int, error)
}

// DebounceStore tracks per-rule cool-down state. The memory
// implementation accepts the at-least-once restart gap; the redis
// implementation persists last-fired timestamps to narrow it.
type DebounceStore interface {
	// LastFired returns the recorded last firing time, if any.
	LastFired(ctx context.Context, ruleID id.RuleID) (time.Time, bool, error)

	// MarkFired records a firing. window bounds how long the record
	// must survive; stores may expire it afterwards.
	MarkFired(ctx context.Context, ruleID id.RuleID, at time.Time, window time.Duration) error

	// Forget drops the state for a deleted rule.
	Forget(ctx context.Context, ruleID id.RuleID) error
}

// SystemStats samples host state for threshold triggers.
type SystemStats interface {
	// DiskUsedPercent returns used storage capacity, 0-100.
	DiskUsedPercent(ctx context.Context) (float64, error)

	// CPUPercent returns aggregate CPU load, 0-100.
	CPUPercent(ctx context.Context) (float64, error)
}

// DatabaseQuerier runs read-only queries against a user database for
// the database_query trigger kind.
type DatabaseQuerier interface {
	// QueryFirstRow executes the query and returns the first row as a
	// flat field map. ok is false when the query returned no rows.
	QueryFirstRow(ctx context.Context, databaseID, query string) (row map[string]any, ok bool, err error)
}

// EmailSender delivers rendered email actions through the product's
// outbound mail transport.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AlertSink receives in-product dashboard notifications.
type AlertSink interface {
	Publish(ctx context.Context, alert *models.DashboardAlert) error
}

// TextModel is the external language-model capability behind the rule
// compiler. Implementations are untrusted draft producers.
type TextModel interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// PlanSource resolves the current plan state for an owner.
type PlanSource interface {
	PlanFor(ctx context.Context, ownerID id.OwnerID) (models.Plan, error)
}

// Clock abstracts time so tests can drive ticks deterministically.
type Clock interface {
	Now() time.Time
}

// WallClock is the production clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

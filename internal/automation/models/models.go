// Package models holds the automation rule engine data model: rules,
// execution log entries, firings, plan capabilities and the trigger and
// action kind enumerations. Kind enumerations and their config schemas
// are a fixed contract; adding a kind is an additive change, never a
// reinterpretation of an existing kind's fields.
package models

import (
	"time"

	id "nimbus/pkg/domain"
)

// TriggerKind names a condition strategy. Only file_upload is
// event-driven; the remaining kinds are polled on each scheduler tick.
type TriggerKind string

const (
	TriggerStorageThreshold TriggerKind = "storage_threshold"
	TriggerCPUThreshold     TriggerKind = "cpu_threshold"
	TriggerFileUpload       TriggerKind = "file_upload"
	TriggerScheduled        TriggerKind = "scheduled"
	TriggerDatabaseQuery    TriggerKind = "database_query"
)

// AllTriggerKinds lists every supported trigger kind, in contract order.
func AllTriggerKinds() []TriggerKind {
	return []TriggerKind{
		TriggerStorageThreshold,
		TriggerCPUThreshold,
		TriggerFileUpload,
		TriggerScheduled,
		TriggerDatabaseQuery,
	}
}

func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerStorageThreshold, TriggerCPUThreshold, TriggerFileUpload, TriggerScheduled, TriggerDatabaseQuery:
		return true
	}
	return false
}

// ActionKind names a side-effect strategy.
type ActionKind string

const (
	ActionEmail          ActionKind = "email"
	ActionDiscord        ActionKind = "discord"
	ActionWebhook        ActionKind = "webhook"
	ActionDashboardAlert ActionKind = "dashboard_alert"
)

// AllActionKinds lists every supported action kind, in contract order.
func AllActionKinds() []ActionKind {
	return []ActionKind{ActionEmail, ActionDiscord, ActionWebhook, ActionDashboardAlert}
}

func (k ActionKind) IsValid() bool {
	switch k {
	case ActionEmail, ActionDiscord, ActionWebhook, ActionDashboardAlert:
		return true
	}
	return false
}

// EnforcementStatus records whether a rule may currently evaluate.
type EnforcementStatus string

const (
	// EnforcementEnforced is the normal state: the rule evaluates.
	EnforcementEnforced EnforcementStatus = "enforced"

	// EnforcementSuspendedByGate marks a rule whose kind or count
	// exceeds the owner's current plan after a downgrade. The rule is
	// kept, skipped by the scheduler, and reactivated on upgrade or on
	// edit to a compliant configuration.
	EnforcementSuspendedByGate EnforcementStatus = "suspended_by_gate"

	// EnforcementError marks a rule persisted with a configuration the
	// engine can no longer interpret (e.g. after a schema migration).
	EnforcementError EnforcementStatus = "error"
)

// Rule is a user-defined condition → action automation.
type Rule struct {
	ID                id.RuleID
	OwnerID           id.OwnerID
	Name              string
	Description       string
	Active            bool
	EnforcementStatus EnforcementStatus
	TriggerKind       TriggerKind
	TriggerConfig     map[string]any
	ActionKind        ActionKind
	ActionConfig      map[string]any
	LastTriggered     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Evaluable reports whether the scheduler should evaluate the rule.
func (r *Rule) Evaluable() bool {
	return r.Active && r.EnforcementStatus == EnforcementEnforced
}

// ExecutionStatus classifies a log entry.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionGated   ExecutionStatus = "gated"
)

// ExecutionLogEntry is the append-only record of one firing attempt.
// RuleName is denormalized so the entry survives rule deletion.
type ExecutionLogEntry struct {
	ID            id.LogID
	OwnerID       id.OwnerID
	RuleID        id.RuleID
	RuleName      string
	Status        ExecutionStatus
	Payload       map[string]any
	ActionSummary string
	Attempts      int
	Error         string
	CreatedAt     time.Time
}

// Verdict is the result of one trigger evaluation.
type Verdict struct {
	Matched bool
	// Payload is the matched data (e.g. the first database row) used
	// for message templating. Nil when the trigger carries no data.
	Payload map[string]any
}

// Firing is one matched trigger on its way to action dispatch. It
// snapshots the rule so a concurrent edit or delete cannot change an
// already-enqueued firing.
type Firing struct {
	RuleID     id.RuleID
	OwnerID    id.OwnerID
	RuleName   string
	ActionKind ActionKind
	Config     map[string]any
	Payload    map[string]any
	MatchedAt  time.Time
}

// UploadEvent is emitted by the file-ingest subsystem per completed
// upload and drives the file_upload trigger kind.
type UploadEvent struct {
	OwnerID   id.OwnerID `json:"owner_id"`
	FileName  string     `json:"file_name"`
	Extension string     `json:"extension"`
	SizeBytes int64      `json:"size_bytes"`
	At        time.Time  `json:"at"`
}

// PlanTier is the billing tier of an owner.
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPlus PlanTier = "plus"
	PlanPro  PlanTier = "pro"
)

func (t PlanTier) IsValid() bool {
	switch t {
	case PlanFree, PlanPlus, PlanPro:
		return true
	}
	return false
}

// Plan is the gate's input: tier plus billing standing.
type Plan struct {
	Tier      PlanTier
	BillingOK bool
}

// CapabilityProfile is what a plan permits. Derived on demand from plan
// state; never persisted.
type CapabilityProfile struct {
	MaxActiveRules  int
	AllowedTriggers map[TriggerKind]bool
	AllowedActions  map[ActionKind]bool
}

// AllowsTrigger reports whether the profile permits the trigger kind.
func (p CapabilityProfile) AllowsTrigger(kind TriggerKind) bool {
	return p.AllowedTriggers[kind]
}

// AllowsAction reports whether the profile permits the action kind.
func (p CapabilityProfile) AllowsAction(kind ActionKind) bool {
	return p.AllowedActions[kind]
}

// AlertSeverity grades dashboard alerts.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

func (s AlertSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// DashboardAlert is the in-product notification written by the
// dashboard_alert action.
type DashboardAlert struct {
	ID        id.AlertID
	OwnerID   id.OwnerID
	Title     string
	Message   string
	Severity  AlertSeverity
	Read      bool
	CreatedAt time.Time
}

// DatabaseContext describes a user database the compiler may target
// when drafting database_query rules.
type DatabaseContext struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns,omitempty"`
}

// RuleDraft is the compiler's output: the shape of a rule before the
// owner confirms it. Drafts are never persisted directly; they flow
// through the same creation path as manually authored rules.
type RuleDraft struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	TriggerKind   TriggerKind    `json:"trigger_kind"`
	TriggerConfig map[string]any `json:"trigger_config"`
	ActionKind    ActionKind     `json:"action_kind"`
	ActionConfig  map[string]any `json:"action_config"`
}

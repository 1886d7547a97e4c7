package models

import "time"

// CreateRuleRequest is the transport shape for rule creation. The same
// shape is produced by confirming a compiler draft.
type CreateRuleRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Active        *bool          `json:"active,omitempty"`
	TriggerKind   TriggerKind    `json:"trigger_kind"`
	TriggerConfig map[string]any `json:"trigger_config"`
	ActionKind    ActionKind     `json:"action_kind"`
	ActionConfig  map[string]any `json:"action_config"`
}

// UpdateRuleRequest carries a full replacement of the mutable rule
// attributes. Partial updates are intentionally not supported: the gate
// and the validator always see the complete configuration.
type UpdateRuleRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Active        bool           `json:"active"`
	TriggerKind   TriggerKind    `json:"trigger_kind"`
	TriggerConfig map[string]any `json:"trigger_config"`
	ActionKind    ActionKind     `json:"action_kind"`
	ActionConfig  map[string]any `json:"action_config"`
}

// RuleResponse is the transport shape of a rule, including the derived
// display-only descriptions.
type RuleResponse struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	Active             bool           `json:"active"`
	EnforcementStatus  string         `json:"enforcement_status"`
	TriggerKind        TriggerKind    `json:"trigger_kind"`
	TriggerConfig      map[string]any `json:"trigger_config"`
	ActionKind         ActionKind     `json:"action_kind"`
	ActionConfig       map[string]any `json:"action_config"`
	TriggerDescription string         `json:"trigger_description"`
	ActionDescription  string         `json:"action_description"`
	LastTriggered      *time.Time     `json:"last_triggered,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CompileRequest asks the compiler for a rule draft from free text.
type CompileRequest struct {
	Text      string            `json:"text"`
	Model     string            `json:"model,omitempty"`
	Databases []DatabaseContext `json:"databases,omitempty"`
}

// CompileResponse returns the draft plus the derived descriptions so the
// UI can show the owner what they are about to confirm.
type CompileResponse struct {
	Draft              RuleDraft `json:"draft"`
	TriggerDescription string    `json:"trigger_description"`
	ActionDescription  string    `json:"action_description"`
}

// LogEntryResponse is the transport shape of an execution log entry.
type LogEntryResponse struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id"`
	RuleName      string          `json:"rule_name"`
	Status        ExecutionStatus `json:"status"`
	Payload       map[string]any  `json:"payload,omitempty"`
	ActionSummary string          `json:"action_summary,omitempty"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ClearLogsResponse reports how many entries an owner-scoped clear removed.
type ClearLogsResponse struct {
	Removed int `json:"removed"`
}

// AlertResponse is the transport shape of a dashboard alert.
type AlertResponse struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Severity  AlertSeverity `json:"severity"`
	Read      bool          `json:"read"`
	CreatedAt time.Time     `json:"created_at"`
}

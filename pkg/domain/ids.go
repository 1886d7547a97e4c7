// Package domain holds typed identifiers shared across modules.
// Distinct ID types keep rule, owner and log identifiers from being
// swapped at call sites; the compiler enforces the boundary.
package domain

import (
	"github.com/google/uuid"

	dErrors "nimbus/pkg/domain-errors"
)

type (
	// OwnerID identifies the account that owns rules, logs and alerts.
	OwnerID uuid.UUID

	// RuleID identifies an automation rule.
	RuleID uuid.UUID

	// LogID identifies an execution log entry.
	LogID uuid.UUID

	// AlertID identifies an in-product dashboard alert.
	AlertID uuid.UUID
)

func (id OwnerID) String() string { return uuid.UUID(id).String() }
func (id RuleID) String() string  { return uuid.UUID(id).String() }
func (id LogID) String() string   { return uuid.UUID(id).String() }
func (id AlertID) String() string { return uuid.UUID(id).String() }

func (id OwnerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id LogID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

// NewRuleID returns a fresh random rule identifier.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewLogID returns a fresh random log identifier.
func NewLogID() LogID { return LogID(uuid.New()) }

// NewAlertID returns a fresh random alert identifier.
func NewAlertID() AlertID { return AlertID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseOwnerID parses an owner ID, rejecting empty, malformed and nil UUIDs.
func ParseOwnerID(raw string) (OwnerID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return OwnerID{}, err
	}
	return OwnerID(parsed), nil
}

// ParseRuleID parses a rule ID, rejecting empty, malformed and nil UUIDs.
func ParseRuleID(raw string) (RuleID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return RuleID{}, err
	}
	return RuleID(parsed), nil
}

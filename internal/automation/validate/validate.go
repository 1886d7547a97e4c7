// Package validate enforces the kind-specific config schemas shared by
// direct rule creation and the compiler. Invalid configs are rejected
// before persistence, never stored.
package validate

import (
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"nimbus/internal/automation/models"
	dErrors "nimbus/pkg/domain-errors"
)

// TriggerConfig validates config against the schema for kind.
func TriggerConfig(kind models.TriggerKind, config map[string]any) error {
	switch kind {
	case models.TriggerStorageThreshold:
		cfg, err := Decode[StorageThresholdConfig](config)
		if err != nil {
			return err
		}
		if cfg.Threshold < 0 || cfg.Threshold > 100 {
			return dErrors.New(dErrors.CodeValidation, "threshold must be between 0 and 100")
		}
		return nil

	case models.TriggerCPUThreshold:
		cfg, err := Decode[CPUThresholdConfig](config)
		if err != nil {
			return err
		}
		if cfg.Threshold < 0 || cfg.Threshold > 100 {
			return dErrors.New(dErrors.CodeValidation, "threshold must be between 0 and 100")
		}
		if cfg.DurationMinutes < 0 {
			return dErrors.New(dErrors.CodeValidation, "duration_minutes must not be negative")
		}
		return nil

	case models.TriggerFileUpload:
		cfg, err := Decode[FileUploadConfig](config)
		if err != nil {
			return err
		}
		for _, ext := range cfg.FileTypes {
			if strings.TrimLeft(strings.TrimSpace(ext), ".") == "" {
				return dErrors.New(dErrors.CodeValidation, "file_types entries must be non-empty extensions")
			}
		}
		return nil

	case models.TriggerScheduled:
		cfg, err := Decode[ScheduledConfig](config)
		if err != nil {
			return err
		}
		if cfg.Cron == "" {
			return dErrors.New(dErrors.CodeValidation, "cron expression is required")
		}
		if _, err := cron.ParseStandard(cfg.Cron); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "cron expression is not a valid 5-field schedule")
		}
		return nil

	case models.TriggerDatabaseQuery:
		cfg, err := Decode[DatabaseQueryConfig](config)
		if err != nil {
			return err
		}
		if cfg.DatabaseID == "" {
			return dErrors.New(dErrors.CodeValidation, "database_id is required")
		}
		if cfg.DebounceMinutes < 0 {
			return dErrors.New(dErrors.CodeValidation, "debounce_minutes must not be negative")
		}
		return ReadOnlyQuery(cfg.Query)

	default:
		return dErrors.Newf(dErrors.CodeValidation, "unsupported trigger kind %q", kind)
	}
}

// ActionConfig validates config against the schema for kind.
func ActionConfig(kind models.ActionKind, config map[string]any) error {
	switch kind {
	case models.ActionEmail:
		cfg, err := Decode[EmailConfig](config)
		if err != nil {
			return err
		}
		if cfg.To == "" || !strings.Contains(cfg.To, "@") {
			return dErrors.New(dErrors.CodeValidation, "email recipient must be a valid address")
		}
		if cfg.Subject == "" {
			return dErrors.New(dErrors.CodeValidation, "email subject is required")
		}
		return nil

	case models.ActionDiscord:
		cfg, err := Decode[DiscordConfig](config)
		if err != nil {
			return err
		}
		if err := validHTTPURL(cfg.WebhookURL); err != nil {
			return err
		}
		if cfg.Message == "" {
			return dErrors.New(dErrors.CodeValidation, "message is required")
		}
		return nil

	case models.ActionWebhook:
		cfg, err := Decode[WebhookConfig](config)
		if err != nil {
			return err
		}
		if err := validHTTPURL(cfg.URL); err != nil {
			return err
		}
		switch strings.ToUpper(cfg.Method) {
		case "", "GET", "POST", "PUT", "PATCH", "DELETE":
		default:
			return dErrors.Newf(dErrors.CodeValidation, "unsupported HTTP method %q", cfg.Method)
		}
		return nil

	case models.ActionDashboardAlert:
		cfg, err := Decode[DashboardAlertConfig](config)
		if err != nil {
			return err
		}
		if cfg.Title == "" {
			return dErrors.New(dErrors.CodeValidation, "alert title is required")
		}
		if cfg.Severity != "" && !models.AlertSeverity(cfg.Severity).IsValid() {
			return dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", cfg.Severity)
		}
		return nil

	default:
		return dErrors.Newf(dErrors.CodeValidation, "unsupported action kind %q", kind)
	}
}

// forbiddenQueryWords covers statements and clauses that mutate state
// or smuggle a second statement into a database_query trigger.
var forbiddenQueryWords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"grant", "revoke", "merge", "copy", "call", "do", "vacuum", "into",
}

// ReadOnlyQuery rejects any database_query statement that is not a
// single read-only SELECT.
func ReadOnlyQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return dErrors.New(dErrors.CodeValidation, "query is required")
	}

	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return dErrors.New(dErrors.CodeValidation, "query must be a single statement")
	}

	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return dErrors.New(dErrors.CodeValidation, "query must be a read-only SELECT")
	}

	// Split on every non-identifier character so keywords glued to
	// punctuation, e.g. "(delete" in a CTE, still surface as tokens.
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	for _, word := range forbiddenQueryWords {
		for _, token := range tokens {
			if token == word {
				return dErrors.Newf(dErrors.CodeValidation, "query must be read-only; %q is not allowed", word)
			}
		}
	}
	return nil
}

func validHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return dErrors.New(dErrors.CodeValidation, "url must be a valid http(s) URL")
	}
	return nil
}

// Rule validates both halves of a rule definition.
func Rule(trigger models.TriggerKind, triggerConfig map[string]any, action models.ActionKind, actionConfig map[string]any) error {
	if !trigger.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported trigger kind %q", trigger)
	}
	if !action.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported action kind %q", action)
	}
	if err := TriggerConfig(trigger, triggerConfig); err != nil {
		return err
	}
	return ActionConfig(action, actionConfig)
}

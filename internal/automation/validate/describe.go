package validate

import (
	"fmt"
	"strings"

	"nimbus/internal/automation/models"
)

// TriggerDescription renders a deterministic human-readable summary of
// a trigger definition. Display only, never authoritative.
func TriggerDescription(kind models.TriggerKind, config map[string]any) string {
	switch kind {
	case models.TriggerStorageThreshold:
		cfg, err := Decode[StorageThresholdConfig](config)
		if err != nil {
			return "when storage usage crosses a threshold"
		}
		return fmt.Sprintf("when storage usage reaches %g%%", cfg.Threshold)

	case models.TriggerCPUThreshold:
		cfg, err := Decode[CPUThresholdConfig](config)
		if err != nil {
			return "when CPU load crosses a threshold"
		}
		if cfg.DurationMinutes > 0 {
			return fmt.Sprintf("when CPU load stays at or above %g%% for %d minutes", cfg.Threshold, cfg.DurationMinutes)
		}
		return fmt.Sprintf("when CPU load reaches %g%%", cfg.Threshold)

	case models.TriggerFileUpload:
		cfg, err := Decode[FileUploadConfig](config)
		if err != nil || len(cfg.FileTypes) == 0 {
			return "when any file is uploaded"
		}
		return fmt.Sprintf("when a %s file is uploaded", strings.Join(cfg.FileTypes, ", "))

	case models.TriggerScheduled:
		cfg, err := Decode[ScheduledConfig](config)
		if err != nil {
			return "on a schedule"
		}
		return fmt.Sprintf("on schedule %q", cfg.Cron)

	case models.TriggerDatabaseQuery:
		cfg, err := Decode[DatabaseQueryConfig](config)
		if err != nil {
			return "when a database query matches"
		}
		return fmt.Sprintf("when a query on database %s returns rows", cfg.DatabaseID)

	default:
		return string(kind)
	}
}

// ActionDescription renders a deterministic human-readable summary of
// an action definition. Display only, never authoritative.
func ActionDescription(kind models.ActionKind, config map[string]any) string {
	switch kind {
	case models.ActionEmail:
		cfg, err := Decode[EmailConfig](config)
		if err != nil {
			return "send an email"
		}
		return fmt.Sprintf("email %s", cfg.To)

	case models.ActionDiscord:
		return "post to a Discord webhook"

	case models.ActionWebhook:
		cfg, err := Decode[WebhookConfig](config)
		if err != nil {
			return "call a webhook"
		}
		method := strings.ToUpper(cfg.Method)
		if method == "" {
			method = "POST"
		}
		return fmt.Sprintf("%s %s", method, cfg.URL)

	case models.ActionDashboardAlert:
		cfg, err := Decode[DashboardAlertConfig](config)
		if err != nil {
			return "show a dashboard alert"
		}
		severity := cfg.Severity
		if severity == "" {
			severity = string(models.SeverityInfo)
		}
		return fmt.Sprintf("show a %s alert on the dashboard", severity)

	default:
		return string(kind)
	}
}

package validate

import (
	"bytes"
	"encoding/json"

	dErrors "nimbus/pkg/domain-errors"
)

// Typed views of the kind-specific config maps. Rules persist configs
// as JSON objects; these structs are the schema each kind enforces.

type StorageThresholdConfig struct {
	Threshold float64 `json:"threshold"`
}

type CPUThresholdConfig struct {
	Threshold       float64 `json:"threshold"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
}

type FileUploadConfig struct {
	// FileTypes filters by extension; empty matches any upload.
	FileTypes []string `json:"file_types"`
}

type ScheduledConfig struct {
	Cron string `json:"cron"`
}

type DatabaseQueryConfig struct {
	DatabaseID      string `json:"database_id"`
	Query           string `json:"query"`
	DebounceMinutes int    `json:"debounce_minutes"`
}

type EmailConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
	Message    string `json:"message"`
}

type WebhookConfig struct {
	URL    string         `json:"url"`
	Method string         `json:"method"`
	Body   map[string]any `json:"body,omitempty"`
}

type DashboardAlertConfig struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Decode converts a config map into its typed schema via a JSON
// round-trip, rejecting fields the schema does not declare.
func Decode[T any](config map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(config)
	if err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeValidation, "config is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, dErrors.Wrap(err, dErrors.CodeValidation, "config does not match the schema for this kind")
	}
	return out, nil
}

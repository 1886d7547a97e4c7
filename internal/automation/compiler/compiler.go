// Package compiler turns free-text rule descriptions into rule drafts
// via an external language model. The model is an untrusted draft
// producer: its output is parsed strictly, checked against the kind
// contract, and run through the same validator as manual creation.
// Nothing here persists anything.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/validate"
	dErrors "nimbus/pkg/domain-errors"
)

type Compiler struct {
	model  ports.TextModel
	logger *slog.Logger
}

func New(model ports.TextModel, logger *slog.Logger) *Compiler {
	return &Compiler{model: model, logger: logger}
}

// Compile produces a validated rule draft from free text. The optional
// database contexts let the model target real user databases in
// database_query drafts.
func (c *Compiler) Compile(ctx context.Context, text, modelHint string, databases []models.DatabaseContext) (*models.RuleDraft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rule text is required")
	}
	if c.model == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "no language model configured")
	}

	raw, err := c.model.Complete(ctx, modelHint, buildPrompt(text, databases))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "language model request failed")
	}

	draft, err := parseDraft(raw)
	if err != nil {
		c.logger.Warn("model output rejected", "error", err)
		return nil, err
	}

	if !draft.TriggerKind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeCompiler,
			"model proposed unknown trigger kind %q", draft.TriggerKind)
	}
	if !draft.ActionKind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeCompiler,
			"model proposed unknown action kind %q", draft.ActionKind)
	}
	if strings.TrimSpace(draft.Name) == "" {
		return nil, dErrors.New(dErrors.CodeCompiler, "model draft has no rule name")
	}
	if err := validate.Rule(draft.TriggerKind, draft.TriggerConfig, draft.ActionKind, draft.ActionConfig); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCompiler, "model draft failed validation")
	}
	return draft, nil
}

func buildPrompt(text string, databases []models.DatabaseContext) string {
	var b strings.Builder
	b.WriteString("You convert a user's automation request into a JSON rule definition.\n")
	b.WriteString("Respond with exactly one JSON object and nothing else, with these fields:\n")
	b.WriteString(`  name, description, trigger_kind, trigger_config, action_kind, action_config` + "\n\n")

	b.WriteString("Trigger kinds and their config schemas:\n")
	b.WriteString("  storage_threshold: {\"threshold\": <0-100>}\n")
	b.WriteString("  cpu_threshold: {\"threshold\": <0-100>, \"duration_minutes\": <int, optional>}\n")
	b.WriteString("  file_upload: {\"file_types\": [<extensions>]} (empty list matches any upload)\n")
	b.WriteString("  scheduled: {\"cron\": <5-field cron expression>}\n")
	b.WriteString("  database_query: {\"database_id\": <id>, \"query\": <single read-only SELECT>, \"debounce_minutes\": <int, optional>}\n\n")

	b.WriteString("Action kinds and their config schemas:\n")
	b.WriteString("  email: {\"to\": <address>, \"subject\": <text>, \"body\": <text>}\n")
	b.WriteString("  discord: {\"webhook_url\": <url>, \"message\": <text>}\n")
	b.WriteString("  webhook: {\"url\": <url>, \"method\": <GET|POST|PUT|PATCH|DELETE>, \"body\": <object, optional>}\n")
	b.WriteString("  dashboard_alert: {\"title\": <text>, \"message\": <text>, \"severity\": <info|warning|critical>}\n\n")

	b.WriteString("Message fields may reference trigger payload values as {{field}} placeholders.\n")

	if len(databases) > 0 {
		b.WriteString("\nAvailable user databases for database_query triggers:\n")
		for _, db := range databases {
			fmt.Fprintf(&b, "  id=%s name=%q", db.ID, db.Name)
			if len(db.Columns) > 0 {
				fmt.Fprintf(&b, " columns=%s", strings.Join(db.Columns, ","))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nUser request:\n")
	b.WriteString(text)
	return b.String()
}

// parseDraft extracts the JSON object from the model's reply, tolerating
// code fences and prose around it, and decodes it strictly.
func parseDraft(raw string) (*models.RuleDraft, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, dErrors.New(dErrors.CodeCompiler, "model reply contains no JSON object")
	}

	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.DisallowUnknownFields()
	var draft models.RuleDraft
	if err := dec.Decode(&draft); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCompiler, "model reply is not a valid rule draft")
	}
	return &draft, nil
}

package trigger

import (
	"context"
	"strings"
	"time"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/validate"
)

// UploadEvaluator is the one event-driven kind: the file-ingest
// subsystem pushes completed uploads, and the scheduler calls Match per
// event instead of polling. Evaluate exists to satisfy the Evaluator
// interface and never matches on a poll.
type UploadEvaluator struct{}

func NewUploadEvaluator() *UploadEvaluator { return &UploadEvaluator{} }

func (e *UploadEvaluator) Kind() models.TriggerKind { return models.TriggerFileUpload }

func (e *UploadEvaluator) Evaluate(_ context.Context, _ *models.Rule, _ time.Time) (models.Verdict, error) {
	return models.Verdict{}, nil
}

// Match checks an upload event against a rule's file type filter. An
// empty filter matches any upload; extensions compare case- and
// dot-insensitively.
func (e *UploadEvaluator) Match(rule *models.Rule, event models.UploadEvent) (models.Verdict, error) {
	cfg, err := validate.Decode[validate.FileUploadConfig](rule.TriggerConfig)
	if err != nil {
		return models.Verdict{}, err
	}

	ext := normalizeExt(event.Extension)
	if ext == "" {
		if dot := strings.LastIndexByte(event.FileName, '.'); dot >= 0 {
			ext = normalizeExt(event.FileName[dot+1:])
		}
	}

	matched := len(cfg.FileTypes) == 0
	for _, allowed := range cfg.FileTypes {
		if normalizeExt(allowed) == ext {
			matched = true
			break
		}
	}
	if !matched {
		return models.Verdict{}, nil
	}

	return models.Verdict{Matched: true, Payload: map[string]any{
		"file_name":  event.FileName,
		"extension":  ext,
		"size_bytes": event.SizeBytes,
	}}, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
}

package trigger

import (
	"context"
	"time"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/validate"
	dErrors "nimbus/pkg/domain-errors"
)

// StorageEvaluator matches when the storage mount's used percentage is
// at or above the configured threshold. Debounce prevents continuous
// re-firing while usage stays above the line.
type StorageEvaluator struct {
	stats ports.SystemStats
}

func NewStorageEvaluator(stats ports.SystemStats) *StorageEvaluator {
	return &StorageEvaluator{stats: stats}
}

func (e *StorageEvaluator) Kind() models.TriggerKind { return models.TriggerStorageThreshold }

func (e *StorageEvaluator) Evaluate(ctx context.Context, rule *models.Rule, _ time.Time) (models.Verdict, error) {
	cfg, err := validate.Decode[validate.StorageThresholdConfig](rule.TriggerConfig)
	if err != nil {
		return models.Verdict{}, err
	}

	used, err := e.stats.DiskUsedPercent(ctx)
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "storage snapshot unavailable")
	}

	if used < cfg.Threshold {
		return models.Verdict{}, nil
	}
	return models.Verdict{
		Matched: true,
		Payload: map[string]any{
			"used_percent": used,
			"threshold":    cfg.Threshold,
		},
	}, nil
}

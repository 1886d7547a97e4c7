package trigger

import (
	"context"
	"time"

	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/validate"
	dErrors "nimbus/pkg/domain-errors"
)

// DatabaseQueryEvaluator polls a user database and matches when the
// rule's read-only query returns at least one row. The first row is the
// payload used for message templating.
type DatabaseQueryEvaluator struct {
	querier ports.DatabaseQuerier
}

func NewDatabaseQueryEvaluator(querier ports.DatabaseQuerier) *DatabaseQueryEvaluator {
	return &DatabaseQueryEvaluator{querier: querier}
}

func (e *DatabaseQueryEvaluator) Kind() models.TriggerKind { return models.TriggerDatabaseQuery }

func (e *DatabaseQueryEvaluator) Evaluate(ctx context.Context, rule *models.Rule, _ time.Time) (models.Verdict, error) {
	cfg, err := validate.Decode[validate.DatabaseQueryConfig](rule.TriggerConfig)
	if err != nil {
		return models.Verdict{}, err
	}

	// Validation rejects mutating statements at creation time; re-check
	// here so a stale row can never smuggle a write into a user database.
	if err := validate.ReadOnlyQuery(cfg.Query); err != nil {
		return models.Verdict{}, err
	}

	if e.querier == nil {
		return models.Verdict{}, dErrors.New(dErrors.CodeUnavailable, "no database querier configured")
	}

	row, ok, err := e.querier.QueryFirstRow(ctx, cfg.DatabaseID, cfg.Query)
	if err != nil {
		return models.Verdict{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "database query failed")
	}
	if !ok {
		return models.Verdict{}, nil
	}
	return models.Verdict{Matched: true, Payload: row}, nil
}

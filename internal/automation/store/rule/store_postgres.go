package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
	dErrors "nimbus/pkg/domain-errors"
)

const ruleColumns = `id, owner_id, name, description, active, enforcement_status,
	trigger_kind, trigger_config, action_kind, action_config,
	last_triggered, created_at, updated_at`

// PostgresStore persists rules in PostgreSQL. Trigger and action
// configs are stored as jsonb so kind schemas can evolve without
// migrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rule *models.Rule) error {
	triggerCfg, actionCfg, err := marshalConfigs(rule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(rule.ID), uuid.UUID(rule.OwnerID), rule.Name, rule.Description,
		rule.Active, string(rule.EnforcementStatus),
		string(rule.TriggerKind), triggerCfg, string(rule.ActionKind), actionCfg,
		nullTime(rule.LastTriggered), rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return dErrors.New(dErrors.CodeConflict, "rule id already exists")
		}
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(ruleID), uuid.UUID(ownerID),
	)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *PostgresStore) Update(ctx context.Context, rule *models.Rule) error {
	triggerCfg, actionCfg, err := marshalConfigs(rule)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = $3, description = $4, active = $5, enforcement_status = $6,
			trigger_kind = $7, trigger_config = $8, action_kind = $9, action_config = $10,
			updated_at = $11
		WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(rule.ID), uuid.UUID(rule.OwnerID), rule.Name, rule.Description,
		rule.Active, string(rule.EnforcementStatus),
		string(rule.TriggerKind), triggerCfg, string(rule.ActionKind), actionCfg,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireOneRow(result, "update rule")
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID id.OwnerID, ruleID id.RuleID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM automation_rules WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(ruleID), uuid.UUID(ownerID),
	)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireOneRow(result, "delete rule")
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID) ([]*models.Rule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`,
		uuid.UUID(ownerID),
	)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Rule, error) {
	return s.list(ctx, `
		SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE active
		ORDER BY created_at ASC, id ASC`,
	)
}

func (s *PostgresStore) CountActive(ctx context.Context, ownerID id.OwnerID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM automation_rules WHERE owner_id = $1 AND active`,
		uuid.UUID(ownerID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active rules: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SetLastTriggered(ctx context.Context, ruleID id.RuleID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE automation_rules SET last_triggered = $2 WHERE id = $1`,
		uuid.UUID(ruleID), at,
	)
	if err != nil {
		return fmt.Errorf("set last triggered: %w", err)
	}
	return requireOneRow(result, "set last triggered")
}

func (s *PostgresStore) SetEnforcementStatus(ctx context.Context, ruleID id.RuleID, status models.EnforcementStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE automation_rules SET enforcement_status = $2 WHERE id = $1`,
		uuid.UUID(ruleID), string(status),
	)
	if err != nil {
		return fmt.Errorf("set enforcement status: %w", err)
	}
	return requireOneRow(result, "set enforcement status")
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule          models.Rule
		ruleID        uuid.UUID
		ownerID       uuid.UUID
		enforcement   string
		triggerKind   string
		actionKind    string
		triggerCfg    []byte
		actionCfg     []byte
		lastTriggered sql.NullTime
	)
	err := row.Scan(&ruleID, &ownerID, &rule.Name, &rule.Description,
		&rule.Active, &enforcement, &triggerKind, &triggerCfg,
		&actionKind, &actionCfg, &lastTriggered, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	rule.ID = id.RuleID(ruleID)
	rule.OwnerID = id.OwnerID(ownerID)
	rule.EnforcementStatus = models.EnforcementStatus(enforcement)
	rule.TriggerKind = models.TriggerKind(triggerKind)
	rule.ActionKind = models.ActionKind(actionKind)
	if lastTriggered.Valid {
		fired := lastTriggered.Time
		rule.LastTriggered = &fired
	}
	if err := json.Unmarshal(triggerCfg, &rule.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	if err := json.Unmarshal(actionCfg, &rule.ActionConfig); err != nil {
		return nil, fmt.Errorf("unmarshal action config: %w", err)
	}
	return &rule, nil
}

func marshalConfigs(rule *models.Rule) ([]byte, []byte, error) {
	triggerCfg, err := json.Marshal(rule.TriggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal trigger config: %w", err)
	}
	actionCfg, err := json.Marshal(rule.ActionConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal action config: %w", err)
	}
	return triggerCfg, actionCfg, nil
}

func requireOneRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

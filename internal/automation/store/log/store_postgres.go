package log

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"nimbus/internal/automation/models"
	id "nimbus/pkg/domain"
)

// PostgresStore persists execution log entries in PostgreSQL. Entries
// are append-only; nothing here updates a row after insert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_execution_log
			(id, owner_id, rule_id, rule_name, status, payload, action_summary, attempts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(entry.ID), uuid.UUID(entry.OwnerID), uuid.UUID(entry.RuleID),
		entry.RuleName, string(entry.Status), payload, entry.ActionSummary,
		entry.Attempts, nullString(entry.Error), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append execution log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.OwnerID, limit int) ([]*models.ExecutionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, rule_id, rule_name, status, payload, action_summary, attempts, error, created_at
		FROM automation_execution_log
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		uuid.UUID(ownerID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list execution log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ExecutionLogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) ClearOwner(ctx context.Context, ownerID id.OwnerID) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM automation_execution_log WHERE owner_id = $1`,
		uuid.UUID(ownerID),
	)
	if err != nil {
		return 0, fmt.Errorf("clear execution log: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear execution log rows affected: %w", err)
	}
	return int(removed), nil
}

func scanEntry(rows *sql.Rows) (*models.ExecutionLogEntry, error) {
	var (
		entry      models.ExecutionLogEntry
		entryID    uuid.UUID
		ownerID    uuid.UUID
		ruleID     uuid.UUID
		status     string
		rawPayload []byte
		errMsg     sql.NullString
	)
	if err := rows.Scan(&entryID, &ownerID, &ruleID, &entry.RuleName, &status,
		&rawPayload, &entry.ActionSummary, &entry.Attempts, &errMsg, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan execution log entry: %w", err)
	}

	entry.ID = id.LogID(entryID)
	entry.OwnerID = id.OwnerID(ownerID)
	entry.RuleID = id.RuleID(ruleID)
	entry.Status = models.ExecutionStatus(status)
	entry.Error = errMsg.String
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &entry.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload snapshot: %w", err)
		}
	}
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package dbquery runs database_query trigger statements against user
// databases. Each user database is a schema in the product's postgres
// instance; queries run inside a read-only transaction with a bounded
// statement timeout, on top of the validator's SELECT-only check.
package dbquery

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	dErrors "nimbus/pkg/domain-errors"
)

const queryTimeout = 5 * time.Second

// databaseIDPattern bounds what can be interpolated into search_path.
var databaseIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type PostgresQuerier struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresQuerier {
	return &PostgresQuerier{db: db}
}

// QueryFirstRow executes the query against the schema backing the user
// database and returns the first row as a flat field map. ok is false
// when the query returned no rows.
func (q *PostgresQuerier) QueryFirstRow(ctx context.Context, databaseID, query string) (map[string]any, bool, error) {
	if !databaseIDPattern.MatchString(databaseID) {
		return nil, false, dErrors.Newf(dErrors.CodeValidation, "invalid database id %q", databaseID)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := q.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "user database unavailable")
	}
	defer tx.Rollback()

	schema := pq.QuoteIdentifier(SchemaFor(databaseID))
	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+schema); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "user database unavailable")
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "query execution failed")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}

	row, err := scanRowMap(rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// SchemaFor maps a user database ID to its backing schema name.
func SchemaFor(databaseID string) string {
	return "userdb_" + databaseID
}

func scanRowMap(rows *sql.Rows) (map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan result row: %w", err)
	}

	row := make(map[string]any, len(columns))
	for i, column := range columns {
		row[column] = normalizeValue(values[i])
	}
	return row, nil
}

// normalizeValue converts driver values into template-friendly types:
// byte slices become strings so {{field}} rendering never prints raw
// byte arrays.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

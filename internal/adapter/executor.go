package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Row maps column names to values for one result row.
type Row map[string]any

// Result carries the normalized outcome of a single statement. Rows is
// populated only for read statements; Changes and LastInsertRowID only
// for writes. LastInsertRowID is 0 when the engine reports no identity.
type Result struct {
	Columns         []string
	Rows            []Row
	Changes         int64
	LastInsertRowID int64
}

// Execute runs one statement inside the current transaction when one is
// active, directly against the connection otherwise.
func (a *Adapter) Execute(ctx context.Context, stmt string, params ...any) (Result, error) {
	if !a.IsOpen() {
		return Result{}, ErrNotInitialized
	}

	if isReadStatement(stmt) {
		columns, rows, err := a.queryRows(ctx, stmt, params...)
		if err != nil {
			return Result{}, err
		}
		return Result{Columns: columns, Rows: rows}, nil
	}

	res, err := a.runner().ExecContext(ctx, stmt, params...)
	if err != nil {
		return Result{}, fmt.Errorf("execute statement: %w", err)
	}

	changes, err := res.RowsAffected()
	if err != nil {
		changes = 0
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		lastID = 0
	}

	if a.tx == nil {
		if err := a.seal(ctx); err != nil {
			return Result{}, err
		}
	}
	return Result{Changes: changes, LastInsertRowID: lastID}, nil
}

// ExecuteMany runs the statements inside one transaction. On the first
// failure everything already executed is rolled back and the triggering
// error is returned; the database shows no effect from the batch.
func (a *Adapter) ExecuteMany(ctx context.Context, stmts []string) error {
	if !a.IsOpen() {
		return ErrNotInitialized
	}
	if a.tx != nil {
		return ErrTransactionActive
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute batch statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return a.seal(ctx)
}

type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (a *Adapter) runner() sqlRunner {
	if a.tx != nil {
		return a.tx
	}
	return a.db
}

func (a *Adapter) queryRows(ctx context.Context, stmt string, params ...any) ([]string, []Row, error) {
	rows, err := a.runner().QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("query statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read result columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, nil, fmt.Errorf("scan result row: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return columns, out, nil
}

var readPrefixes = []string{"SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN"}

func isReadStatement(stmt string) bool {
	fields := strings.Fields(stripLeadingComments(stmt))
	if len(fields) == 0 {
		return false
	}
	head := strings.ToUpper(fields[0])
	for _, prefix := range readPrefixes {
		if head == prefix {
			return true
		}
	}
	return false
}

// stripLeadingComments drops whitespace, line comments and block
// comments ahead of the first token so a commented statement is
// classified by what it actually does.
func stripLeadingComments(stmt string) string {
	for {
		stmt = strings.TrimSpace(stmt)
		switch {
		case strings.HasPrefix(stmt, "--"):
			idx := strings.IndexByte(stmt, '\n')
			if idx < 0 {
				return ""
			}
			stmt = stmt[idx+1:]
		case strings.HasPrefix(stmt, "/*"):
			idx := strings.Index(stmt, "*/")
			if idx < 0 {
				return ""
			}
			stmt = stmt[idx+2:]
		default:
			return stmt
		}
	}
}

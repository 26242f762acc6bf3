package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codescope/codedb/pkg/driver"
)

// execer is the common surface of *sql.DB and *sql.Conn the raw-execute
// path runs against.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute runs one raw statement. Select-shaped statements return rows;
// everything else returns affected-row and last-rowid counts. A non-empty
// transactionID routes the statement onto that transaction's dedicated
// connection.
func (d *Driver) Execute(ctx context.Context, sqlText string, params any, transactionID string) (*driver.ExecResult, error) {
	args, err := convertParams(params)
	if err != nil {
		return nil, err
	}

	var target execer
	if transactionID != "" {
		conn, err := d.transactionConn(transactionID)
		if err != nil {
			return nil, err
		}
		target = conn
	} else {
		db, err := d.sharedDB()
		if err != nil {
			return nil, err
		}
		target = db
	}

	if isSelectShaped(sqlText) {
		rows, err := target.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()

		mapped, err := rowsToMaps(rows)
		if err != nil {
			return nil, err
		}
		return &driver.ExecResult{Rows: mapped}, nil
	}

	res, execErr := target.ExecContext(ctx, sqlText, args...)
	d.journalStatement(sqlText, params, transactionID, execErr)
	if execErr != nil {
		if transactionID == "" {
			d.rollbackShared(ctx)
		}
		return nil, execErr
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &driver.ExecResult{AffectedRows: affected, LastRowID: lastID}, nil
}

// ExecuteBatch runs the operations in order through Execute. The first
// failure aborts the remainder; inside a transaction the caller decides
// whether to roll back.
func (d *Driver) ExecuteBatch(ctx context.Context, ops []driver.BatchOp, transactionID string) ([]*driver.ExecResult, error) {
	results := make([]*driver.ExecResult, 0, len(ops))
	for i, op := range ops {
		res, err := d.Execute(ctx, op.SQL, op.Params, transactionID)
		if err != nil {
			return results, fmt.Errorf("batch operation %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

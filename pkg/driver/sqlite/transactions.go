package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
)

// BeginTransaction pins a dedicated connection from the pool, starts an
// explicit transaction on it, and registers it under a fresh UUID. The
// connection stays pinned until commit or rollback so every statement
// tagged with the ID observes the transaction's uncommitted state.
func (d *Driver) BeginTransaction(ctx context.Context) (string, error) {
	db, err := d.sharedDB()
	if err != nil {
		return "", err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire transaction connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("begin transaction: %w", err)
	}

	id := uuid.NewString()

	d.txMu.Lock()
	d.transactions[id] = conn
	d.txMu.Unlock()

	logger.Debug("Transaction started", logger.KeyTransactionID, id)
	return id, nil
}

// CommitTransaction commits and releases the transaction's connection.
func (d *Driver) CommitTransaction(ctx context.Context, transactionID string) error {
	conn, err := d.takeTransaction(transactionID)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		// The transaction is gone either way; surface the commit failure.
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return fmt.Errorf("commit transaction %s: %w", transactionID, err)
	}

	logger.Debug("Transaction committed", logger.KeyTransactionID, transactionID)
	return nil
}

// RollbackTransaction discards the transaction and releases its connection.
func (d *Driver) RollbackTransaction(ctx context.Context, transactionID string) error {
	conn, err := d.takeTransaction(transactionID)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("rollback transaction %s: %w", transactionID, err)
	}

	logger.Debug("Transaction rolled back", logger.KeyTransactionID, transactionID)
	return nil
}

// takeTransaction removes and returns the registered connection for an ID.
// After this call the ID is no longer routable.
func (d *Driver) takeTransaction(transactionID string) (*sql.Conn, error) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	conn, ok := d.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrTransactionNotFound, transactionID)
	}
	delete(d.transactions, transactionID)
	return conn, nil
}

// transactionConn returns the registered connection for an ID without
// removing it, for statements executing inside the transaction.
func (d *Driver) transactionConn(transactionID string) (*sql.Conn, error) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	conn, ok := d.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrTransactionNotFound, transactionID)
	}
	return conn, nil
}

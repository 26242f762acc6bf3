// Package sqlite implements the driver abstraction on SQLite via GORM.
//
// The shared connection pool serves autocommit CRUD; every transaction
// owns a dedicated connection so long-running units of work do not stall
// the shared pool. The database file is owned exclusively by the driver
// process.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/journal"
	"github.com/codescope/codedb/pkg/models"
)

// Driver is the SQLite implementation of driver.Driver.
type Driver struct {
	config driver.Config
	jrnl   journal.Journal
	parser driver.Parser

	mu        sync.RWMutex
	gdb       *gorm.DB
	db        *sql.DB
	connected bool

	txMu         sync.Mutex
	transactions map[string]*sql.Conn
}

// New creates an unconnected SQLite driver. A nil journal disables query
// logging; a nil parser falls back to the line chunker.
func New(cfg driver.Config, jrnl journal.Journal, parser driver.Parser) *Driver {
	if jrnl == nil {
		jrnl = journal.NewNullJournal()
	}
	if parser == nil {
		parser = &driver.LineChunker{}
	}
	return &Driver{
		config:       cfg,
		jrnl:         jrnl,
		parser:       parser,
		transactions: make(map[string]*sql.Conn),
	}
}

// Connect opens the database file, applies the SQLite pragmas, and runs
// auto-migration for the core models.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil
	}
	if d.config.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}

	if d.config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(d.config.Path), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}

	busyTimeout := d.config.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	// SQLite pragmas:
	// - journal_mode(WAL): concurrent readers alongside the single writer
	// - busy_timeout: wait instead of failing when the database is locked
	// - foreign_keys(1): referential-integrity enforcement
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		d.config.Path, busyTimeout)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connect to sqlite at %q: %w", d.config.Path, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("get underlying database: %w", err)
	}

	// An in-memory database exists per connection; collapse the pool so
	// every statement sees the same data.
	if d.config.Path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := gdb.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("run database migration: %w", err)
	}

	d.gdb = gdb
	d.db = sqlDB
	d.connected = true

	logger.Info("SQLite driver connected", "path", d.config.Path)
	return nil
}

// Disconnect rolls back live transactions and closes the database.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.txMu.Lock()
	for id, conn := range d.transactions {
		if _, err := conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			logger.Warn("Failed to roll back transaction during disconnect",
				logger.KeyTransactionID, id, logger.KeyError, err)
		}
		_ = conn.Close()
		delete(d.transactions, id)
	}
	d.txMu.Unlock()

	err := d.db.Close()
	d.gdb = nil
	d.db = nil
	d.connected = false

	logger.Info("SQLite driver disconnected", "path", d.config.Path)
	return err
}

// Ping verifies the shared connection is usable.
func (d *Driver) Ping(ctx context.Context) error {
	db, err := d.sharedDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// sharedDB returns the shared pool or ErrNotConnected.
func (d *Driver) sharedDB() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return nil, driver.ErrNotConnected
	}
	return d.db, nil
}

// gormDB returns the shared GORM handle or ErrNotConnected.
func (d *Driver) gormDB() (*gorm.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return nil, driver.ErrNotConnected
	}
	return d.gdb, nil
}

// journalStatement records one attempted mutation in the query journal.
func (d *Driver) journalStatement(sqlText string, params any, txID string, execErr error) {
	entry := journal.NewEntry(sqlText, params, execErr == nil)
	entry.TransactionID = txID
	if execErr != nil {
		entry.Error = execErr.Error()
	}
	if err := d.jrnl.Append(entry); err != nil {
		logger.Warn("Failed to append journal entry", logger.KeyError, err)
	}
}

// rollbackShared issues a best-effort rollback on the shared pool after a
// failed autocommit statement. SQLite has nothing to undo in autocommit
// mode, so the error is deliberately ignored.
func (d *Driver) rollbackShared(ctx context.Context) {
	if db, err := d.sharedDB(); err == nil {
		_, _ = db.ExecContext(ctx, "ROLLBACK")
	}
}

// convertParams turns wire params into database/sql arguments. Lists stay
// positional; mappings become named arguments.
func convertParams(params any) ([]any, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case []any:
		return p, nil
	case map[string]any:
		args := make([]any, 0, len(p))
		for k, v := range p {
			args = append(args, sql.Named(k, v))
		}
		return args, nil
	default:
		return nil, fmt.Errorf("unsupported params type %T", params)
	}
}

// isSelectShaped reports whether the statement produces a result set.
func isSelectShaped(sqlText string) bool {
	head := strings.ToUpper(strings.TrimSpace(sqlText))
	for _, prefix := range []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

// rowsToMaps drains rows into ordered row mappings.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	values := make([]any, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// Normalize byte slices so rows survive JSON encoding.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ driver.Driver = (*Driver)(nil)

// Package driver defines the storage abstraction the RPC server dispatches
// into. Concrete engines live in subpackages (sqlite today; the postgres
// and mysql names are reserved).
package driver

import (
	"context"
	"errors"
)

// Type identifies a database engine.
type Type string

const (
	// TypeSQLite is the only engine shipped today.
	TypeSQLite Type = "sqlite"

	// TypePostgres is reserved for a future engine.
	TypePostgres Type = "postgres"

	// TypeMySQL is reserved for a future engine.
	TypeMySQL Type = "mysql"
)

// Driver errors.
var (
	// ErrNotConnected is returned for operations before Connect or after
	// Disconnect.
	ErrNotConnected = errors.New("driver is not connected")

	// ErrTransactionNotFound is returned for operations tagged with an
	// unknown or already-finalized transaction ID.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrUnsupportedDriver is returned when the configured engine has no
	// implementation.
	ErrUnsupportedDriver = errors.New("unsupported driver type")
)

// Config holds engine configuration, decoded from the runner's JSON
// config argument.
type Config struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string `json:"path"`

	// QueryLogPath enables the query journal when non-empty.
	QueryLogPath string `json:"query_log_path,omitempty"`

	// QueryLogMaxBytes overrides the journal rotation threshold.
	QueryLogMaxBytes int64 `json:"query_log_max_bytes,omitempty"`

	// QueryLogBackups overrides the journal backup count.
	QueryLogBackups int `json:"query_log_backups,omitempty"`

	// BusyTimeoutMs is the SQLite busy handler timeout. Zero means 5000.
	BusyTimeoutMs int `json:"busy_timeout_ms,omitempty"`
}

// TableSchema describes a table for CreateTable and SyncSchema.
type TableSchema struct {
	Name    string
	Columns []ColumnDef
}

// ColumnDef describes one column of a table schema.
type ColumnDef struct {
	Name       string
	Type       string
	Nullable   bool
	Default    any
	PrimaryKey bool
}

// ColumnInfo describes one column as reported by GetTableInfo.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default"`
	PrimaryKey bool   `json:"primary_key"`
}

// SelectQuery carries the parameters of a table select.
type SelectQuery struct {
	Table   string
	Where   map[string]any
	Columns []string
	Limit   int // negative means no limit
	Offset  int
	OrderBy []string
}

// ExecResult is the outcome of one mutating or select-shaped statement.
// Rows is non-nil only for select-shaped statements.
type ExecResult struct {
	AffectedRows int64
	LastRowID    int64
	Rows         []map[string]any
}

// BatchOp is one statement of an ExecuteBatch call.
type BatchOp struct {
	SQL    string
	Params any
}

// SyncReport summarizes one SyncSchema sweep. Per-table errors do not
// abort the sweep.
type SyncReport struct {
	CreatedTables  []string          `json:"created_tables"`
	ModifiedTables []string          `json:"modified_tables"`
	Errors         map[string]string `json:"errors,omitempty"`
}

// Driver is the storage engine abstraction. All methods are safe for
// concurrent use; statements tagged with a transaction ID are serialized
// on that transaction's dedicated connection.
type Driver interface {
	// Connect takes exclusive ownership of the database, enables
	// referential-integrity enforcement, and prefers a write-ahead
	// journaling mode when the engine supports one.
	Connect(ctx context.Context) error

	// Disconnect rolls back any live transactions and releases the
	// database. Idempotent.
	Disconnect() error

	// Ping verifies the shared connection is usable.
	Ping(ctx context.Context) error

	CreateTable(ctx context.Context, schema TableSchema) error
	DropTable(ctx context.Context, name string) error

	Insert(ctx context.Context, table string, data map[string]any) (*ExecResult, error)
	Update(ctx context.Context, table string, where, data map[string]any) (*ExecResult, error)
	Delete(ctx context.Context, table string, where map[string]any) (*ExecResult, error)
	Select(ctx context.Context, query SelectQuery) ([]map[string]any, error)

	// Execute runs one raw statement. When transactionID is non-empty the
	// statement runs on that transaction's dedicated connection.
	Execute(ctx context.Context, sql string, params any, transactionID string) (*ExecResult, error)

	// ExecuteBatch runs a sequence of statements. The default behavior is
	// to iterate Execute; engines may batch more aggressively.
	ExecuteBatch(ctx context.Context, ops []BatchOp, transactionID string) ([]*ExecResult, error)

	// BeginTransaction opens a dedicated connection, starts a transaction
	// on it, and returns the new transaction ID.
	BeginTransaction(ctx context.Context) (string, error)

	// CommitTransaction finalizes a transaction and closes its
	// connection. Unknown IDs fail with ErrTransactionNotFound.
	CommitTransaction(ctx context.Context, transactionID string) error

	// RollbackTransaction discards a transaction and closes its
	// connection. Unknown IDs fail with ErrTransactionNotFound.
	RollbackTransaction(ctx context.Context, transactionID string) error

	// GetTableInfo returns one ColumnInfo per column. A non-existent
	// table yields an empty slice, not an error.
	GetTableInfo(ctx context.Context, name string) ([]ColumnInfo, error)

	// SyncSchema creates any missing tables from the definition mapping.
	SyncSchema(ctx context.Context, def map[string]TableSchema, backupDir string) (*SyncReport, error)

	// IndexFile refreshes the derived indexes (AST, CST, content, chunks)
	// for one file and clears its needs_chunking flag. Returns the parse
	// result mapping.
	IndexFile(ctx context.Context, filePath, projectID string) (map[string]any, error)

	// QueryAST returns stored AST rows for a file, optionally filtered by
	// top-level node attributes.
	QueryAST(ctx context.Context, fileID int64, filter map[string]any) ([]map[string]any, error)

	// QueryCST returns stored CST rows for a file, optionally filtered.
	QueryCST(ctx context.Context, fileID int64, filter map[string]any) ([]map[string]any, error)

	// ModifyAST replaces, patches, or deletes the stored AST for a file.
	ModifyAST(ctx context.Context, fileID int64, action string, tree map[string]any) (*ExecResult, error)

	// ModifyCST replaces, patches, or deletes the stored CST for a file.
	ModifyCST(ctx context.Context, fileID int64, action string, tree map[string]any) (*ExecResult, error)
}

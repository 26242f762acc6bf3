// Package request defines the typed operation payloads carried by RPC
// requests, decoded from the params mapping and validated before any
// database work happens.
package request

import (
	"fmt"
	"path/filepath"
)

// Method names form a closed, case-exact routing set. Unknown methods are
// rejected with an invalid-request error before enqueueing.
const (
	MethodCreateTable         = "create_table"
	MethodDropTable           = "drop_table"
	MethodInsert              = "insert"
	MethodUpdate              = "update"
	MethodDelete              = "delete"
	MethodSelect              = "select"
	MethodExecute             = "execute"
	MethodExecuteBatch        = "execute_batch"
	MethodBeginTransaction    = "begin_transaction"
	MethodCommitTransaction   = "commit_transaction"
	MethodRollbackTransaction = "rollback_transaction"
	MethodGetTableInfo        = "get_table_info"
	MethodSyncSchema          = "sync_schema"
	MethodIndexFile           = "index_file"
	MethodQueryAST            = "query_ast"
	MethodQueryCST            = "query_cst"
	MethodModifyAST           = "modify_ast"
	MethodModifyCST           = "modify_cst"
	MethodPing                = "ping"
	MethodGetQueueStats       = "get_queue_stats"
)

// Request is implemented by every typed operation payload.
type Request interface {
	// Method returns the wire method name this payload belongs to.
	Method() string

	// Validate checks the payload. A non-nil error means the handler is
	// never invoked and the caller sees a VALIDATION_ERROR.
	Validate() error
}

// ColumnDef describes one column in a table schema.
type ColumnDef struct {
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableSchema describes one table for create_table and sync_schema.
type TableSchema struct {
	Name    string      `json:"name" validate:"required"`
	Columns []ColumnDef `json:"columns" validate:"required,min=1,dive"`
}

// CreateTable creates a table from an explicit schema.
type CreateTable struct {
	Schema TableSchema `json:"schema"`
}

func (r *CreateTable) Method() string { return MethodCreateTable }

func (r *CreateTable) Validate() error { return validateStruct(r) }

// DropTable drops a table by name.
type DropTable struct {
	TableName string `json:"table_name" validate:"required"`
}

func (r *DropTable) Method() string { return MethodDropTable }

func (r *DropTable) Validate() error { return validateStruct(r) }

// Insert inserts one row into a table.
type Insert struct {
	TableName string         `json:"table_name" validate:"required"`
	Data      map[string]any `json:"data" validate:"required,min=1"`
}

func (r *Insert) Method() string { return MethodInsert }

func (r *Insert) Validate() error { return validateStruct(r) }

// Update updates rows matching the where mapping.
type Update struct {
	TableName string         `json:"table_name" validate:"required"`
	Where     map[string]any `json:"where" validate:"required,min=1"`
	Data      map[string]any `json:"data" validate:"required,min=1"`
}

func (r *Update) Method() string { return MethodUpdate }

func (r *Update) Validate() error { return validateStruct(r) }

// Delete deletes rows matching the where mapping.
type Delete struct {
	TableName string         `json:"table_name" validate:"required"`
	Where     map[string]any `json:"where" validate:"required,min=1"`
}

func (r *Delete) Method() string { return MethodDelete }

func (r *Delete) Validate() error { return validateStruct(r) }

// Select reads rows from a table.
type Select struct {
	TableName string         `json:"table_name" validate:"required"`
	Where     map[string]any `json:"where"`
	Columns   []string       `json:"columns"`
	Limit     *int           `json:"limit" validate:"omitempty,gte=0"`
	Offset    *int           `json:"offset" validate:"omitempty,gte=0"`
	OrderBy   []string       `json:"order_by"`
}

func (r *Select) Method() string { return MethodSelect }

func (r *Select) Validate() error { return validateStruct(r) }

// Execute runs one raw SQL statement. Params may be a positional list, a
// named mapping, or absent. When TransactionID is set the statement runs
// on that transaction's dedicated connection.
type Execute struct {
	SQL           string `json:"sql" validate:"required"`
	Params        any    `json:"params"`
	TransactionID string `json:"transaction_id"`
}

func (r *Execute) Method() string { return MethodExecute }

func (r *Execute) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	return validateSQLParams(r.Params)
}

// BatchOperation is one statement of an execute_batch request.
type BatchOperation struct {
	SQL    string `json:"sql" validate:"required"`
	Params any    `json:"params"`
}

// ExecuteBatch runs a sequence of statements, all on the same transaction
// connection when TransactionID is set.
type ExecuteBatch struct {
	Operations    []BatchOperation `json:"operations" validate:"required,min=1,dive"`
	TransactionID string           `json:"transaction_id"`
}

func (r *ExecuteBatch) Method() string { return MethodExecuteBatch }

func (r *ExecuteBatch) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	for i, op := range r.Operations {
		if err := validateSQLParams(op.Params); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

// BeginTransaction opens a transaction on a dedicated connection.
type BeginTransaction struct{}

func (r *BeginTransaction) Method() string { return MethodBeginTransaction }

func (r *BeginTransaction) Validate() error { return nil }

// CommitTransaction commits and releases a transaction.
type CommitTransaction struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

func (r *CommitTransaction) Method() string { return MethodCommitTransaction }

func (r *CommitTransaction) Validate() error { return validateStruct(r) }

// RollbackTransaction rolls back and releases a transaction.
type RollbackTransaction struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

func (r *RollbackTransaction) Method() string { return MethodRollbackTransaction }

func (r *RollbackTransaction) Validate() error { return validateStruct(r) }

// GetTableInfo returns column descriptions for a table.
type GetTableInfo struct {
	TableName string `json:"table_name" validate:"required"`
}

func (r *GetTableInfo) Method() string { return MethodGetTableInfo }

func (r *GetTableInfo) Validate() error { return validateStruct(r) }

// SyncSchema creates any missing tables from a schema definition mapping
// of table name to schema.
type SyncSchema struct {
	SchemaDefinition map[string]TableSchema `json:"schema_definition" validate:"required,min=1"`
	BackupDir        string                 `json:"backup_dir"`
}

func (r *SyncSchema) Method() string { return MethodSyncSchema }

func (r *SyncSchema) Validate() error { return validateStruct(r) }

// IndexFile refreshes the derived indexes for one file within the driver
// process (composite operation).
type IndexFile struct {
	FilePath  string `json:"file_path" validate:"required"`
	ProjectID string `json:"project_id" validate:"required"`
}

func (r *IndexFile) Method() string { return MethodIndexFile }

func (r *IndexFile) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if !filepath.IsAbs(r.FilePath) {
		return fmt.Errorf("file_path must be absolute: %q", r.FilePath)
	}
	return nil
}

// QueryAST reads AST nodes for a file, optionally filtered.
type QueryAST struct {
	FileID int64          `json:"file_id" validate:"required,gt=0"`
	Filter map[string]any `json:"filter"`
}

func (r *QueryAST) Method() string { return MethodQueryAST }

func (r *QueryAST) Validate() error { return validateStruct(r) }

// QueryCST reads CST nodes for a file, optionally filtered.
type QueryCST struct {
	FileID int64          `json:"file_id" validate:"required,gt=0"`
	Filter map[string]any `json:"filter"`
}

func (r *QueryCST) Method() string { return MethodQueryCST }

func (r *QueryCST) Validate() error { return validateStruct(r) }

// ModifyAST replaces or patches the stored AST for a file.
type ModifyAST struct {
	FileID int64          `json:"file_id" validate:"required,gt=0"`
	Action string         `json:"action" validate:"required,oneof=replace patch delete"`
	Tree   map[string]any `json:"tree"`
}

func (r *ModifyAST) Method() string { return MethodModifyAST }

func (r *ModifyAST) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Action != "delete" && len(r.Tree) == 0 {
		return fmt.Errorf("tree is required for action %q", r.Action)
	}
	return nil
}

// ModifyCST replaces or patches the stored CST for a file.
type ModifyCST struct {
	FileID int64          `json:"file_id" validate:"required,gt=0"`
	Action string         `json:"action" validate:"required,oneof=replace patch delete"`
	Tree   map[string]any `json:"tree"`
}

func (r *ModifyCST) Method() string { return MethodModifyCST }

func (r *ModifyCST) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.Action != "delete" && len(r.Tree) == 0 {
		return fmt.Errorf("tree is required for action %q", r.Action)
	}
	return nil
}

// Ping is a health probe.
type Ping struct{}

func (r *Ping) Method() string { return MethodPing }

func (r *Ping) Validate() error { return nil }

// GetQueueStats returns a snapshot of the server's queue statistics.
type GetQueueStats struct{}

func (r *GetQueueStats) Method() string { return MethodGetQueueStats }

func (r *GetQueueStats) Validate() error { return nil }

// validateSQLParams checks that SQL params are nil, a positional list, or
// a named mapping.
func validateSQLParams(params any) error {
	switch params.(type) {
	case nil, []any, map[string]any:
		return nil
	default:
		return fmt.Errorf("params must be a list, a mapping, or null (got %T)", params)
	}
}

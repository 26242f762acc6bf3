// Package dbclient is the typed high-level API over the RPC client. It
// maps the code-analysis entities (projects, files, syntax trees, vectors)
// onto the generic table operations served by the driver daemon.
package dbclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/codescope/codedb/pkg/client"
	"github.com/codescope/codedb/pkg/models"
	"github.com/codescope/codedb/pkg/request"
)

// DB is the typed facade over one RPC client.
type DB struct {
	rpc *client.Client
}

// New wraps an already-connected RPC client.
func New(rpc *client.Client) *DB {
	return &DB{rpc: rpc}
}

// Connect dials the daemon at socketPath and returns a ready DB.
func Connect(ctx context.Context, socketPath string) (*DB, error) {
	rpc := client.New(client.Config{SocketPath: socketPath})
	if err := rpc.Connect(ctx); err != nil {
		return nil, err
	}
	return New(rpc), nil
}

// Close releases the underlying RPC client.
func (d *DB) Close() error {
	return d.rpc.Disconnect()
}

// RPC exposes the underlying client for callers that need raw access.
func (d *DB) RPC() *client.Client { return d.rpc }

// Ping probes the daemon.
func (d *DB) Ping(ctx context.Context) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodPing, nil)
	return err
}

// QueueStats returns the daemon's queue statistics snapshot.
func (d *DB) QueueStats(ctx context.Context) (map[string]any, error) {
	return d.rpc.CallExpectSuccess(ctx, request.MethodGetQueueStats, nil)
}

// Execute runs one raw statement, optionally inside a transaction.
func (d *DB) Execute(ctx context.Context, sql string, params any, transactionID string) (map[string]any, error) {
	p := map[string]any{"sql": sql}
	if params != nil {
		p["params"] = params
	}
	if transactionID != "" {
		p["transaction_id"] = transactionID
	}
	return d.rpc.CallExpectSuccess(ctx, request.MethodExecute, p)
}

// Query runs one select-shaped statement and returns rows.
func (d *DB) Query(ctx context.Context, sql string, params any) ([]map[string]any, error) {
	p := map[string]any{"sql": sql}
	if params != nil {
		p["params"] = params
	}
	return d.rpc.CallExpectRows(ctx, request.MethodExecute, p)
}

// BeginTransaction opens a server-side transaction and returns its ID.
func (d *DB) BeginTransaction(ctx context.Context) (string, error) {
	data, err := d.rpc.CallExpectSuccess(ctx, request.MethodBeginTransaction, nil)
	if err != nil {
		return "", err
	}
	id, _ := data["transaction_id"].(string)
	if id == "" {
		return "", fmt.Errorf("begin_transaction returned no transaction_id")
	}
	return id, nil
}

// CommitTransaction commits a server-side transaction.
func (d *DB) CommitTransaction(ctx context.Context, transactionID string) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodCommitTransaction,
		map[string]any{"transaction_id": transactionID})
	return err
}

// RollbackTransaction rolls back a server-side transaction.
func (d *DB) RollbackTransaction(ctx context.Context, transactionID string) error {
	_, err := d.rpc.CallExpectSuccess(ctx, request.MethodRollbackTransaction,
		map[string]any{"transaction_id": transactionID})
	return err
}

// IndexFile refreshes the derived indexes for one file.
func (d *DB) IndexFile(ctx context.Context, filePath, projectID string) (map[string]any, error) {
	return d.rpc.CallExpectSuccess(ctx, request.MethodIndexFile, map[string]any{
		"file_path":  filePath,
		"project_id": projectID,
	})
}

// insertRow inserts one mapping and returns the new rowid.
func (d *DB) insertRow(ctx context.Context, table string, data map[string]any) (int64, error) {
	result, err := d.rpc.CallExpectSuccess(ctx, request.MethodInsert, map[string]any{
		"table_name": table,
		"data":       data,
	})
	if err != nil {
		return 0, err
	}
	id, _ := result["lastrowid"].(float64)
	return int64(id), nil
}

// selectRows reads rows from a table.
func (d *DB) selectRows(ctx context.Context, table string, where map[string]any, orderBy []string, limit int) ([]map[string]any, error) {
	params := map[string]any{"table_name": table}
	if len(where) > 0 {
		params["where"] = where
	}
	if len(orderBy) > 0 {
		params["order_by"] = orderBy
	}
	if limit > 0 {
		params["limit"] = limit
	}
	return d.rpc.CallExpectRows(ctx, request.MethodSelect, params)
}

// updateRows updates rows and returns the affected count.
func (d *DB) updateRows(ctx context.Context, table string, where, data map[string]any) (int64, error) {
	result, err := d.rpc.CallExpectSuccess(ctx, request.MethodUpdate, map[string]any{
		"table_name": table,
		"where":      where,
		"data":       data,
	})
	if err != nil {
		return 0, err
	}
	affected, _ := result["affected_rows"].(float64)
	return int64(affected), nil
}

// deleteRows deletes rows and returns the affected count.
func (d *DB) deleteRows(ctx context.Context, table string, where map[string]any) (int64, error) {
	result, err := d.rpc.CallExpectSuccess(ctx, request.MethodDelete, map[string]any{
		"table_name": table,
		"where":      where,
	})
	if err != nil {
		return 0, err
	}
	affected, _ := result["affected_rows"].(float64)
	return int64(affected), nil
}

// decodeRow coerces one wire row into a typed model. JSON numbers arrive
// as float64; weak typing maps them onto the integer fields.
func decodeRow(row map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build row decoder: %w", err)
	}
	if err := decoder.Decode(row); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// newID returns a fresh UUID for client-assigned primary keys.
func newID() string { return uuid.NewString() }

// now returns the current time as epoch seconds, the timestamp format all
// rows carry.
func now() float64 {
	return models.Now()
}

package server

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/codescope/codedb/pkg/client"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/driver/sqlite"
	"github.com/codescope/codedb/pkg/protocol"
)

// startServer brings up a full server on a throwaway socket and database
// and returns a connected client against it.
func startServer(t *testing.T) *client.Client {
	t.Helper()

	dir := t.TempDir()
	drv := sqlite.New(driver.Config{Path: filepath.Join(dir, "test.db")}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := drv.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = drv.Disconnect() })

	socketPath := filepath.Join(dir, "codedb.sock")
	srv := New(Config{
		SocketPath:     socketPath,
		Workers:        2,
		RequestTimeout: 10 * time.Second,
	}, drv)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(srv.Stop)

	c := client.New(client.Config{
		SocketPath:     socketPath,
		MaxRetries:     1,
		RequestTimeout: 10 * time.Second,
	})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("client Connect() error = %v", err)
	}
	return c
}

func TestServerPing(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	data, err := c.CallExpectSuccess(ctx, "ping", nil)
	if err != nil {
		t.Fatalf("ping error = %v", err)
	}
	if data["status"] != "ok" {
		t.Errorf("ping status = %v, want ok", data["status"])
	}

	if !c.HealthCheck(ctx) {
		t.Error("HealthCheck() = false against a live server")
	}
}

func TestServerTableRoundTrip(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	if _, err := c.CallExpectSuccess(ctx, "create_table", map[string]any{
		"schema": map[string]any{
			"name": "notes",
			"columns": []any{
				map[string]any{"name": "id", "type": "INTEGER", "primary_key": true},
				map[string]any{"name": "body", "type": "TEXT", "nullable": false},
			},
		},
	}); err != nil {
		t.Fatalf("create_table error = %v", err)
	}

	ins, err := c.CallExpectSuccess(ctx, "insert", map[string]any{
		"table_name": "notes",
		"data":       map[string]any{"body": "first"},
	})
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	// Numbers cross the wire as JSON and arrive as float64.
	if ins["lastrowid"] != float64(1) {
		t.Errorf("lastrowid = %v, want 1", ins["lastrowid"])
	}

	rows, err := c.CallExpectRows(ctx, "select", map[string]any{
		"table_name": "notes",
		"where":      map[string]any{"id": 1},
	})
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	if len(rows) != 1 || rows[0]["body"] != "first" {
		t.Errorf("select rows = %+v", rows)
	}

	info, err := c.CallExpectRows(ctx, "get_table_info", map[string]any{"table_name": "notes"})
	if err != nil {
		t.Fatalf("get_table_info error = %v", err)
	}
	if len(info) != 2 {
		t.Errorf("get_table_info returned %d columns, want 2", len(info))
	}
}

func TestServerTransactionOverTheWire(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	if _, err := c.CallExpectSuccess(ctx, "execute", map[string]any{
		"sql": "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)",
	}); err != nil {
		t.Fatalf("create error = %v", err)
	}

	begin, err := c.CallExpectSuccess(ctx, "begin_transaction", nil)
	if err != nil {
		t.Fatalf("begin_transaction error = %v", err)
	}
	txID, _ := begin["transaction_id"].(string)
	if txID == "" {
		t.Fatalf("begin_transaction returned no id: %+v", begin)
	}

	if _, err := c.CallExpectSuccess(ctx, "execute", map[string]any{
		"sql":            "INSERT INTO t (v) VALUES (?)",
		"params":         []any{"staged"},
		"transaction_id": txID,
	}); err != nil {
		t.Fatalf("execute in transaction error = %v", err)
	}

	if _, err := c.CallExpectSuccess(ctx, "rollback_transaction", map[string]any{
		"transaction_id": txID,
	}); err != nil {
		t.Fatalf("rollback_transaction error = %v", err)
	}

	rows, err := c.CallExpectRows(ctx, "select", map[string]any{"table_name": "t"})
	if err != nil {
		t.Fatalf("select error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rolled-back insert is visible: %+v", rows)
	}

	// The transaction is finalized; a commit on its id must fail with the
	// transaction error code.
	_, err = c.CallExpectSuccess(ctx, "commit_transaction", map[string]any{
		"transaction_id": txID,
	})
	var respErr *protocol.ResponseError
	if !errors.As(err, &respErr) || respErr.Code != protocol.CodeTransactionError {
		t.Errorf("commit after rollback error = %v, want transaction error", err)
	}
}

func TestServerQueueStats(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.CallExpectSuccess(ctx, "ping", nil); err != nil {
			t.Fatalf("ping error = %v", err)
		}
	}

	stats, err := c.CallExpectSuccess(ctx, "get_queue_stats", nil)
	if err != nil {
		t.Fatalf("get_queue_stats error = %v", err)
	}
	if stats["total_enqueued"].(float64) < 3 {
		t.Errorf("total_enqueued = %v, want >= 3", stats["total_enqueued"])
	}
	if stats["max_size"] != float64(DefaultQueueMaxSize) {
		t.Errorf("max_size = %v, want %d", stats["max_size"], DefaultQueueMaxSize)
	}
}

func TestServerErrorTaxonomy(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		method   string
		params   map[string]any
		wantCode protocol.ErrorCode
	}{
		{"unknown method", "no_such_method", nil, protocol.CodeInvalidRequest},
		{"validation failure", "insert", map[string]any{"table_name": "t"}, protocol.CodeValidationError},
		{"database failure", "select", map[string]any{"table_name": "missing_table"}, protocol.CodeDatabaseError},
		{"hostile identifier", "select", map[string]any{"table_name": "t; DROP TABLE t"}, protocol.CodeDatabaseError},
		{"unknown transaction", "commit_transaction", map[string]any{"transaction_id": "ghost"}, protocol.CodeTransactionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CallExpectSuccess(ctx, tt.method, tt.params)
			var respErr *protocol.ResponseError
			if !errors.As(err, &respErr) {
				t.Fatalf("error = %v, want *protocol.ResponseError", err)
			}
			if respErr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", respErr.Code, tt.wantCode)
			}
		})
	}
}

func TestServerHandlerFailuresUseErrorMember(t *testing.T) {
	dir := t.TempDir()
	drv := sqlite.New(driver.Config{Path: filepath.Join(dir, "test.db")}, nil, nil)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = drv.Disconnect() }()

	socketPath := filepath.Join(dir, "codedb.sock")
	srv := New(Config{SocketPath: socketPath, Workers: 1, RequestTimeout: 10 * time.Second}, drv)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	// Drive the wire directly: a handler failure must arrive in the
	// envelope's error member, never inside result.
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	raw, err := protocol.NewRequest("req-1", "insert", map[string]any{
		"table_name": "t",
	}).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := protocol.WriteFrame(conn, raw); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	payload, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	resp, err := protocol.DecodeResponse(payload)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}

	if resp.Error == nil {
		t.Fatalf("response error member is nil, result = %+v", resp.Result)
	}
	if resp.Error.Code != protocol.CodeValidationError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, protocol.CodeValidationError)
	}
	if resp.Result != nil {
		t.Errorf("result member populated alongside error: %+v", resp.Result)
	}
	if resp.ID != "req-1" {
		t.Errorf("response id = %q, want req-1", resp.ID)
	}
}

func TestSubmitHonorsPerRequestTimeout(t *testing.T) {
	// A server with no running workers never answers, so submit blocks
	// until the deadline. The request's own timeout must win over the much
	// larger configured default.
	s := New(Config{SocketPath: "unused", RequestTimeout: 10 * time.Second}, nil)

	req := protocol.NewRequest("req-1", "ping", map[string]any{"timeout": 0.05})

	start := time.Now()
	_, err := s.submit("req-1", req)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("submit() error = %v, want DeadlineExceeded", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("submit() took %v, want the 50ms request timeout to apply", elapsed)
	}
}

func TestServerPriorityParam(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	// An explicit priority rides along in params and must not disturb the
	// request itself.
	if _, err := c.CallExpectSuccess(ctx, "ping", map[string]any{"priority": "high"}); err != nil {
		t.Errorf("ping with priority error = %v", err)
	}
}

func TestServerStopRemovesSocket(t *testing.T) {
	dir := t.TempDir()
	drv := sqlite.New(driver.Config{Path: filepath.Join(dir, "test.db")}, nil, nil)
	if err := drv.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = drv.Disconnect() }()

	socketPath := filepath.Join(dir, "codedb.sock")
	srv := New(Config{SocketPath: socketPath, Workers: 1}, drv)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	srv.Stop()
	srv.Stop() // idempotent

	c := client.New(client.Config{SocketPath: socketPath, MaxRetries: 1})
	if err := c.Connect(context.Background()); err == nil {
		t.Error("Connect() after Stop() succeeded, want failure")
	}
}

package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codescope/codedb/pkg/protocol"
)

// stubHandler produces the response for one decoded request. A nil
// response makes the stub drop the connection without answering.
type stubHandler func(req *protocol.Request) *protocol.Response

// startStub runs a minimal one-request-per-connection daemon.
func startStub(t *testing.T, handler stubHandler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "stub.sock")
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer func() { _ = conn.Close() }()

				payload, err := protocol.ReadFrame(conn)
				if err != nil {
					return
				}
				req, err := protocol.DecodeRequest(payload)
				if err != nil {
					return
				}
				resp := handler(req)
				if resp == nil {
					return
				}
				raw, err := resp.Encode()
				if err != nil {
					return
				}
				_ = protocol.WriteFrame(conn, raw)
			}(conn)
		}
	}()
	return socketPath
}

func okHandler(req *protocol.Request) *protocol.Response {
	result := protocol.Success(map[string]any{"status": "ok", "method": req.Method})
	return protocol.NewResultResponse(req.ID, result.ToWire())
}

func TestCallBeforeConnect(t *testing.T) {
	c := New(Config{SocketPath: "/tmp/never-dialed.sock"})
	if _, err := c.Call(context.Background(), "ping", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Call() error = %v, want ErrNotConnected", err)
	}
}

func TestConnectAndCall(t *testing.T) {
	socketPath := startStub(t, okHandler)

	c := New(Config{SocketPath: socketPath, MaxRetries: 1})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = c.Disconnect() }()

	data, err := c.CallExpectSuccess(context.Background(), "get_queue_stats", nil)
	if err != nil {
		t.Fatalf("CallExpectSuccess() error = %v", err)
	}
	if data["method"] != "get_queue_stats" {
		t.Errorf("echoed method = %v", data["method"])
	}

	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if _, err := c.Call(context.Background(), "ping", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Call() after Disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestCallRetriesTransportFailures(t *testing.T) {
	var attempts atomic.Int32
	socketPath := startStub(t, func(req *protocol.Request) *protocol.Response {
		if attempts.Add(1) < 3 {
			// Dropped connection: the client must dial again.
			return nil
		}
		return okHandler(req)
	})

	c := New(Config{
		SocketPath: socketPath,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	c.connected.Store(true)

	if _, err := c.Call(context.Background(), "ping", nil); err != nil {
		t.Fatalf("Call() error = %v, want success on third attempt", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	socketPath := startStub(t, func(req *protocol.Request) *protocol.Response {
		mu.Lock()
		ids = append(ids, req.ID)
		mu.Unlock()
		return nil
	})

	c := New(Config{
		SocketPath: socketPath,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	c.connected.Store(true)

	if _, err := c.Call(context.Background(), "ping", nil); err == nil {
		t.Fatal("Call() error = nil, want exhaustion failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 2 {
		t.Fatalf("attempts = %d, want 2", len(ids))
	}
	// The request id is minted once and reused across attempts.
	if ids[0] != ids[1] {
		t.Errorf("request id changed across attempts: %q then %q", ids[0], ids[1])
	}
}

func TestCallDoesNotRetryServerErrors(t *testing.T) {
	var attempts atomic.Int32
	socketPath := startStub(t, func(req *protocol.Request) *protocol.Response {
		attempts.Add(1)
		return protocol.NewErrorResponse(req.ID, protocol.CodeQueueFull, "request queue is full", nil)
	})

	c := New(Config{SocketPath: socketPath, MaxRetries: 3, RetryDelay: time.Millisecond})
	c.connected.Store(true)

	_, err := c.Call(context.Background(), "insert", map[string]any{"table_name": "t"})
	var respErr *protocol.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("Call() error = %v, want *protocol.ResponseError", err)
	}
	if respErr.Code != protocol.CodeQueueFull {
		t.Errorf("code = %d, want %d", respErr.Code, protocol.CodeQueueFull)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (server errors are final)", got)
	}
}

func TestCallDoesNotRetryMalformedResponses(t *testing.T) {
	// A frame that is not a JSON envelope is a protocol fault, not a
	// transient transport failure; retrying would just replay the request
	// against a broken peer.
	var attempts atomic.Int32
	socketPath := filepath.Join(t.TempDir(), "stub.sock")
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			_, _ = protocol.ReadFrame(conn)
			_ = protocol.WriteFrame(conn, []byte("{not json"))
			_ = conn.Close()
		}
	}()

	c := New(Config{SocketPath: socketPath, MaxRetries: 3, RetryDelay: time.Millisecond})
	c.connected.Store(true)

	if _, err := c.Call(context.Background(), "ping", nil); err == nil {
		t.Fatal("Call() error = nil, want decode failure")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (malformed responses are final)", got)
	}
}

// A server that misreports a handler failure inside the result member is
// non-conforming, but the client still surfaces the failure through the
// typed wrappers.
func TestCallSurfacesHandlerErrors(t *testing.T) {
	socketPath := startStub(t, func(req *protocol.Request) *protocol.Response {
		result := protocol.Errorf(protocol.CodeDatabaseError, "no such table: ghosts")
		return protocol.NewResultResponse(req.ID, result.ToWire())
	})

	c := New(Config{SocketPath: socketPath, MaxRetries: 1})
	c.connected.Store(true)

	// The raw call surfaces the failure as a result, not an error.
	result, err := c.Call(context.Background(), "select", map[string]any{"table_name": "ghosts"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if _, failed := result.(protocol.ErrorResult); !failed {
		t.Fatalf("Call() result = %T, want ErrorResult", result)
	}

	// The typed wrappers convert it into an error.
	_, err = c.CallExpectRows(context.Background(), "select", map[string]any{"table_name": "ghosts"})
	var respErr *protocol.ResponseError
	if !errors.As(err, &respErr) || respErr.Code != protocol.CodeDatabaseError {
		t.Errorf("CallExpectRows() error = %v, want database error", err)
	}
}

func TestCallExpectShapeMismatch(t *testing.T) {
	socketPath := startStub(t, okHandler)

	c := New(Config{SocketPath: socketPath, MaxRetries: 1})
	c.connected.Store(true)

	if _, err := c.CallExpectRows(context.Background(), "ping", nil); err == nil {
		t.Error("CallExpectRows() on a success object expected error, got nil")
	}
}

func TestHealthCheck(t *testing.T) {
	socketPath := startStub(t, okHandler)

	c := New(Config{SocketPath: socketPath, MaxRetries: 1})
	if c.HealthCheck(context.Background()) {
		t.Error("HealthCheck() before Connect = true")
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.HealthCheck(context.Background()) {
		t.Error("HealthCheck() against live stub = false")
	}
}

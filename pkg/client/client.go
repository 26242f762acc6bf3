// Package client implements the RPC client for the driver daemon. The
// wire protocol serves one request per connection, so the client dials per
// call and bounds concurrency with a semaphore instead of pooling sockets.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/protocol"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 100 * time.Millisecond
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 300 * time.Second
	DefaultMaxConcurrent  = 32
)

// ErrNotConnected is returned for calls before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("client is not connected")

// Config holds client tunables.
type Config struct {
	// SocketPath is the daemon's Unix domain socket.
	SocketPath string

	// MaxRetries bounds transport-level retry attempts per call.
	MaxRetries int

	// RetryDelay is the base delay between attempts; attempt n waits
	// n times this value.
	RetryDelay time.Duration

	// ConnectTimeout bounds each dial.
	ConnectTimeout time.Duration

	// RequestTimeout bounds each full request/response exchange.
	RequestTimeout time.Duration

	// MaxConcurrent bounds in-flight calls.
	MaxConcurrent int
}

// Client issues RPC calls against the driver daemon.
type Client struct {
	cfg       Config
	sem       chan struct{}
	connected atomic.Bool
}

// New creates a client. Connect must be called before issuing calls.
func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Client{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Connect verifies the daemon is reachable with a ping and marks the
// client usable.
func (c *Client) Connect(ctx context.Context) error {
	c.connected.Store(true)
	if _, err := c.Call(ctx, "ping", nil); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("connect to daemon at %q: %w", c.cfg.SocketPath, err)
	}
	return nil
}

// Disconnect marks the client unusable. Idempotent; there are no pooled
// sockets to tear down.
func (c *Client) Disconnect() error {
	c.connected.Store(false)
	return nil
}

// HealthCheck reports whether the client is connected and the daemon
// socket exists and answers a ping.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.connected.Load() {
		return false
	}
	if _, err := os.Stat(c.cfg.SocketPath); err != nil {
		return false
	}
	result, err := c.Call(ctx, "ping", nil)
	if err != nil {
		return false
	}
	_, failed := result.(protocol.ErrorResult)
	return !failed
}

// Call issues one RPC and returns the handler's result. Timeout and
// connection failures are retried with linear backoff; other transport
// faults raise immediately. A response carrying an error member is final
// and arrives as *protocol.ResponseError, never retried.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (protocol.Result, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	requestID := uuid.NewString()
	req := protocol.NewRequest(requestID, method, params)
	payload, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * c.cfg.RetryDelay
			logger.Debug("Retrying call",
				logger.KeyMethod, method,
				logger.KeyRequestID, requestID,
				"attempt", attempt,
				"delay", delay.String())
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.exchange(ctx, payload)
		if err != nil {
			if !retryable(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		if resp.Error != nil {
			return nil, resp.Error
		}
		return protocol.ParseResult(resp.Result)
	}

	return nil, fmt.Errorf("call %s failed after %d attempts: %w", method, c.cfg.MaxRetries, lastErr)
}

// retryable reports whether a transport failure is worth another
// attempt. Timeouts and connection-level failures are; anything else,
// like a malformed response frame, is raised immediately.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// exchange performs one dial/write/read cycle.
func (c *Client) exchange(ctx context.Context, payload []byte) (*protocol.Response, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", c.cfg.SocketPath, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := protocol.WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	raw, err := protocol.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return protocol.DecodeResponse(raw)
}

// CallExpectSuccess issues a call and unwraps a SuccessResult, turning
// handler-level failures into errors.
func (c *Client) CallExpectSuccess(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	switch r := result.(type) {
	case protocol.SuccessResult:
		return r.Data, nil
	case protocol.DataResult:
		return nil, fmt.Errorf("%s returned a result set, not a success object", method)
	case protocol.ErrorResult:
		return nil, resultError(method, r)
	default:
		return nil, fmt.Errorf("%s returned unexpected result %T", method, result)
	}
}

// CallExpectRows issues a call and unwraps a DataResult.
func (c *Client) CallExpectRows(ctx context.Context, method string, params map[string]any) ([]map[string]any, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	switch r := result.(type) {
	case protocol.DataResult:
		return r.Rows, nil
	case protocol.SuccessResult:
		return nil, fmt.Errorf("%s returned a success object, not a result set", method)
	case protocol.ErrorResult:
		return nil, resultError(method, r)
	default:
		return nil, fmt.Errorf("%s returned unexpected result %T", method, result)
	}
}

// resultError converts a handler-level ErrorResult into an error carrying
// the wire code.
func resultError(method string, r protocol.ErrorResult) error {
	return &protocol.ResponseError{
		Code:    r.Code,
		Message: fmt.Sprintf("%s: %s", method, r.Description),
		Data:    r.Details,
	}
}

// Package server implements the RPC server: a Unix-domain-socket accept
// loop feeding a bounded priority queue drained by a worker pool. Each
// connection carries exactly one length-prefixed JSON-RPC request and
// receives exactly one response.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codescope/codedb/internal/logger"
	"github.com/codescope/codedb/pkg/driver"
	"github.com/codescope/codedb/pkg/metrics/prometheus"
	"github.com/codescope/codedb/pkg/protocol"
	"github.com/codescope/codedb/pkg/queue"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultQueueMaxSize   = 1000
	DefaultWorkers        = 4
	DefaultMaxConnections = 256
	DefaultRequestTimeout = queue.DefaultTimeout
)

// Config holds server tunables.
type Config struct {
	// SocketPath is the Unix domain socket the server listens on.
	SocketPath string

	// QueueMaxSize bounds the number of queued requests.
	QueueMaxSize int

	// Workers is the number of queue-draining workers.
	Workers int

	// MaxConnections bounds concurrently served connections.
	MaxConnections int

	// RequestTimeout is the per-request deadline covering queue wait plus
	// execution.
	RequestTimeout time.Duration
}

// Server owns the listener, the queue, and the worker pool.
type Server struct {
	cfg     Config
	drv     driver.Driver
	q       *queue.Queue
	pending *pendingTable
	metrics *prometheus.ServerMetrics

	listener net.Listener
	sem      chan struct{}
	notify   chan struct{}
	done     chan struct{}

	connWg   sync.WaitGroup
	workerWg sync.WaitGroup

	stopOnce sync.Once
}

// workItem is the queue payload: the decoded envelope of one request.
type workItem struct {
	method string
	params map[string]any
}

// New creates a server around a connected driver.
func New(cfg Config, drv driver.Driver) *Server {
	if cfg.QueueMaxSize <= 0 {
		cfg.QueueMaxSize = DefaultQueueMaxSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &Server{
		cfg: cfg,
		drv: drv,
		q: queue.New(cfg.QueueMaxSize,
			queue.WithDefaultTimeout(cfg.RequestTimeout),
			queue.WithRecorder(prometheus.NewQueueMetrics())),
		pending: newPendingTable(),
		metrics: prometheus.NewServerMetrics(),
		sem:     make(chan struct{}, cfg.MaxConnections),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Queue exposes the request queue for stats reporting.
func (s *Server) Queue() *queue.Queue { return s.q }

// Start binds the socket and launches the accept loop and worker pool.
// A stale socket file from a previous run is removed before binding.
func (s *Server) Start() error {
	if s.cfg.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %q: %w", s.cfg.SocketPath, err)
	}
	s.listener = ln

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWg.Add(1)
		go s.workerLoop(i)
	}

	s.connWg.Add(1)
	go s.acceptLoop()

	logger.Info("RPC server listening",
		logger.KeySocket, s.cfg.SocketPath,
		"workers", s.cfg.Workers,
		"queue_max", s.cfg.QueueMaxSize)
	return nil
}

// Stop closes the listener, drains in-flight connections and workers, and
// removes the socket file. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.connWg.Wait()
		s.workerWg.Wait()
		_ = os.Remove(s.cfg.SocketPath)
		logger.Info("RPC server stopped", logger.KeySocket, s.cfg.SocketPath)
	})
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop() {
	defer s.connWg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			logger.Warn("Accept failed", logger.KeyError, err)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-s.done:
			_ = conn.Close()
			return
		}

		s.metrics.RecordConnection()
		s.connWg.Add(1)
		go func() {
			defer s.connWg.Done()
			defer func() { <-s.sem }()
			s.handleConn(conn)
		}()
	}
}

// handleConn serves one request/response exchange and closes the
// connection.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	start := time.Now()
	peer := conn.RemoteAddr().String()

	payload, err := protocol.ReadFrame(conn)
	if err != nil {
		logger.Warn("Failed to read request frame", logger.KeyPeer, peer, logger.KeyError, err)
		s.writeResponse(conn, protocol.NewErrorResponse("", protocol.CodeInvalidRequest,
			fmt.Sprintf("read frame: %v", err), nil))
		return
	}

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		s.writeResponse(conn, protocol.NewErrorResponse("", protocol.CodeInvalidRequest, err.Error(), nil))
		return
	}

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	s.metrics.RequestStarted()
	defer s.metrics.RequestFinished()

	result, err := s.submit(requestID, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		code := protocol.CodeInternalError
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			code = protocol.CodeQueueFull
		case errors.Is(err, queue.ErrDuplicateRequest):
			code = protocol.CodeInvalidRequest
		case errors.Is(err, context.DeadlineExceeded):
			code = protocol.CodeTimeout
			outcome = "timeout"
		case errors.Is(err, errShuttingDown):
			code = protocol.CodeConnectionError
		}
		s.writeResponse(conn, protocol.NewErrorResponse(requestID, code, err.Error(), nil))
		s.metrics.RecordRequest(req.Method, outcome, time.Since(start))
		return
	}

	// Handler failures travel in the envelope's error member, never inside
	// result; clients decide success by checking response.error alone.
	if r, failed := result.(protocol.ErrorResult); failed {
		outcome = "error"
		s.writeResponse(conn, protocol.NewErrorResponse(requestID, r.Code, r.Description, r.Details))
	} else {
		s.writeResponse(conn, protocol.NewResultResponse(requestID, result.ToWire()))
	}
	s.metrics.RecordRequest(req.Method, outcome, time.Since(start))

	logger.Debug("Request served",
		logger.KeyRequestID, requestID,
		logger.KeyMethod, req.Method,
		logger.KeyPeer, peer,
		logger.KeyDurationMs, float64(time.Since(start).Microseconds())/1000)
}

// submit enqueues the request and waits for its result or timeout. A
// per-request timeout parameter (seconds) overrides the configured
// default for both the queue entry and the rendezvous wait.
func (s *Server) submit(requestID string, req *protocol.Request) (protocol.Result, error) {
	priority := queue.PriorityNormal
	if raw, ok := req.Params["priority"].(string); ok {
		priority = queue.ParsePriority(raw)
	}

	timeout := s.cfg.RequestTimeout
	if raw, ok := req.Params["timeout"].(float64); ok && raw > 0 {
		timeout = time.Duration(raw * float64(time.Second))
	}

	ch, ok := s.pending.register(requestID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrDuplicateRequest, requestID)
	}

	item := &queue.Item{
		RequestID: requestID,
		Payload:   &workItem{method: req.Method, params: req.Params},
		Priority:  priority,
		Timeout:   timeout,
	}
	if err := s.q.Enqueue(item); err != nil {
		s.pending.forget(requestID)
		return nil, err
	}
	s.kick()

	select {
	case result := <-ch:
		return result, nil
	case <-time.After(timeout):
		s.pending.forget(requestID)
		return nil, context.DeadlineExceeded
	case <-s.done:
		s.pending.forget(requestID)
		return nil, errShuttingDown
	}
}

// kick wakes one idle worker. The channel has capacity one; a pending
// wakeup already covers this enqueue.
func (s *Server) kick() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// workerLoop drains the queue until shutdown.
func (s *Server) workerLoop(id int) {
	defer s.workerWg.Done()

	for {
		item := s.q.Dequeue()
		if item == nil {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		work := item.Payload.(*workItem)

		ctx, cancel := context.WithTimeout(context.Background(), item.Timeout)
		result := s.dispatch(ctx, work.method, work.params)
		cancel()

		s.q.MarkProcessed()
		s.pending.deliver(item.RequestID, result)

		logger.Debug("Worker processed request",
			"worker", id,
			logger.KeyRequestID, item.RequestID,
			logger.KeyMethod, work.method,
			logger.KeyPriority, item.Priority.String())
	}
}

// writeResponse frames and writes a response envelope. Write failures are
// logged; the client has already gone away.
func (s *Server) writeResponse(conn net.Conn, resp *protocol.Response) {
	raw, err := resp.Encode()
	if err != nil {
		logger.Error("Failed to encode response", logger.KeyError, err)
		return
	}
	if err := protocol.WriteFrame(conn, raw); err != nil {
		logger.Warn("Failed to write response frame", logger.KeyError, err)
	}
}

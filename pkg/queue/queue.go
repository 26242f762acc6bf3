// Package queue implements the bounded priority request queue that sits
// between the RPC server's accept path and the worker pool.
//
// Four priority bands are dequeued strictly highest-first, FIFO within a
// band. Every operation is serialized by a single mutex; statistics are
// updated under the same lock so snapshots are always consistent with the
// queue contents.
package queue

import (
	"container/list"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Priority is one of four bands used to order dequeue decisions.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent

	numPriorities = 4
)

// String returns the band name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// ParsePriority maps a band name to a Priority. Unknown names fall back
// to NORMAL.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(s) {
	case "LOW":
		return PriorityLow
	case "HIGH":
		return PriorityHigh
	case "URGENT":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// DefaultTimeout is the per-request timeout applied when a request does
// not carry its own.
const DefaultTimeout = 300 * time.Second

// Queue errors.
var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrDuplicateRequest is returned when a request ID is already queued.
	ErrDuplicateRequest = errors.New("request ID already queued")
)

// Item is one queued request. Payload is opaque to the queue.
type Item struct {
	RequestID string
	Payload   any
	Priority  Priority
	CreatedAt time.Time
	Timeout   time.Duration
}

// expired reports whether the item's timeout elapsed before now.
func (it *Item) expired(now time.Time) bool {
	return now.Sub(it.CreatedAt) >= it.Timeout
}

// Stats is a snapshot of queue statistics.
type Stats struct {
	TotalEnqueued uint64 `json:"total_enqueued"`
	Processed     uint64 `json:"processed"`
	Expired       uint64 `json:"expired"`
	Rejected      uint64 `json:"rejected"`
	CurrentSize   int    `json:"current_size"`
	Pending       int    `json:"pending"`
	MaxSize       int    `json:"max_size"`
}

// Recorder receives queue lifecycle events for metrics export. A nil
// recorder disables metrics with zero overhead.
type Recorder interface {
	RecordEnqueued(p Priority)
	RecordDequeued(p Priority)
	RecordExpired()
	RecordRejected(reason string)
	SetDepth(size int)
}

// Queue is the bounded four-band priority queue.
type Queue struct {
	mu    sync.Mutex
	bands [numPriorities]*list.List
	byID  map[string]Priority

	maxSize        int
	defaultTimeout time.Duration

	totalEnqueued uint64
	processed     uint64
	expired       uint64
	rejected      uint64

	recorder Recorder
}

// Option configures a Queue.
type Option func(*Queue)

// WithDefaultTimeout overrides the default per-request timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.defaultTimeout = d
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// New creates a queue holding at most maxSize live requests.
func New(maxSize int, opts ...Option) *Queue {
	q := &Queue{
		byID:           make(map[string]Priority),
		maxSize:        maxSize,
		defaultTimeout: DefaultTimeout,
	}
	for i := range q.bands {
		q.bands[i] = list.New()
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds an item to its priority band.
//
// Returns ErrQueueFull when at capacity and ErrDuplicateRequest when the
// request ID is already tracked. A zero Timeout is replaced with the
// queue's default; a zero CreatedAt with the current time.
func (q *Queue) Enqueue(item *Item) error {
	if item.RequestID == "" {
		return fmt.Errorf("enqueue: empty request ID")
	}
	if item.Priority < PriorityLow || item.Priority > PriorityUrgent {
		return fmt.Errorf("enqueue: invalid priority %d", item.Priority)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size() >= q.maxSize {
		q.rejected++
		if q.recorder != nil {
			q.recorder.RecordRejected("queue_full")
		}
		return ErrQueueFull
	}
	if _, dup := q.byID[item.RequestID]; dup {
		q.rejected++
		if q.recorder != nil {
			q.recorder.RecordRejected("duplicate")
		}
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, item.RequestID)
	}

	if item.Timeout <= 0 {
		item.Timeout = q.defaultTimeout
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	q.bands[item.Priority].PushBack(item)
	q.byID[item.RequestID] = item.Priority
	q.totalEnqueued++

	if q.recorder != nil {
		q.recorder.RecordEnqueued(item.Priority)
		q.recorder.SetDepth(q.size())
	}
	return nil
}

// Dequeue returns the oldest non-expired item from the highest non-empty
// band, or nil when no live work is queued. Expired items encountered
// during the scan are dropped and counted.
func (q *Queue) Dequeue() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	for p := PriorityUrgent; p >= PriorityLow; p-- {
		band := q.bands[p]
		for band.Len() > 0 {
			front := band.Front()
			item := front.Value.(*Item)
			band.Remove(front)
			delete(q.byID, item.RequestID)

			if item.expired(now) {
				q.expired++
				if q.recorder != nil {
					q.recorder.RecordExpired()
				}
				continue
			}

			if q.recorder != nil {
				q.recorder.RecordDequeued(item.Priority)
				q.recorder.SetDepth(q.size())
			}
			return item
		}
	}
	return nil
}

// MarkProcessed records that a dequeued item finished processing.
func (q *Queue) MarkProcessed() {
	q.mu.Lock()
	q.processed++
	q.mu.Unlock()
}

// Contains reports whether a request ID is currently queued.
func (q *Queue) Contains(requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[requestID]
	return ok
}

// Stats returns a consistent snapshot of the queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := q.size()
	return Stats{
		TotalEnqueued: q.totalEnqueued,
		Processed:     q.processed,
		Expired:       q.expired,
		Rejected:      q.rejected,
		CurrentSize:   size,
		Pending:       size,
		MaxSize:       q.maxSize,
	}
}

// size returns the live entry count. Caller holds q.mu.
func (q *Queue) size() int {
	n := 0
	for _, band := range q.bands {
		n += band.Len()
	}
	return n
}

package server

import (
	"sync"

	"github.com/codescope/codedb/pkg/protocol"
)

// pendingTable is the rendezvous between connection goroutines and the
// worker pool. Each in-flight request owns a one-shot buffered channel
// keyed by request ID; the worker delivers exactly one result and the
// connection goroutine consumes it or abandons it on timeout.
type pendingTable struct {
	mu      sync.Mutex
	waiting map[string]chan protocol.Result
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiting: make(map[string]chan protocol.Result)}
}

// register creates the result channel for a request ID. Returns false when
// the ID is already in flight.
func (p *pendingTable) register(requestID string) (chan protocol.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.waiting[requestID]; dup {
		return nil, false
	}
	ch := make(chan protocol.Result, 1)
	p.waiting[requestID] = ch
	return ch, true
}

// deliver hands the result to the waiting connection, if any. A missing
// entry means the connection gave up; the result is dropped.
func (p *pendingTable) deliver(requestID string, result protocol.Result) {
	p.mu.Lock()
	ch, ok := p.waiting[requestID]
	delete(p.waiting, requestID)
	p.mu.Unlock()

	if ok {
		ch <- result
	}
}

// forget removes a request ID without delivering. Used when the
// connection stops waiting.
func (p *pendingTable) forget(requestID string) {
	p.mu.Lock()
	delete(p.waiting, requestID)
	p.mu.Unlock()
}

// size returns the number of in-flight requests.
func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}

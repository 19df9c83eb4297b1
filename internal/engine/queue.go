// Action queue: an append-only buffer of requests accepted between ticks and
// drained atomically at the start of the next tick.
package engine

import "sync"

// ActionQueue buffers submitted actions in arrival order. Safe for
// concurrent submission; drained only by the scheduler.
type ActionQueue struct {
	mu      sync.Mutex
	items   []ActionRequest
	arrival uint64
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{}
}

// Submit appends a request. Accepted at any time between ticks.
func (q *ActionQueue) Submit(req ActionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.arrival++
	req.arrival = q.arrival
	q.items = append(q.items, req)
}

// Drain takes and clears the entire queue contents in one step. Actions
// submitted after the drain land in the next tick.
func (q *ActionQueue) Drain() []ActionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of buffered requests.
func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

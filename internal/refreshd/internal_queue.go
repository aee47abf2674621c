package refreshd

import "sync"

// InternalQueue is a bounded FIFO of refresh tasks, deduplicated by
// request URL. A URL re-queued while still waiting is absorbed; once
// dequeued it may be enqueued again for a retry.
type InternalQueue struct {
	mu      sync.RWMutex
	entries []Entry
	queued  map[string]bool
	maxSize int
}

// NewInternalQueue creates a queue holding at most maxSize entries.
func NewInternalQueue(maxSize int) *InternalQueue {
	return &InternalQueue{
		entries: make([]Entry, 0, maxSize),
		queued:  make(map[string]bool),
		maxSize: maxSize,
	}
}

// Enqueue adds an entry. Returns false only when the queue is full; an
// already-queued URL is treated as accepted.
func (q *InternalQueue) Enqueue(entry Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queued[entry.RequestURL] {
		return true
	}
	if len(q.entries) >= q.maxSize {
		return false
	}

	q.entries = append(q.entries, entry)
	q.queued[entry.RequestURL] = true
	return true
}

// Dequeue removes and returns up to count entries in FIFO order.
func (q *InternalQueue) Dequeue(count int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	if count > len(q.entries) {
		count = len(q.entries)
	}

	result := make([]Entry, count)
	copy(result, q.entries[:count])
	q.entries = q.entries[count:]
	for _, entry := range result {
		delete(q.queued, entry.RequestURL)
	}

	return result
}

// Size returns the current number of queued entries.
func (q *InternalQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

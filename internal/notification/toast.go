package notification

import (
	"context"
	"slices"
	"sync"
)

// DefaultToastCapacity bounds the queue when no capacity is configured.
const DefaultToastCapacity = 50

// ToastQueue holds notifications until the host drains them. When full the
// oldest entry is dropped.
type ToastQueue struct {
	mu       sync.Mutex
	items    []*Notification
	capacity int
	dropped  int
}

// NewToastQueue creates a queue holding at most capacity notifications.
func NewToastQueue(capacity int) *ToastQueue {
	if capacity <= 0 {
		capacity = DefaultToastCapacity
	}
	return &ToastQueue{capacity: capacity}
}

// Name implements Sink.
func (q *ToastQueue) Name() string { return "toast" }

// Deliver implements Sink.
func (q *ToastQueue) Deliver(_ context.Context, n *Notification) error {
	q.Push(n)
	return nil
}

// Push appends a copy of n.
func (q *ToastQueue) Push(n *Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = slices.Delete(q.items, 0, 1)
		q.dropped++
	}
	q.items = append(q.items, n.Clone())
}

// Drain returns all queued notifications oldest first and empties the queue.
func (q *ToastQueue) Drain() []*Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		return []*Notification{}
	}
	return out
}

// Peek returns copies of the queued notifications without removing them.
func (q *ToastQueue) Peek() []*Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Notification, len(q.items))
	for i, n := range q.items {
		out[i] = n.Clone()
	}
	return out
}

// Dismiss removes the notification with id. It reports whether one was found.
func (q *ToastQueue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.IndexFunc(q.items, func(n *Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// Len returns the number of queued notifications.
func (q *ToastQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many notifications were evicted because the queue was full.
func (q *ToastQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

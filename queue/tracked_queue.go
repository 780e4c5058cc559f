package queue

const UnlimitedCapacity = -1

// MutateFunc is invoked after queue length or capacity changes.
type MutateFunc func(length int, capacity int)

// QueueHooks defines callbacks for queue lifecycle events. The float64 is the
// simulated time at which the item entered or left the queue.
type QueueHooks[T any] struct {
	OnEnqueue func(item T, at float64)
	OnDequeue func(item T, at float64)
}

// LessFunc reports whether a must be ordered before b.
type LessFunc[T any] func(a, b T) bool

// TrackedQueue maintains items with length/capacity bookkeeping and hooks.
// When built with a LessFunc it keeps items sorted; equal items keep
// insertion order.
type TrackedQueue[T any] struct {
	name     string
	capacity int
	items    []T
	less     LessFunc[T]
	hooks    QueueHooks[T]
	mutate   MutateFunc
}

// NewTrackedQueue constructs a FIFO tracked queue with optional hooks and mutate callback.
func NewTrackedQueue[T any](name string, capacity int, mutate MutateFunc, hooks QueueHooks[T]) *TrackedQueue[T] {
	q := &TrackedQueue[T]{
		name:     name,
		capacity: capacity,
		hooks:    hooks,
		mutate:   mutate,
	}
	q.notify()
	return q
}

// NewOrderedQueue constructs a tracked queue kept sorted by less.
func NewOrderedQueue[T any](name string, capacity int, less LessFunc[T], hooks QueueHooks[T]) *TrackedQueue[T] {
	q := NewTrackedQueue[T](name, capacity, nil, hooks)
	q.less = less
	return q
}

// Name returns the queue name.
func (q *TrackedQueue[T]) Name() string {
	if q == nil {
		return ""
	}
	return q.name
}

// Capacity returns current capacity (-1 for unlimited).
func (q *TrackedQueue[T]) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// Len returns the number of items.
func (q *TrackedQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// Enqueue inserts an item, at its sorted position for ordered queues.
// Returns false if capacity exceeded.
func (q *TrackedQueue[T]) Enqueue(item T, at float64) bool {
	if q == nil {
		return false
	}
	if q.capacity >= 0 && len(q.items) >= q.capacity {
		return false
	}
	idx := len(q.items)
	if q.less != nil {
		// walk back past every item that must come after the new one
		for idx > 0 && q.less(item, q.items[idx-1]) {
			idx--
		}
	}
	var zero T
	q.items = append(q.items, zero)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
	if q.hooks.OnEnqueue != nil {
		q.hooks.OnEnqueue(item, at)
	}
	q.notify()
	return true
}

// PopFront removes and returns the front item.
func (q *TrackedQueue[T]) PopFront(at float64) (T, bool) {
	return q.RemoveAt(0, at)
}

// RemoveAt deletes the item at index.
func (q *TrackedQueue[T]) RemoveAt(idx int, at float64) (T, bool) {
	var zero T
	if q == nil || idx < 0 || idx >= len(q.items) {
		return zero, false
	}
	item := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	if q.hooks.OnDequeue != nil {
		q.hooks.OnDequeue(item, at)
	}
	q.notify()
	return item, true
}

// RemoveMatch removes the first item matching predicate.
func (q *TrackedQueue[T]) RemoveMatch(match func(T) bool, at float64) (T, bool) {
	var zero T
	if q == nil || match == nil {
		return zero, false
	}
	for i, item := range q.items {
		if match(item) {
			return q.RemoveAt(i, at)
		}
	}
	return zero, false
}

// RemoveAll removes every item matching predicate, preserving the order of
// the rest, and returns the removed items in queue order.
func (q *TrackedQueue[T]) RemoveAll(match func(T) bool, at float64) []T {
	if q == nil || match == nil {
		return nil
	}
	var removed []T
	kept := q.items[:0]
	for _, item := range q.items {
		if match(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	for _, item := range removed {
		if q.hooks.OnDequeue != nil {
			q.hooks.OnDequeue(item, at)
		}
	}
	if len(removed) > 0 {
		q.notify()
	}
	return removed
}

// FindFirst returns the index of the first item matching predicate, or -1.
func (q *TrackedQueue[T]) FindFirst(match func(T) bool) int {
	if q == nil || match == nil {
		return -1
	}
	for i, item := range q.items {
		if match(item) {
			return i
		}
	}
	return -1
}

// Items exposes the underlying slice (read-only operations only).
func (q *TrackedQueue[T]) Items() []T {
	if q == nil {
		return nil
	}
	return q.items
}

// Clear drops all items without running dequeue hooks.
func (q *TrackedQueue[T]) Clear() {
	if q == nil {
		return
	}
	q.items = nil
	q.notify()
}

func (q *TrackedQueue[T]) notify() {
	if q == nil || q.mutate == nil {
		return
	}
	q.mutate(len(q.items), q.capacity)
}

// Package registry provides the correlation table that links an opaque
// request id to its pending completion callback. Delivery is at-most-once:
// a callback is removed from the table before it is invoked, and every
// invocation happens on a single dispatcher goroutine so callers never race
// with their own state updates.
package registry

import (
	"log/slog"
	"sync"
)

type delivery[T any] struct {
	fn     func(T)
	result T
}

// Registry maps request ids to one-shot completion callbacks. It is safe for
// concurrent Register/Deliver/Unregister from any goroutine.
type Registry[T any] struct {
	log *slog.Logger

	mu        sync.Mutex
	callbacks map[string]func(T)
	closed    bool

	queue chan delivery[T]
	done  chan struct{}
}

// New creates a registry and starts its dispatcher goroutine. The registry is
// expected to live for the whole process; Close releases the dispatcher.
func New[T any](log *slog.Logger) *Registry[T] {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry[T]{
		log:       log,
		callbacks: make(map[string]func(T)),
		queue:     make(chan delivery[T], 16),
		done:      make(chan struct{}),
	}
	go r.dispatch()
	return r
}

func (r *Registry[T]) dispatch() {
	defer close(r.done)
	for d := range r.queue {
		d.fn(d.result)
	}
}

// Register stores the callback for id. Registering an id that is already
// pending is a caller bug; the previous callback is overwritten with a warning
// rather than failing the new request.
func (r *Registry[T]) Register(id string, fn func(T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Warn("registry closed, dropping registration", "id", id)
		return
	}
	if _, ok := r.callbacks[id]; ok {
		r.log.Warn("duplicate request id registration, overwriting", "id", id)
	}
	r.callbacks[id] = fn
}

// Deliver removes the callback for id and schedules it with result. A second
// Deliver for the same id, or a Deliver for an id that was never registered,
// is a no-op. Reports whether a callback was pending.
func (r *Registry[T]) Deliver(id string, result T) bool {
	// The send happens under the mutex so Close cannot close the queue
	// between the closed check and the send. The dispatcher never takes the
	// mutex, so it keeps draining while we hold it.
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.callbacks[id]
	if !ok {
		r.log.Warn("no pending callback for request id", "id", id)
		return false
	}
	delete(r.callbacks, id)
	if r.closed {
		r.log.Warn("registry closed, dropping delivery", "id", id)
		return false
	}
	r.queue <- delivery[T]{fn: fn, result: result}
	return true
}

// Unregister discards the callback for id without invoking it. Used when a
// caller abandons a request.
func (r *Registry[T]) Unregister(id string) {
	r.mu.Lock()
	delete(r.callbacks, id)
	r.mu.Unlock()
}

// Pending reports the number of callbacks still awaiting delivery.
func (r *Registry[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks)
}

// Clear discards all pending callbacks. Intended for tests.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	r.callbacks = make(map[string]func(T))
	r.mu.Unlock()
}

// Close stops the dispatcher after all queued deliveries have run. Deliveries
// attempted after Close are dropped with a warning.
func (r *Registry[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.queue)
	<-r.done
}

// Package dispatch marshals callbacks onto a single owning goroutine.
//
// Background workers Post closures; the owner runs them either by calling
// Drain from its own loop (a host frame tick) or by running Run.
//
//	loop := dispatch.NewLoop()
//	go loop.Run(ctx)
//	loop.Post(func() { label.Set(text) })
package dispatch

import (
	"context"
	"sync"
)

// Loop is a FIFO queue of callbacks executed on the goroutine that calls
// Drain or Run. Post is safe for concurrent use.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// NewLoop creates an empty Loop.
func NewLoop() *Loop {
	return &Loop{
		notify: make(chan struct{}, 1),
	}
}

// Post enqueues fn. It never blocks. Nil callbacks are ignored.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Pending reports the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs every callback queued so far, in order, on the calling
// goroutine. Callbacks posted while draining run on the next Drain.
// Returns the number of callbacks run.
func (l *Loop) Drain() int {
	l.mu.Lock()
	if len(l.queue) == 0 {
		l.mu.Unlock()
		return 0
	}
	drained := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range drained {
		fn()
	}
	return len(drained)
}

// Run drains callbacks as they arrive until ctx is done. Callbacks still
// queued at cancellation are run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-l.notify:
			l.Drain()
		case <-ctx.Done():
			l.Drain()
			return ctx.Err()
		}
	}
}

// Inline runs callbacks immediately on the posting goroutine. It suits
// callers without a dedicated owner goroutine, such as one-shot CLI
// commands.
type Inline struct{}

// Post runs fn.
func (Inline) Post(fn func()) {
	if fn != nil {
		fn()
	}
}

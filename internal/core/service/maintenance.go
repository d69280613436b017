package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

const (
	// SizeLabelCalculating is shown while a size calculation is in flight.
	SizeLabelCalculating = "Calculating..."

	// SizeLabelFailed replaces the in-flight label when measuring fails.
	SizeLabelFailed = "Failed to calculate size"
)

// Dispatcher runs callbacks on the host's primary control path.
// dispatch.Loop implements it.
type Dispatcher interface {
	Post(fn func())
}

// FormatSize renders a storage footprint for display.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return fmt.Sprintf("Storing %s of data", humanize.Bytes(uint64(bytes)))
}

// Maintenance runs slow store operations on a single background worker.
//
// Jobs run strictly in submission order, so a size request made after a
// wipe or collection observes its result. Completion callbacks are posted
// to the Dispatcher, never called from the worker.
type Maintenance struct {
	store      SnapshotStore
	gc         *GarbageCollector
	dispatcher Dispatcher
	metrics    Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func(context.Context)
	closed  bool
	label   string
	done    chan struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewMaintenance creates a Maintenance worker and starts its goroutine.
func NewMaintenance(store SnapshotStore, gc *GarbageCollector, dispatcher Dispatcher, logger *slog.Logger, metrics Metrics) *Maintenance {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Maintenance{
		store:      store,
		gc:         gc,
		dispatcher: dispatcher,
		metrics:    orNopMetrics(metrics),
		logger:     orDefaultLogger(logger),
		done:       make(chan struct{}),
		baseCtx:    ctx,
		cancel:     cancel,
	}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// SizeLabel returns the most recent size label. It is empty until the
// first calculation is requested.
func (m *Maintenance) SizeLabel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.label
}

// CalcSize measures the store footprint. The label switches to
// "Calculating..." immediately and to the formatted size once done.
func (m *Maintenance) CalcSize(cb func(int64, error)) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrClosed.WithDetails("maintenance worker")
	}
	m.label = SizeLabelCalculating
	m.mu.Unlock()

	return m.submit(func(ctx context.Context) {
		n, err := m.calcSize(ctx)
		m.deliver(func() {
			if cb != nil {
				cb(n, err)
			}
		})
	})
}

// Collect runs a garbage collection pass against provider.
func (m *Maintenance) Collect(provider RetentionProvider, cb func(*GCReport, error)) error {
	if m.gc == nil {
		return domain.ErrMissingArgument.WithDetails("garbage collector")
	}
	return m.submit(func(ctx context.Context) {
		report, err := m.gc.Collect(ctx, provider)
		m.deliver(func() {
			if cb != nil {
				cb(report, err)
			}
		})
	})
}

// CollectWait queues a garbage collection pass and waits for it. The
// result is handed over directly rather than through the Dispatcher, so
// it is safe to call from the dispatcher's own goroutine.
func (m *Maintenance) CollectWait(ctx context.Context, provider RetentionProvider) (*GCReport, error) {
	if m.gc == nil {
		return &GCReport{Removed: []string{}, Kept: []string{}, Skipped: true, Reason: SkipDisabled}, nil
	}

	type result struct {
		report *GCReport
		err    error
	}
	done := make(chan result, 1)
	err := m.submit(func(jobCtx context.Context) {
		report, err := m.gc.Collect(jobCtx, provider)
		done <- result{report, err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		return res.report, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wipe deletes every stored snapshot, then recalculates the size label.
func (m *Maintenance) Wipe(cb func(error)) error {
	return m.submit(func(ctx context.Context) {
		err := m.store.WipeAll(ctx)
		if err != nil {
			m.logger.Warn("failed to wipe time machine saves", "error", err)
		} else {
			m.logger.Info("deleted all time machine saves")
		}

		m.mu.Lock()
		m.label = SizeLabelCalculating
		m.mu.Unlock()
		_, _ = m.calcSize(ctx)

		m.deliver(func() {
			if cb != nil {
				cb(err)
			}
		})
	})
}

// Close stops accepting jobs and waits for queued jobs to finish.
func (m *Maintenance) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return nil
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	<-m.done
	m.cancel()
	return nil
}

func (m *Maintenance) submit(job func(context.Context)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrClosed.WithDetails("maintenance worker")
	}
	m.queue = append(m.queue, job)
	m.cond.Signal()
	return nil
}

func (m *Maintenance) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		job := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.runJob(job)
	}
}

func (m *Maintenance) runJob(job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("maintenance job panicked", "panic", r)
		}
	}()
	job(m.baseCtx)
}

func (m *Maintenance) calcSize(ctx context.Context) (int64, error) {
	n, err := m.store.TotalSizeBytes(ctx)
	if err != nil {
		m.logger.Warn("failed to measure time machine saves", "error", err)
		m.mu.Lock()
		m.label = SizeLabelFailed
		m.mu.Unlock()
		return 0, err
	}
	m.metrics.SetStoreSize(n)

	m.mu.Lock()
	m.label = FormatSize(n)
	m.mu.Unlock()
	return n, nil
}

func (m *Maintenance) deliver(fn func()) {
	if m.dispatcher == nil {
		fn()
		return
	}
	m.dispatcher.Post(fn)
}

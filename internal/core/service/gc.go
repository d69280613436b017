package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/telemetry/metric"
)

// RetentionProvider supplies the set of sessions the host still considers
// live. An error or a nil set means the set cannot be determined.
type RetentionProvider interface {
	Retention(ctx context.Context) (domain.RetentionSet, error)
}

// RetentionFunc adapts a function to RetentionProvider.
type RetentionFunc func(ctx context.Context) (domain.RetentionSet, error)

// Retention implements RetentionProvider.
func (f RetentionFunc) Retention(ctx context.Context) (domain.RetentionSet, error) {
	return f(ctx)
}

// StaticRetention returns a provider that always reports ids.
func StaticRetention(ids ...string) RetentionProvider {
	set := domain.NewRetentionSet(ids...)
	return RetentionFunc(func(context.Context) (domain.RetentionSet, error) {
		return set, nil
	})
}

// UnavailableRetention returns a provider whose set cannot be determined.
func UnavailableRetention() RetentionProvider {
	return RetentionFunc(func(context.Context) (domain.RetentionSet, error) {
		return nil, domain.ErrRetentionUnavailable
	})
}

// Reasons a GC pass is skipped.
const (
	SkipDisabled       = "disabled"
	SkipThrottled      = "throttled"
	SkipNoRetention    = "retention unavailable"
	SkipRestorePending = "restore pending"
)

// GCFailure records one session that could not be removed.
type GCFailure struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// GCReport summarizes a garbage collection pass.
type GCReport struct {
	Removed []string    `json:"removed"`
	Kept    []string    `json:"kept"`
	Failed  []GCFailure `json:"failed,omitempty"`
	Skipped bool        `json:"skipped"`
	Reason  string      `json:"reason,omitempty"`
}

// GCConfig configures the garbage collector.
type GCConfig struct {
	// Enabled turns automatic collection on.
	Enabled bool

	// MinInterval is the minimum time between passes. Zero disables
	// throttling.
	MinInterval time.Duration
}

// GarbageCollector removes stored sessions the host no longer retains.
type GarbageCollector struct {
	store   SnapshotStore
	enabled bool
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics Metrics
}

// NewGarbageCollector creates a GarbageCollector.
func NewGarbageCollector(store SnapshotStore, cfg GCConfig, logger *slog.Logger, metrics Metrics) *GarbageCollector {
	g := &GarbageCollector{
		store:   store,
		enabled: cfg.Enabled,
		logger:  orDefaultLogger(logger),
		metrics: orNopMetrics(metrics),
	}
	if cfg.MinInterval > 0 {
		g.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return g
}

// Collect deletes every stored session absent from the provider's retention
// set. When the set cannot be determined nothing is deleted. Individual
// delete failures are recorded in the report and do not stop the pass; the
// returned error is reserved for failing to list sessions at all.
func (g *GarbageCollector) Collect(ctx context.Context, provider RetentionProvider) (*GCReport, error) {
	report := &GCReport{Removed: []string{}, Kept: []string{}}

	if !g.enabled {
		return g.skip(report, SkipDisabled), nil
	}

	// 1. Determine what the host still retains
	var retained domain.RetentionSet
	var err error
	if provider != nil {
		retained, err = provider.Retention(ctx)
	}
	if provider == nil || err != nil || retained == nil {
		g.logger.Warn("skipping time machine cleanup",
			"error", domain.ErrRetentionUnavailable.WithCause(err))
		return g.skip(report, SkipNoRetention), nil
	}

	// 2. Throttle
	if g.limiter != nil && !g.limiter.Allow() {
		g.logger.Debug("time machine cleanup throttled")
		return g.skip(report, SkipThrottled), nil
	}

	// 3. Reconcile
	sessions, err := g.store.ListSessions(ctx)
	if err != nil {
		g.metrics.RecordGCRun(metric.GCResultPartial, 0, 0)
		return nil, err
	}

	for _, id := range sessions {
		if retained.Contains(id) {
			report.Kept = append(report.Kept, id)
			continue
		}

		g.logger.Info("deleting time machine saves since session was removed from profile", "session_id", id)
		if err := g.store.DeleteSession(ctx, id); err != nil {
			g.logger.Warn("failed to delete session saves",
				"session_id", id,
				"error", err)
			report.Failed = append(report.Failed, GCFailure{SessionID: id, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, id)
	}

	result := metric.GCResultCompleted
	if len(report.Failed) > 0 {
		result = metric.GCResultPartial
	}
	g.metrics.RecordGCRun(result, len(report.Removed), len(report.Failed))

	return report, nil
}

func (g *GarbageCollector) skip(report *GCReport, reason string) *GCReport {
	report.Skipped = true
	report.Reason = reason
	g.metrics.RecordGCRun(metric.GCResultSkipped, 0, 0)
	return report
}

package service

import (
	"context"
	"log/slog"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

// SnapshotStore defines the storage interface the services depend on.
// storage.FSStore and storage.BadgerStore implement it.
type SnapshotStore interface {
	Put(ctx context.Context, sessionID string, round int, data []byte) error
	Get(ctx context.Context, sessionID string, round int) (*domain.Record, error)
	Exists(ctx context.Context, sessionID string, round int) (bool, error)
	ListRounds(ctx context.Context, sessionID string) ([]int, error)
	ListSessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	WipeAll(ctx context.Context) error
	TotalSizeBytes(ctx context.Context) (int64, error)
}

// SnapshotCodec converts payloads to and from stored containers.
type SnapshotCodec interface {
	Encode(payload []byte, meta map[string]string) ([]byte, error)
	Decode(format domain.Format, data []byte) (*domain.Snapshot, error)
}

// Notifier is the host's user-visible warning surface.
type Notifier interface {
	Warn(ctx context.Context, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

// Warn implements Notifier.
func (f NotifierFunc) Warn(ctx context.Context, message string) {
	f(ctx, message)
}

// Metrics records service-level measurements. metric.Registry implements it.
type Metrics interface {
	RecordSnapshotWritten(n int)
	IncSnapshotWriteError()
	RecordRestore(outcome string, seconds float64)
	RecordGCRun(result string, deleted, failed int)
	SetStoreSize(bytes int64)
}

type nopMetrics struct{}

func (nopMetrics) RecordSnapshotWritten(int) {}
func (nopMetrics) IncSnapshotWriteError() {}
func (nopMetrics) RecordRestore(string, float64) {}
func (nopMetrics) RecordGCRun(string, int, int) {}
func (nopMetrics) SetStoreSize(int64) {}

// logNotifier surfaces warnings through the log when the host provides no
// notifier.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Warn(ctx context.Context, message string) {
	n.logger.WarnContext(ctx, message)
}

func orDefaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func orNopMetrics(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func orLogNotifier(n Notifier, l *slog.Logger) Notifier {
	if n == nil {
		return logNotifier{logger: l}
	}
	return n
}

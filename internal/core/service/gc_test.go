package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/telemetry/metric"
)

func seedSessions(t *testing.T, store *memStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := store.Put(context.Background(), id, 2, []byte("x")); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}
}

func TestGarbageCollector_Collect(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A", "B", "C")
	metrics := &recordingMetrics{}
	gc := NewGarbageCollector(store, GCConfig{Enabled: true}, discardLogger(), metrics)

	report, err := gc.Collect(context.Background(), StaticRetention("A", "C"))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if report.Skipped {
		t.Fatal("report should not be skipped")
	}
	if !slices.Equal(report.Removed, []string{"B"}) {
		t.Errorf("Removed = %v, want [B]", report.Removed)
	}
	if !slices.Equal(report.Kept, []string{"A", "C"}) {
		t.Errorf("Kept = %v, want [A C]", report.Kept)
	}
	if got := store.sessions(); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("sessions after GC = %v, want [A C]", got)
	}
	if metrics.deleted != 1 || !slices.Equal(metrics.gcResults, []string{metric.GCResultCompleted}) {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestGarbageCollector_EmptyRetentionRemovesAll(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A", "B")
	gc := NewGarbageCollector(store, GCConfig{Enabled: true}, discardLogger(), nil)

	report, err := gc.Collect(context.Background(), StaticRetention())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(report.Removed) != 2 {
		t.Errorf("Removed = %v, want 2 sessions", report.Removed)
	}
	if got := store.sessions(); len(got) != 0 {
		t.Errorf("sessions after GC = %v, want none", got)
	}
}

func TestGarbageCollector_RetentionUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		provider RetentionProvider
	}{
		{"nil provider", nil},
		{"provider error", UnavailableRetention()},
		{"nil set", RetentionFunc(func(context.Context) (domain.RetentionSet, error) { return nil, nil })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			seedSessions(t, store, "A", "B")
			gc := NewGarbageCollector(store, GCConfig{Enabled: true}, discardLogger(), nil)

			report, err := gc.Collect(context.Background(), tt.provider)
			if err != nil {
				t.Fatalf("Collect() error = %v", err)
			}
			if !report.Skipped || report.Reason != SkipNoRetention {
				t.Errorf("report = %+v, want skipped for unavailable retention", report)
			}
			if got := store.sessions(); len(got) != 2 {
				t.Errorf("sessions = %v, nothing should be deleted", got)
			}
		})
	}
}

func TestGarbageCollector_Disabled(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A")
	gc := NewGarbageCollector(store, GCConfig{Enabled: false}, discardLogger(), nil)

	report, err := gc.Collect(context.Background(), StaticRetention())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !report.Skipped || report.Reason != SkipDisabled {
		t.Errorf("report = %+v, want disabled skip", report)
	}
	if len(store.sessions()) != 1 {
		t.Error("disabled GC should not delete")
	}
}

func TestGarbageCollector_FailureDoesNotStopSiblings(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A", "B", "C")
	store.failFor["B"] = domain.ErrStorageIO.WithDetails("locked")
	metrics := &recordingMetrics{}
	gc := NewGarbageCollector(store, GCConfig{Enabled: true}, discardLogger(), metrics)

	report, err := gc.Collect(context.Background(), StaticRetention())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !slices.Equal(report.Removed, []string{"A", "C"}) {
		t.Errorf("Removed = %v, want [A C]", report.Removed)
	}
	if len(report.Failed) != 1 || report.Failed[0].SessionID != "B" {
		t.Errorf("Failed = %v, want B", report.Failed)
	}
	if !slices.Equal(metrics.gcResults, []string{metric.GCResultPartial}) || metrics.failed != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestGarbageCollector_ListError(t *testing.T) {
	store := newMemStore()
	store.listErr = domain.ErrStorageIO.WithDetails("unreadable")
	gc := NewGarbageCollector(store, GCConfig{Enabled: true}, discardLogger(), nil)

	_, err := gc.Collect(context.Background(), StaticRetention())
	if !errors.Is(err, domain.ErrStorageIO) {
		t.Errorf("Collect() error = %v, want ErrStorageIO", err)
	}
}

func TestGarbageCollector_Throttle(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A")
	gc := NewGarbageCollector(store, GCConfig{Enabled: true, MinInterval: time.Hour}, discardLogger(), nil)

	first, err := gc.Collect(context.Background(), StaticRetention("A"))
	if err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}
	if first.Skipped {
		t.Fatal("first pass should run")
	}

	seedSessions(t, store, "B")
	second, err := gc.Collect(context.Background(), StaticRetention("A"))
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if !second.Skipped || second.Reason != SkipThrottled {
		t.Errorf("second pass = %+v, want throttled", second)
	}
	if len(store.sessions()) != 2 {
		t.Error("throttled pass should not delete")
	}
}

func TestGarbageCollector_UnavailableDoesNotConsumeThrottle(t *testing.T) {
	store := newMemStore()
	seedSessions(t, store, "A", "B")
	gc := NewGarbageCollector(store, GCConfig{Enabled: true, MinInterval: time.Hour}, discardLogger(), nil)

	if _, err := gc.Collect(context.Background(), UnavailableRetention()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	report, err := gc.Collect(context.Background(), StaticRetention("A"))
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if report.Skipped {
		t.Errorf("report = %+v, pass after an unavailable set should run", report)
	}
	if !slices.Equal(report.Removed, []string{"B"}) {
		t.Errorf("Removed = %v, want [B]", report.Removed)
	}
}

package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.Prometheus() == nil {
		t.Error("registry field is nil")
	}
	if r.RestoreTotal == nil || r.GCRuns == nil || r.StoreSize == nil {
		t.Error("metrics not initialized")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
}

func TestHandler(t *testing.T) {
	body := scrape(t, Handler())

	// Check for Go runtime metrics (from GoCollector)
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
}

func TestSnapshotMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordSnapshotWritten(100)
	r.RecordSnapshotWritten(50)
	r.IncSnapshotWriteError()

	body := scrape(t, r.Handler())
	for _, want := range []string{
		"timemachine_snapshots_written_total 2",
		"timemachine_snapshot_bytes_written_total 150",
		"timemachine_write_errors_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestRestoreMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRestore(OutcomeLoaded, 0.01)
	r.RecordRestore(OutcomeLoaded, 0.02)
	r.RecordRestore(OutcomeDeclined, 0)

	body := scrape(t, r.Handler())
	for _, want := range []string{
		`timemachine_restore_total{outcome="loaded"} 2`,
		`timemachine_restore_total{outcome="declined"} 1`,
		"timemachine_restore_duration_seconds_count 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestGCAndStorageMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordGCRun(GCResultCompleted, 3, 0)
	r.RecordGCRun(GCResultPartial, 1, 2)
	r.RecordGCRun(GCResultSkipped, 0, 0)
	r.SetStoreSize(2048)

	body := scrape(t, r.Handler())
	for _, want := range []string{
		`timemachine_gc_runs_total{result="completed"} 1`,
		`timemachine_gc_runs_total{result="skipped"} 1`,
		"timemachine_gc_sessions_deleted_total 4",
		"timemachine_gc_delete_failures_total 2",
		"timemachine_store_size_bytes 2048",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestRequestMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordRequest("GET", "/v1/maintenance/size", "200")
	r.ObserveRequestDuration("GET", "/v1/maintenance/size", 0.005)

	body := scrape(t, r.Handler())
	if !strings.Contains(body, `timemachine_requests_total{method="GET",route="/v1/maintenance/size",status="200"} 1`) {
		t.Error("expected timemachine_requests_total for GET size 200")
	}
	if !strings.Contains(body, "timemachine_request_duration_seconds_bucket") {
		t.Error("expected timemachine_request_duration_seconds_bucket")
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.RecordSnapshotWritten(10)
				r.RecordRestore(OutcomeLoaded, 0.001)
				r.RecordRequest("GET", "/health", "200")
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	body := scrape(t, r.Handler())
	if !strings.Contains(body, "timemachine_snapshots_written_total 1000") {
		t.Error("expected timemachine_snapshots_written_total 1000")
	}
}

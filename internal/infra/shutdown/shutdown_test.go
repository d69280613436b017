package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func newTestHandler(timeout time.Duration) *Handler {
	return NewHandler(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewHandler_DefaultTimeout(t *testing.T) {
	h := NewHandler(0, nil)
	if h.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", h.timeout, DefaultTimeout)
	}
	if h.logger == nil {
		t.Error("logger should default")
	}
}

func TestHandler_Done(t *testing.T) {
	h := newTestHandler(time.Second)

	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func TestHandler_TriggerRunsHooksInReverse(t *testing.T) {
	h := newTestHandler(time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"store", "maintenance", "http"} {
		h.OnShutdown(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	h.Trigger()
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if strings.Join(order, ",") != "http,maintenance,store" {
		t.Errorf("order = %v, want reverse registration", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Wait")
	}
}

func TestHandler_HookErrorsJoined(t *testing.T) {
	h := newTestHandler(time.Second)
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	ran := false
	h.OnShutdown("last", func(context.Context) error {
		ran = true
		return nil
	})
	h.OnShutdown("b", func(context.Context) error { return errB })
	h.OnShutdown("a", func(context.Context) error { return errA })

	h.Trigger()
	err := h.Wait(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Wait() error = %v, want both hook errors", err)
	}
	if !ran {
		t.Error("a failing hook must not stop later hooks")
	}
}

func TestHandler_HookContextHasDeadline(t *testing.T) {
	h := newTestHandler(50 * time.Millisecond)

	h.OnShutdown("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("hook context should carry a deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	h.Trigger()
	if err := h.Wait(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestHandler_WaitContextCancel(t *testing.T) {
	h := newTestHandler(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestHandler_WaitSignal(t *testing.T) {
	h := newTestHandler(time.Second)

	called := make(chan struct{})
	h.OnShutdown("hook", func(context.Context) error {
		close(called)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Give Wait time to install the signal handler.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}

	select {
	case <-called:
	default:
		t.Error("hook was not called")
	}
}

func TestHandler_TriggerTwice(t *testing.T) {
	h := newTestHandler(time.Second)
	h.Trigger()
	h.Trigger()
}

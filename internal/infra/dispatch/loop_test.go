package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestLoop_DrainRunsInOrder(t *testing.T) {
	l := NewLoop()
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Post(nil)

	if l.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", l.Pending())
	}
	if n := l.Drain(); n != 3 {
		t.Errorf("Drain = %d, want 3", n)
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("order = %v", got)
	}
	if n := l.Drain(); n != 0 {
		t.Errorf("second Drain = %d, want 0", n)
	}
}

func TestLoop_PostDuringDrainDefers(t *testing.T) {
	l := NewLoop()
	ran := 0
	l.Post(func() {
		ran++
		l.Post(func() { ran++ })
	})

	if n := l.Drain(); n != 1 {
		t.Fatalf("Drain = %d, want 1", n)
	}
	if ran != 1 {
		t.Fatalf("ran = %d after first drain", ran)
	}
	l.Drain()
	if ran != 2 {
		t.Errorf("ran = %d after second drain", ran)
	}
}

func TestLoop_Run(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(2)
	l.Post(func() {
		mu.Lock()
		got = append(got, "a")
		mu.Unlock()
		wg.Done()
	})
	l.Post(func() {
		mu.Lock()
		got = append(got, "b")
		mu.Unlock()
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("callbacks were not run")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("order = %v", got)
	}
}

func TestInline(t *testing.T) {
	ran := false
	Inline{}.Post(func() { ran = true })
	Inline{}.Post(nil)
	if !ran {
		t.Error("Inline should run the callback immediately")
	}
}

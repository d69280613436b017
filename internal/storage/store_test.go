package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, backend string) Config {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.Backend = backend
	cfg.Logger = discardLogger()
	cfg.Badger.GCInterval = time.Hour // Disable auto GC for tests
	cfg.Badger.SyncWrites = false
	return cfg
}

func openTestStore(t *testing.T, backend string) Store {
	t.Helper()
	s, err := Open(testConfig(t, backend))
	if err != nil {
		t.Fatalf("Open(%s): %v", backend, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var backends = []string{BackendFS, BackendBadger}

func TestStore_PutGetList(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			if err := s.Put(ctx, "42", 1, []byte("A")); err != nil {
				t.Fatalf("Put round 1: %v", err)
			}
			if err := s.Put(ctx, "42", 2, []byte("B")); err != nil {
				t.Fatalf("Put round 2: %v", err)
			}

			rounds, err := s.ListRounds(ctx, "42")
			if err != nil {
				t.Fatalf("ListRounds: %v", err)
			}
			if !reflect.DeepEqual(rounds, []int{1, 2}) {
				t.Errorf("ListRounds = %v, want [1 2]", rounds)
			}

			rec, err := s.Get(ctx, "42", 2)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(rec.Data) != "B" || rec.Format != domain.FormatCompressedV1 {
				t.Errorf("Get = %q (%s)", rec.Data, rec.Format)
			}

			if _, err := s.Get(ctx, "42", 3); !errors.Is(err, domain.ErrSnapshotNotFound) {
				t.Errorf("Get missing round: err = %v, want ErrSnapshotNotFound", err)
			}

			ok, err := s.Exists(ctx, "42", 1)
			if err != nil || !ok {
				t.Errorf("Exists(42,1) = %v, %v", ok, err)
			}
			ok, err = s.Exists(ctx, "42", 9)
			if err != nil || ok {
				t.Errorf("Exists(42,9) = %v, %v", ok, err)
			}
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			if err := s.Put(ctx, "7", 5, []byte("first")); err != nil {
				t.Fatal(err)
			}
			if err := s.Put(ctx, "7", 5, []byte("second")); err != nil {
				t.Fatal(err)
			}

			rec, err := s.Get(ctx, "7", 5)
			if err != nil {
				t.Fatal(err)
			}
			if string(rec.Data) != "second" {
				t.Errorf("Get = %q, want %q", rec.Data, "second")
			}
			rounds, _ := s.ListRounds(ctx, "7")
			if !reflect.DeepEqual(rounds, []int{5}) {
				t.Errorf("ListRounds = %v, want [5]", rounds)
			}
		})
	}
}

func TestStore_ListRoundsIsNumericallySorted(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			for _, r := range []int{10, 2, 33, 1, 9} {
				if err := s.Put(ctx, "s", r, []byte{byte(r)}); err != nil {
					t.Fatal(err)
				}
			}
			rounds, err := s.ListRounds(ctx, "s")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(rounds, []int{1, 2, 9, 10, 33}) {
				t.Errorf("ListRounds = %v", rounds)
			}

			empty, err := s.ListRounds(ctx, "unknown")
			if err != nil {
				t.Fatal(err)
			}
			if len(empty) != 0 {
				t.Errorf("unknown session rounds = %v, want empty", empty)
			}
		})
	}
}

func TestStore_Sessions(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			for _, id := range []string{"3", "1", "2"} {
				if err := s.Put(ctx, id, 1, []byte(id)); err != nil {
					t.Fatal(err)
				}
			}
			if err := s.Put(ctx, "1", 2, []byte("again")); err != nil {
				t.Fatal(err)
			}

			sessions, err := s.ListSessions(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(sessions, []string{"1", "2", "3"}) {
				t.Fatalf("ListSessions = %v", sessions)
			}

			if err := s.DeleteSession(ctx, "2"); err != nil {
				t.Fatalf("DeleteSession: %v", err)
			}
			sessions, _ = s.ListSessions(ctx)
			if !reflect.DeepEqual(sessions, []string{"1", "3"}) {
				t.Errorf("after delete ListSessions = %v", sessions)
			}
			rounds, _ := s.ListRounds(ctx, "2")
			if len(rounds) != 0 {
				t.Errorf("deleted session still has rounds %v", rounds)
			}

			if err := s.DeleteSession(ctx, "does-not-exist"); err != nil {
				t.Errorf("deleting an unknown session should succeed, got %v", err)
			}
		})
	}
}

func TestStore_WipeAll(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			for _, id := range []string{"a", "b"} {
				for r := 1; r <= 3; r++ {
					if err := s.Put(ctx, id, r, []byte("data")); err != nil {
						t.Fatal(err)
					}
				}
			}

			if err := s.WipeAll(ctx); err != nil {
				t.Fatalf("WipeAll: %v", err)
			}
			sessions, err := s.ListSessions(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(sessions) != 0 {
				t.Errorf("ListSessions after wipe = %v", sessions)
			}

			// Store stays usable.
			if err := s.Put(ctx, "a", 1, []byte("fresh")); err != nil {
				t.Fatalf("Put after wipe: %v", err)
			}
		})
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			ctx := context.Background()

			if err := s.Put(ctx, "0", 1, []byte("x")); !errors.Is(err, domain.ErrNoValidSession) {
				t.Errorf("sentinel session: err = %v, want ErrNoValidSession", err)
			}
			if err := s.Put(ctx, "../escape", 1, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("path session: err = %v, want ErrInvalidArgument", err)
			}
			if err := s.Put(ctx, "42", 0, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("round 0: err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(testConfig(t, backend))
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := s.Put(context.Background(), "1", 1, []byte("x")); !errors.Is(err, domain.ErrClosed) {
				t.Errorf("Put after Close: err = %v, want ErrClosed", err)
			}
		})
	}
}

func TestStore_TotalSizeBytes(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openTestStore(t, backend)
			size, err := s.TotalSizeBytes(context.Background())
			if err != nil {
				t.Fatalf("TotalSizeBytes: %v", err)
			}
			if size < 0 {
				t.Errorf("TotalSizeBytes = %d", size)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(Config{}); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("empty base dir: err = %v, want ErrMissingArgument", err)
	}

	cfg := testConfig(t, "sqlite")
	if _, err := Open(cfg); err == nil {
		t.Error("unknown backend should fail")
	}

	cfg = testConfig(t, BackendFS)
	cfg.OwnerID = "a/b"
	if _, err := Open(cfg); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("owner with separator: err = %v, want ErrInvalidArgument", err)
	}
}

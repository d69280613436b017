package localserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func socketPath(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to about 100 bytes, so t.TempDir can be
	// too deep on some systems.
	dir, err := os.MkdirTemp("", "tm")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "tm.sock")
}

func unixClient(path string) *http.Client {
	return &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", path)
			},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	path := socketPath(t)
	s := New(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok "+r.URL.Path)
	}), quietLogger())

	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	resp, err := unixClient(path).Get("http://unix/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok /health" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("socket file not removed on shutdown")
	}
}

func TestServer_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	// Closing a unix listener unlinks the file, so recreate the leftover
	// by disabling that.
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()

	s := New(path, http.NotFoundHandler(), quietLogger())
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() over stale socket error = %v", err)
	}
	s.Shutdown(context.Background())
}

func TestServer_RefusesLiveSocket(t *testing.T) {
	path := socketPath(t)

	first := New(path, http.NotFoundHandler(), quietLogger())
	if err := first.Listen(); err != nil {
		t.Fatal(err)
	}
	go first.Serve()
	defer first.Shutdown(context.Background())

	err := New(path, http.NotFoundHandler(), quietLogger()).Listen()
	if err == nil || !strings.Contains(err.Error(), "in use") {
		t.Errorf("Listen() error = %v, want in use", err)
	}
}

func TestServer_RefusesRegularFile(t *testing.T) {
	path := socketPath(t)
	os.WriteFile(path, []byte("x"), 0o644)

	err := New(path, http.NotFoundHandler(), quietLogger()).Listen()
	if err == nil || !strings.Contains(err.Error(), "not a socket") {
		t.Errorf("Listen() error = %v, want not a socket", err)
	}
}

func TestServer_ServeBeforeListen(t *testing.T) {
	if err := New(socketPath(t), http.NotFoundHandler(), nil).Serve(); err == nil {
		t.Error("Serve() before Listen should fail")
	}
}

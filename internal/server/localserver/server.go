package localserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Server serves an http.Handler on a Unix domain socket.
type Server struct {
	path    string
	srv     *http.Server
	logger  *slog.Logger
	running atomic.Bool

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new local server for the socket at path.
func New(path string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		path:   path,
		logger: logger,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Listen creates the socket. It is split from Serve so callers can report
// bind failures before serving in the background.
func (s *Server) Listen() error {
	if err := removeStale(s.path); err != nil {
		return err
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		l.Close()
		return fmt.Errorf("chmod %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Serve serves requests until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("localserver: Serve called before Listen")
	}

	s.running.Store(true)
	s.logger.Info("local socket listening", "path", s.path)

	err := s.srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) || (!s.running.Load() && errors.Is(err, net.ErrClosed)) {
		return nil
	}
	return err
}

// ListenAndServe creates the socket and serves on it.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown gracefully stops the server, waiting for active requests within
// the context deadline, then removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	s.mu.Unlock()

	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	return err
}

// removeStale deletes a socket nobody is listening on.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("localserver: %s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("localserver: %s is in use", path)
	}
	return os.Remove(path)
}

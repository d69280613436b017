package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

const (
	canonicalExt = ".tms"
	legacyExt    = ".json"
	tempExt      = ".tmp"
)

// FSStore stores one file per (session, round) under a save root:
//
//	<root>/<sessionID>/<round>.tms    canonical container
//	<root>/<sessionID>/<round>.json   legacy raw text (read-only)
type FSStore struct {
	root   string
	logger *slog.Logger
	closed atomic.Bool
}

// NewFSStore opens a filesystem store, creating the save root if needed.
//
// When cfg.OwnerID is set and the owner-scoped root does not exist yet, an
// existing unscoped root is moved into it.
func NewFSStore(cfg Config) (*FSStore, error) {
	if cfg.BaseDir == "" {
		return nil, domain.ErrMissingArgument.WithDetails("storage base_dir")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := RootDir(cfg.BaseDir, cfg.OwnerID)
	if cfg.OwnerID != "" {
		legacy := RootDir(cfg.BaseDir, "")
		moved, err := migrateRoot(legacy, root)
		if err != nil {
			logger.Warn("save root migration incomplete",
				"from", legacy,
				"to", root,
				"error", err)
		} else if moved {
			logger.Info("save root migrated", "from", legacy, "to", root)
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.ErrStorageIO.WithDetailsf("create root %s", root).WithCause(err)
	}

	logger.Info("filesystem store opened", "root", root)

	return &FSStore{
		root:   root,
		logger: logger,
	}, nil
}

// Root returns the save root directory.
func (s *FSStore) Root() string {
	return s.root
}

// Put implements Store.
func (s *FSStore) Put(ctx context.Context, sessionID string, round int, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validateKey(sessionID, round); err != nil {
		return err
	}

	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ErrStorageIO.WithDetailsf("create session dir %s", sessionID).WithCause(err)
	}

	final := s.path(sessionID, round, canonicalExt)
	if err := writeFileAtomic(dir, final, data); err != nil {
		return domain.ErrStorageIO.WithDetailsf("put %s/%d", sessionID, round).WithCause(err)
	}

	// The canonical file shadows the legacy one; drop it so listings and
	// size reports don't count the round twice.
	legacy := s.path(sessionID, round, legacyExt)
	if err := os.Remove(legacy); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove legacy snapshot",
			"session_id", sessionID,
			"round", round,
			"error", err)
	}

	s.logger.Debug("snapshot stored",
		"session_id", sessionID,
		"round", round,
		"bytes", len(data))

	return nil
}

// Get implements Store.
func (s *FSStore) Get(ctx context.Context, sessionID string, round int) (*domain.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(sessionID, round); err != nil {
		return nil, err
	}

	candidates := []struct {
		ext    string
		format domain.Format
	}{
		{canonicalExt, domain.FormatCompressedV1},
		{legacyExt, domain.FormatRawJSON},
	}
	for _, c := range candidates {
		data, err := os.ReadFile(s.path(sessionID, round, c.ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, domain.ErrStorageIO.WithDetailsf("get %s/%d", sessionID, round).WithCause(err)
		}
		return &domain.Record{
			SessionID: sessionID,
			Round:     round,
			Format:    c.format,
			Data:      data,
		}, nil
	}

	return nil, domain.ErrSnapshotNotFound.WithDetailsf("session %s round %d", sessionID, round)
}

// Exists implements Store.
func (s *FSStore) Exists(ctx context.Context, sessionID string, round int) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validateKey(sessionID, round); err != nil {
		return false, err
	}

	for _, ext := range []string{canonicalExt, legacyExt} {
		info, err := os.Stat(s.path(sessionID, round, ext))
		if err == nil && info.Mode().IsRegular() {
			return true, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, domain.ErrStorageIO.WithDetailsf("stat %s/%d", sessionID, round).WithCause(err)
		}
	}
	return false, nil
}

// ListRounds implements Store.
func (s *FSStore) ListRounds(ctx context.Context, sessionID string) ([]int, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return []int{}, nil
	}
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetailsf("list rounds %s", sessionID).WithCause(err)
	}

	rounds := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if r := parseRoundName(e.Name()); r > 0 {
			rounds = append(rounds, r)
		}
	}
	return domain.SortedUniqueRounds(rounds), nil
}

// ListSessions implements Store.
func (s *FSStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetails("list sessions").WithCause(err)
	}

	sessions := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || domain.ValidateSessionID(e.Name()) != nil {
			continue
		}
		sessions = append(sessions, e.Name())
	}
	sort.Strings(sessions)
	return sessions, nil
}

// DeleteSession implements Store.
func (s *FSStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}

	if err := removeDir(ctx, filepath.Join(s.root, sessionID)); err != nil {
		return domain.ErrStorageIO.WithDetailsf("delete session %s", sessionID).WithCause(err)
	}
	return nil
}

// WipeAll implements Store. The root is left in place, empty.
func (s *FSStore) WipeAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	err := removeDir(ctx, s.root)
	if mkErr := os.MkdirAll(s.root, 0o755); mkErr != nil {
		err = errors.Join(err, mkErr)
	}
	if err != nil {
		return domain.ErrStorageIO.WithDetails("wipe").WithCause(err)
	}

	s.logger.Info("all snapshots wiped", "root", s.root)
	return nil
}

// TotalSizeBytes implements Store.
func (s *FSStore) TotalSizeBytes(ctx context.Context) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, domain.ErrStorageIO.WithDetails("size").WithCause(err)
	}
	return total, nil
}

// Close implements Store.
func (s *FSStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *FSStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	return ctx.Err()
}

func (s *FSStore) path(sessionID string, round int, ext string) string {
	return filepath.Join(s.root, sessionID, strconv.Itoa(round)+ext)
}

// parseRoundName returns the round encoded in a snapshot file name, or 0 if
// the name is not a snapshot file.
func parseRoundName(name string) int {
	for _, ext := range []string{canonicalExt, legacyExt} {
		if strings.HasSuffix(name, ext) {
			return domain.ParseRound(strings.TrimSuffix(name, ext))
		}
	}
	return 0
}

// writeFileAtomic writes data to a temp file in dir, syncs it and renames it
// over final.
func writeFileAtomic(dir, final string, data []byte) error {
	file, err := os.CreateTemp(dir, filepath.Base(final)+".*"+tempExt)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tempPath, final); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// removeDir removes dir and everything below it. Every entry is attempted;
// failures are joined. A missing dir is not an error.
func removeDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := removeDir(ctx, path); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// migrateRoot moves the unscoped legacy root into the owner-scoped root.
// It runs only while the scoped root is absent, so a completed (or partial)
// migration is never repeated.
func migrateRoot(legacy, scoped string) (bool, error) {
	if _, err := os.Stat(scoped); err == nil {
		return false, nil
	}
	info, err := os.Stat(legacy)
	if err != nil || !info.IsDir() {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(scoped), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(legacy, scoped); err == nil {
		return true, nil
	}

	// Whole-directory rename failed; move entries one by one.
	if err := os.MkdirAll(scoped, 0o755); err != nil {
		return false, err
	}
	entries, err := os.ReadDir(legacy)
	if err != nil {
		return true, err
	}
	var errs []error
	for _, e := range entries {
		from := filepath.Join(legacy, e.Name())
		to := filepath.Join(scoped, e.Name())
		if err := os.Rename(from, to); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		os.Remove(legacy)
	}
	return true, errors.Join(errs...)
}

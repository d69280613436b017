package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

// Store persists snapshot records.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data as the canonical snapshot for (sessionID, round),
	// replacing any previous snapshot at the same key.
	Put(ctx context.Context, sessionID string, round int, data []byte) error

	// Get returns the stored record. The canonical format is preferred over
	// the legacy one. Returns domain.ErrSnapshotNotFound if neither exists.
	Get(ctx context.Context, sessionID string, round int) (*domain.Record, error)

	// Exists reports whether any snapshot exists for (sessionID, round).
	Exists(ctx context.Context, sessionID string, round int) (bool, error)

	// ListRounds returns the rounds stored for a session, ascending and
	// unique. An unknown session yields an empty list.
	ListRounds(ctx context.Context, sessionID string) ([]int, error)

	// ListSessions returns every session known to the store, sorted.
	ListSessions(ctx context.Context) ([]string, error)

	// DeleteSession removes every snapshot of a session. It is best-effort:
	// all entries are attempted and the joined failures are returned.
	DeleteSession(ctx context.Context, sessionID string) error

	// WipeAll removes every snapshot of every session, best-effort.
	WipeAll(ctx context.Context) error

	// TotalSizeBytes returns the storage footprint in bytes.
	TotalSizeBytes(ctx context.Context) (int64, error)

	// Close releases resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendBadger = "badger"
)

const (
	// RootDirName is the directory holding all saves.
	RootDirName = "TimeMachineSaves"

	// ProfilesDirName groups owner-scoped roots.
	ProfilesDirName = "profiles"
)

// Config configures a store.
type Config struct {
	// Backend selects the implementation ("fs" or "badger").
	// Default: "fs"
	Backend string

	// BaseDir is the directory under which the save root is created.
	BaseDir string

	// OwnerID optionally scopes the save root to one player profile.
	OwnerID string

	// Badger-specific configuration
	Badger BadgerConfig

	// Logger is the structured logger.
	Logger *slog.Logger

	// Registry receives backend gauges when set.
	Registry *prometheus.Registry
}

// BadgerConfig contains Badger-specific tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio that triggers a value log rewrite.
	// Default: 0.5
	GCThreshold float64

	// SyncWrites enables fsync after each write.
	// Default: true
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		SyncWrites:  true,
	}
}

// DefaultConfig returns the default store configuration rooted at baseDir.
func DefaultConfig(baseDir string) Config {
	return Config{
		Backend: BackendFS,
		BaseDir: baseDir,
		Badger:  DefaultBadgerConfig(),
		Logger:  slog.Default(),
	}
}

// RootDir returns the save root for an owner. An empty owner yields the
// legacy unscoped root.
func RootDir(baseDir, ownerID string) string {
	if ownerID == "" {
		return filepath.Join(baseDir, RootDirName)
	}
	return filepath.Join(baseDir, ProfilesDirName, ownerID, RootDirName)
}

// Open creates the store selected by cfg.Backend.
func Open(cfg Config) (Store, error) {
	if cfg.BaseDir == "" {
		return nil, domain.ErrMissingArgument.WithDetails("storage base_dir")
	}
	if cfg.OwnerID != "" {
		if err := domain.ValidateSessionID(cfg.OwnerID); err != nil {
			return nil, domain.ErrInvalidArgument.WithDetailsf("owner id %q", cfg.OwnerID)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Backend {
	case "", BackendFS:
		s, err := NewFSStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBadger:
		s, err := NewBadgerStore(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Registry != nil {
			s.RegisterMetrics(cfg.Registry)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}

func validateKey(sessionID string, round int) error {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}
	return domain.ValidateRound(round)
}

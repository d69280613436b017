package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/storage"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
)

// maxSocketPath is the portable limit on Unix socket path length.
const maxSocketPath = 104

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyGC(&cfg.GC); err != nil {
		return err
	}
	if err := verifyRestore(&cfg.Restore); err != nil {
		return err
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case storage.BackendFS, storage.BackendBadger:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", storage.BackendFS, storage.BackendBadger, cfg.Backend)
	}

	if cfg.BaseDir == "" {
		return errors.New("storage.base_dir is required")
	}
	if info, err := os.Stat(cfg.BaseDir); err == nil && !info.IsDir() {
		return fmt.Errorf("storage.base_dir %s is not a directory", cfg.BaseDir)
	}

	if cfg.OwnerID != "" {
		if err := domain.ValidateSessionID(cfg.OwnerID); err != nil {
			return fmt.Errorf("storage.owner_id: %w", err)
		}
	}

	if cfg.Backend == storage.BackendBadger {
		if cfg.Badger.GCInterval <= 0 {
			return errors.New("storage.badger.gc_interval must be positive")
		}
		if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
			return errors.New("storage.badger.gc_threshold must be between 0 and 1")
		}
	}
	return nil
}

func verifyGC(cfg *GCSection) error {
	if cfg.MinInterval < 0 {
		return errors.New("gc.min_interval must not be negative")
	}
	return nil
}

func verifyRestore(cfg *RestoreSection) error {
	for i, m := range cfg.AllowedModes {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("restore.allowed_modes[%d] is blank", i)
		}
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if cfg.HTTP.ShutdownTimeout < 0 {
		return errors.New("server.http.shutdown_timeout must not be negative")
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if cfg.Local.Socket != "" && len(cfg.Local.Socket) > maxSocketPath {
		return fmt.Errorf("server.local.socket is longer than %d bytes", maxSocketPath)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/doombubbles/time-machine/internal/storage"
)

// Default configuration values.
const (
	DefaultBackend = storage.BackendFS

	DefaultBadgerGCInterval  = 10 * time.Minute
	DefaultBadgerGCThreshold = 0.5

	DefaultGCMinInterval = time.Minute

	DefaultHTTPAddr            = "127.0.0.1:5090"
	DefaultHTTPReadTimeout     = 10 * time.Second
	DefaultHTTPWriteTimeout    = 30 * time.Second
	DefaultHTTPShutdownTimeout = 10 * time.Second
	DefaultHTTPRateLimit       = 200

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultBaseDir is the per-user directory holding the save root.
func DefaultBaseDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "time-machine")
	}
	return ".time-machine"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Backend: DefaultBackend,
			BaseDir: DefaultBaseDir(),
			Badger: BadgerSection{
				GCInterval:  DefaultBadgerGCInterval,
				GCThreshold: DefaultBadgerGCThreshold,
				SyncWrites:  true,
			},
		},
		GC: GCSection{
			Enabled:     true,
			MinInterval: DefaultGCMinInterval,
		},
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultHTTPReadTimeout,
				WriteTimeout:    DefaultHTTPWriteTimeout,
				ShutdownTimeout: DefaultHTTPShutdownTimeout,
				RateLimit:       DefaultHTTPRateLimit,
				Audit:           true,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

package config

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doombubbles/time-machine/internal/core/service"
	"github.com/doombubbles/time-machine/internal/server/httpserver"
	"github.com/doombubbles/time-machine/internal/storage"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
)

// ToStoreConfig converts the storage section to storage.Config.
// A nil registry disables badger metrics.
func ToStoreConfig(cfg *Config, log *slog.Logger, registry *prometheus.Registry) storage.Config {
	return storage.Config{
		Backend: cfg.Storage.Backend,
		BaseDir: cfg.Storage.BaseDir,
		OwnerID: cfg.Storage.OwnerID,
		Badger: storage.BadgerConfig{
			GCInterval:  cfg.Storage.Badger.GCInterval,
			GCThreshold: cfg.Storage.Badger.GCThreshold,
			SyncWrites:  cfg.Storage.Badger.SyncWrites,
		},
		Logger:   log,
		Registry: registry,
	}
}

// ToGCConfig converts the gc section to service.GCConfig.
func ToGCConfig(cfg *Config) service.GCConfig {
	return service.GCConfig{
		Enabled:     cfg.GC.Enabled,
		MinInterval: cfg.GC.MinInterval,
	}
}

// ToVersionPolicy converts the restore section to a service.VersionPolicy.
func ToVersionPolicy(cfg *Config) service.VersionPolicy {
	return service.VersionPolicy{
		HostVersion:  cfg.Restore.HostVersion,
		AllowedModes: append([]string(nil), cfg.Restore.AllowedModes...),
	}
}

// ToLoggerConfig converts the log section to logger.Config.
func ToLoggerConfig(cfg *Config) logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Format = cfg.Log.Format
	return lc
}

// ToHTTPConfig converts the server section to httpserver.Config.
func ToHTTPConfig(cfg *Config) httpserver.Config {
	return httpserver.Config{
		Addr:         cfg.Server.HTTP.Addr,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}
}

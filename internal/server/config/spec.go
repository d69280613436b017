// Package config defines the configuration structure shared by the
// timemachine CLI and the timemachined daemon.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Storage StorageSection `koanf:"storage" yaml:"storage"`
	GC      GCSection      `koanf:"gc" yaml:"gc"`
	Restore RestoreSection `koanf:"restore" yaml:"restore"`
	Server  ServerSection  `koanf:"server" yaml:"server"`
	Log     LogSection     `koanf:"log" yaml:"log"`
}

// StorageSection configures the snapshot store.
type StorageSection struct {
	// Backend selects the store implementation: "fs" or "badger".
	Backend string `koanf:"backend" yaml:"backend"`

	// BaseDir is the directory under which the save root lives.
	BaseDir string `koanf:"base_dir" yaml:"base_dir"`

	// OwnerID scopes saves to one player profile. Empty means unscoped.
	OwnerID string `koanf:"owner_id" yaml:"owner_id"`

	Badger BadgerSection `koanf:"badger" yaml:"badger"`
}

// BadgerSection configures the badger backend.
type BadgerSection struct {
	GCInterval  time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold" yaml:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes" yaml:"sync_writes"`
}

// GCSection configures stale-session garbage collection.
type GCSection struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`

	// MinInterval is the minimum time between passes. Zero disables
	// throttling.
	MinInterval time.Duration `koanf:"min_interval" yaml:"min_interval"`
}

// RestoreSection configures the compatibility check applied before a
// snapshot is loaded.
type RestoreSection struct {
	// HostVersion is the running host version. Snapshots recorded under a
	// different version are rejected. Empty accepts every version.
	HostVersion string `koanf:"host_version" yaml:"host_version"`

	// AllowedModes lists the game modes that may be restored. Empty allows
	// every mode.
	AllowedModes []string `koanf:"allowed_modes" yaml:"allowed_modes"`
}

// ServerSection configures daemon endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http" yaml:"http"`
	Local LocalConfig `koanf:"local" yaml:"local"`
}

// LocalConfig configures the Unix socket bridge.
type LocalConfig struct {
	// Socket is the socket path. Empty disables the socket.
	Socket string `koanf:"socket" yaml:"socket"`
}

// HTTPConfig configures the loopback HTTP bridge.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`

	// RateLimit is the global request rate in requests/second. Zero
	// disables limiting.
	RateLimit int `koanf:"rate_limit" yaml:"rate_limit"`

	// Audit logs every completed request.
	Audit bool `koanf:"audit" yaml:"audit"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

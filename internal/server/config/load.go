package config

import (
	"github.com/doombubbles/time-machine/internal/infra/confloader"
)

// Load reads the configuration from path (optional), the environment and
// overrides, on top of Default, and verifies the result. Override keys are
// dotted koanf paths such as "storage.base_dir".
//
// The returned Loader can be passed to Reload later.
func Load(path string, overrides map[string]any) (*Config, *confloader.Loader, error) {
	l := confloader.NewLoader(confloader.WithConfigFile(path))

	cfg, err := apply(l, l.Load, overrides)
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}

// Reload re-reads every source of l and verifies the result.
func Reload(l *confloader.Loader, overrides map[string]any) (*Config, error) {
	return apply(l, l.Reload, overrides)
}

func apply(l *confloader.Loader, read func(any) error, overrides map[string]any) (*Config, error) {
	cfg := Default()
	if err := read(cfg); err != nil {
		return nil, err
	}

	if len(overrides) > 0 {
		if err := l.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := l.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

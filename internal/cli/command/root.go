package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/cli/output"
	"github.com/doombubbles/time-machine/internal/core/service"
	"github.com/doombubbles/time-machine/internal/infra/buildinfo"
	"github.com/doombubbles/time-machine/internal/infra/dispatch"
	"github.com/doombubbles/time-machine/internal/server/config"
	"github.com/doombubbles/time-machine/internal/storage"
	"github.com/doombubbles/time-machine/internal/storage/codec"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
)

const envKey = "env"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "timemachine",
		Usage:   "Inspect and manage time machine saves",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionCommand(),
			SnapshotCommand(),
			TimelineCommand(),
			StorageCommand(),
			ConfigCommand(),
			DaemonCommand(),
		},
		Before: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]any{}
			}
			c.App.Metadata[envKey] = e
			return nil
		},
		After: func(c *cli.Context) error {
			if e, ok := c.App.Metadata[envKey].(*env); ok {
				return e.close()
			}
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"TIMEMACHINE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "base-dir",
			Usage: "Directory holding the save root (overrides storage.base_dir)",
		},
		&cli.StringFlag{
			Name:  "owner",
			Usage: "Player profile the saves belong to (overrides storage.owner_id)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: fs, badger (overrides storage.backend)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Config  string
	BaseDir string
	Owner   string
	Backend string
	Output  string
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:  c.String("config"),
		BaseDir: c.String("base-dir"),
		Owner:   c.String("owner"),
		Backend: c.String("backend"),
		Output:  c.String("output"),
		Verbose: c.Bool("verbose"),
	}
}

// overrides maps the storage flags onto configuration keys.
func (f *GlobalFlags) overrides() map[string]any {
	m := map[string]any{}
	if f.BaseDir != "" {
		m["storage.base_dir"] = f.BaseDir
	}
	if f.Owner != "" {
		m["storage.owner_id"] = f.Owner
	}
	if f.Backend != "" {
		m["storage.backend"] = f.Backend
	}
	return m
}

// env holds the configuration and the lazily opened services of one
// invocation.
type env struct {
	flags  *GlobalFlags
	cfg    *config.Config
	logger *slog.Logger

	store       storage.Store
	codec       *codec.Codec
	restore     *service.RestoreService
	gc          *service.GarbageCollector
	lifecycle   *service.Lifecycle
	maintenance *service.Maintenance
}

func newEnv(c *cli.Context) (*env, error) {
	flags := ParseGlobalFlags(c)
	if _, err := output.ParseFormat(flags.Output); err != nil {
		return nil, err
	}

	level := "warn"
	if flags.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:  level,
		Format: "text",
		Output: errWriter(c),
	})
	if err != nil {
		return nil, err
	}

	cfg, _, err := config.Load(flags.Config, flags.overrides())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &env{flags: flags, cfg: cfg, logger: log.Slog()}, nil
}

// open opens the store and builds the services on first use.
func (e *env) open() error {
	if e.store != nil {
		return nil
	}

	store, err := storage.Open(config.ToStoreConfig(e.cfg, e.logger, nil))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	cdc, err := codec.New()
	if err != nil {
		store.Close()
		return fmt.Errorf("create codec: %w", err)
	}

	notifier := service.NotifierFunc(func(_ context.Context, message string) {
		e.logger.Warn(message)
	})

	e.store = store
	e.codec = cdc
	e.restore = service.NewRestoreService(service.RestoreDeps{
		Store:         store,
		Codec:         cdc,
		Compatibility: config.ToVersionPolicy(e.cfg),
		Notifier:      notifier,
		Logger:        e.logger,
	})
	e.gc = service.NewGarbageCollector(store, config.ToGCConfig(e.cfg), e.logger, nil)
	e.maintenance = service.NewMaintenance(store, e.gc, dispatch.Inline{}, e.logger, nil)
	e.lifecycle = service.NewLifecycle(service.LifecycleDeps{
		Store:       store,
		Codec:       cdc,
		Restore:     e.restore,
		GC:          e.gc,
		Maintenance: e.maintenance,
		Notifier:    notifier,
		Logger:      e.logger,
	})
	return nil
}

func (e *env) close() error {
	if e.store == nil {
		return nil
	}
	var errs []error
	errs = append(errs, e.maintenance.Close())
	errs = append(errs, e.codec.Close())
	errs = append(errs, e.store.Close())
	e.store = nil
	return errors.Join(errs...)
}

// getEnv returns the invocation environment set up by App.Before.
func getEnv(c *cli.Context) (*env, error) {
	e, ok := c.App.Metadata[envKey].(*env)
	if !ok {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// openEnv returns the invocation environment with the store opened.
func openEnv(c *cli.Context) (*env, error) {
	e, err := getEnv(c)
	if err != nil {
		return nil, err
	}
	if err := e.open(); err != nil {
		return nil, err
	}
	return e, nil
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return c.App.Writer
}

// PrintError prints an error message to w.
func PrintError(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "error: "+format+"\n", args...)
}

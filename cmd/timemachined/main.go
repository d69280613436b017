// Package main provides the entry point for timemachined.
//
// timemachined hosts the time machine services for a game host that talks
// to it over a loopback HTTP bridge or a Unix socket. It stores a snapshot
// at the end of every round, serves timelines and restorations, and runs
// storage maintenance in the background.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/doombubbles/time-machine/internal/core/service"
	"github.com/doombubbles/time-machine/internal/infra/buildinfo"
	"github.com/doombubbles/time-machine/internal/infra/confloader"
	"github.com/doombubbles/time-machine/internal/infra/dispatch"
	"github.com/doombubbles/time-machine/internal/infra/shutdown"
	"github.com/doombubbles/time-machine/internal/server/config"
	"github.com/doombubbles/time-machine/internal/server/httpserver"
	"github.com/doombubbles/time-machine/internal/server/httpserver/handler"
	"github.com/doombubbles/time-machine/internal/server/localserver"
	"github.com/doombubbles/time-machine/internal/storage"
	"github.com/doombubbles/time-machine/internal/storage/codec"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
	"github.com/doombubbles/time-machine/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("timemachined %s\n", buildinfo.String())
		return nil
	}

	cfg, loader, err := config.Load(*configFile, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lc := config.ToLoggerConfig(cfg)
	lc.Output = os.Stdout
	log, err := logger.New(lc)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogger := log.Slog()

	info := buildinfo.Get()
	slogger.Info("starting timemachined",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"storage", config.Sanitize(cfg).Storage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metric.NewRegistry()

	store, err := storage.Open(config.ToStoreConfig(cfg, slogger, reg.Prometheus()))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	cdc, err := codec.New()
	if err != nil {
		store.Close()
		return fmt.Errorf("init codec: %w", err)
	}

	loop := dispatch.NewLoop()
	go loop.Run(ctx)

	svc := initServices(cfg, store, cdc, loop, reg, slogger)
	maintenance := svc.maintenance

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Deps: handler.Deps{
			Store:       store,
			Codec:       cdc,
			Lifecycle:   svc.lifecycle,
			Restore:     svc.restore,
			Maintenance: maintenance,
			Metrics:     reg,
			Registry:    reg,
			Logger:      slogger,
		},
		Metrics:     reg,
		Logger:      slogger,
		RateLimit:   cfg.Server.HTTP.RateLimit,
		EnableAudit: cfg.Server.HTTP.Audit,
	})
	httpSrv := httpserver.New(config.ToHTTPConfig(cfg), router)

	var local *localserver.Server
	if cfg.Server.Local.Socket != "" {
		local = localserver.New(cfg.Server.Local.Socket, router, slogger)
		if err := local.Listen(); err != nil {
			maintenance.Close()
			cdc.Close()
			store.Close()
			return fmt.Errorf("local socket: %w", err)
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTP.Addr)
	if err != nil {
		maintenance.Close()
		cdc.Close()
		store.Close()
		return fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}

	sh := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, slogger)

	// Hooks run in reverse order: stop serving first, close storage last.
	sh.OnShutdown("storage", func(context.Context) error {
		return errors.Join(cdc.Close(), store.Close())
	})
	sh.OnShutdown("dispatch", func(context.Context) error {
		cancel()
		return nil
	})
	sh.OnShutdown("maintenance", func(context.Context) error {
		return maintenance.Close()
	})
	if local != nil {
		sh.OnShutdown("local socket", local.Shutdown)
	}
	sh.OnShutdown("http", httpSrv.Shutdown)

	if *configFile != "" {
		if w, err := watchConfig(ctx, *configFile, loader, slogger); err != nil {
			slogger.Warn("config hot reload disabled", "error", err)
		} else {
			sh.OnShutdown("config watcher", func(context.Context) error { return w.Close() })
		}
	}

	go func() {
		slogger.Info("HTTP bridge listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil {
			slogger.Error("HTTP server error", "error", err)
			sh.Trigger()
		}
	}()
	if local != nil {
		go func() {
			if err := local.Serve(); err != nil {
				slogger.Error("local socket error", "error", err)
				sh.Trigger()
			}
		}()
	}

	// Prime the size gauge.
	_ = maintenance.CalcSize(nil)

	if err := sh.Wait(ctx); err != nil {
		slogger.Error("shutdown error", "error", err)
		return err
	}

	slogger.Info("timemachined stopped")
	return nil
}

type services struct {
	restore     *service.RestoreService
	gc          *service.GarbageCollector
	maintenance *service.Maintenance
	lifecycle   *service.Lifecycle
}

func initServices(cfg *config.Config, store storage.Store, cdc *codec.Codec, dispatcher service.Dispatcher, reg *metric.Registry, log *slog.Logger) *services {
	restore := service.NewRestoreService(service.RestoreDeps{
		Store:         store,
		Codec:         cdc,
		Compatibility: config.ToVersionPolicy(cfg),
		Metrics:       reg,
		Logger:        log,
	})
	gc := service.NewGarbageCollector(store, config.ToGCConfig(cfg), log, reg)
	maintenance := service.NewMaintenance(store, gc, dispatcher, log, reg)
	lifecycle := service.NewLifecycle(service.LifecycleDeps{
		Store:       store,
		Codec:       cdc,
		Restore:     restore,
		GC:          gc,
		Maintenance: maintenance,
		Metrics:     reg,
		Logger:      log,
	})

	log.Info("services initialized",
		"backend", cfg.Storage.Backend,
		"gc_enabled", cfg.GC.Enabled,
		"host_version", cfg.Restore.HostVersion)

	return &services{restore: restore, gc: gc, maintenance: maintenance, lifecycle: lifecycle}
}

// watchConfig reloads the configuration when the file changes. Only the log
// level takes effect without a restart.
func watchConfig(ctx context.Context, path string, loader *confloader.Loader, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Close()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := config.Reload(loader, nil)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("configuration reloaded", "log_level", cfg.Log.Level)
	})
	go w.Run(ctx)
	return w, nil
}

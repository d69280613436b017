package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

// keyPrefix namespaces snapshot keys:
//
//	snap/<sessionID>/<round %010d>/<format>
//
// Zero-padded rounds make lexical key order match numeric round order.
const keyPrefix = "snap/"

// BadgerStore implements Store on an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	dir    string
	logger *slog.Logger
	closed atomic.Bool

	// Metrics (internal counters)
	lastGCTime atomic.Int64 // Unix milliseconds
	gcRewrites atomic.Uint64

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRewrites   prometheus.Counter

	// Shutdown
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// BadgerDir returns the database directory for an owner.
func BadgerDir(baseDir, ownerID string) string {
	root := RootDir(baseDir, ownerID)
	return filepath.Join(filepath.Dir(root), RootDirName+".badger")
}

// NewBadgerStore opens a Badger-backed store under cfg.BaseDir.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	if cfg.BaseDir == "" {
		return nil, domain.ErrMissingArgument.WithDetails("storage base_dir")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	badgerCfg := cfg.Badger
	if badgerCfg.GCInterval <= 0 {
		badgerCfg.GCInterval = DefaultBadgerConfig().GCInterval
	}
	if badgerCfg.GCThreshold <= 0 || badgerCfg.GCThreshold >= 1 {
		badgerCfg.GCThreshold = DefaultBadgerConfig().GCThreshold
	}

	dir := BadgerDir(cfg.BaseDir, cfg.OwnerID)
	opts := badger.DefaultOptions(dir).
		WithLogger(&badgerLogger{logger: logger}).
		WithSyncWrites(badgerCfg.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetailsf("open badger %s", dir).WithCause(err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    badgerCfg,
		dir:    dir,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.gcLoop()

	logger.Info("badger store opened",
		"dir", dir,
		"gc_interval", badgerCfg.GCInterval)

	return s, nil
}

// Dir returns the database directory.
func (s *BadgerStore) Dir() string {
	return s.dir
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, sessionID string, round int, data []byte) error {
	return s.put(ctx, sessionID, round, domain.FormatCompressedV1, data)
}

func (s *BadgerStore) put(ctx context.Context, sessionID string, round int, format domain.Format, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := validateKey(sessionID, round); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(sessionID, round, format), data); err != nil {
			return err
		}
		if format == domain.FormatCompressedV1 {
			return txn.Delete(recordKey(sessionID, round, domain.FormatRawJSON))
		}
		return nil
	})
	if err != nil {
		return domain.ErrStorageIO.WithDetailsf("put %s/%d", sessionID, round).WithCause(err)
	}
	return nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, sessionID string, round int) (*domain.Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := validateKey(sessionID, round); err != nil {
		return nil, err
	}

	var rec *domain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		for _, format := range []domain.Format{domain.FormatCompressedV1, domain.FormatRawJSON} {
			item, err := txn.Get(recordKey(sessionID, round, format))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec = &domain.Record{
				SessionID: sessionID,
				Round:     round,
				Format:    format,
				Data:      data,
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetailsf("get %s/%d", sessionID, round).WithCause(err)
	}
	if rec == nil {
		return nil, domain.ErrSnapshotNotFound.WithDetailsf("session %s round %d", sessionID, round)
	}
	return rec, nil
}

// Exists implements Store.
func (s *BadgerStore) Exists(ctx context.Context, sessionID string, round int) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := validateKey(sessionID, round); err != nil {
		return false, err
	}

	found := false
	prefix := []byte(roundPrefix(sessionID, round))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	if err != nil {
		return false, domain.ErrStorageIO.WithDetailsf("exists %s/%d", sessionID, round).WithCause(err)
	}
	return found, nil
}

// ListRounds implements Store.
func (s *BadgerStore) ListRounds(ctx context.Context, sessionID string) ([]int, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	var rounds []int
	prefix := sessionPrefix(sessionID)
	err := s.scanKeys(ctx, []byte(prefix), func(key string) {
		rest := strings.TrimPrefix(key, prefix)
		roundPart, _, ok := strings.Cut(rest, "/")
		if !ok {
			return
		}
		if r := domain.ParseRound(roundPart); r > 0 {
			rounds = append(rounds, r)
		}
	})
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetailsf("list rounds %s", sessionID).WithCause(err)
	}
	return domain.SortedUniqueRounds(rounds), nil
}

// ListSessions implements Store.
func (s *BadgerStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	sessions := []string{}
	err := s.scanKeys(ctx, []byte(keyPrefix), func(key string) {
		id, _, ok := strings.Cut(strings.TrimPrefix(key, keyPrefix), "/")
		if !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		sessions = append(sessions, id)
	})
	if err != nil {
		return nil, domain.ErrStorageIO.WithDetails("list sessions").WithCause(err)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// DeleteSession implements Store.
func (s *BadgerStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return err
	}

	if err := s.db.DropPrefix([]byte(sessionPrefix(sessionID))); err != nil {
		return domain.ErrStorageIO.WithDetailsf("delete session %s", sessionID).WithCause(err)
	}
	return nil
}

// WipeAll implements Store.
func (s *BadgerStore) WipeAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	if err := s.db.DropAll(); err != nil {
		return domain.ErrStorageIO.WithDetails("wipe").WithCause(err)
	}
	s.logger.Info("all snapshots wiped", "dir", s.dir)
	return nil
}

// TotalSizeBytes implements Store. Badger refreshes its size figures
// periodically, so the value may trail recent writes.
func (s *BadgerStore) TotalSizeBytes(ctx context.Context) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

// GC runs value log garbage collection until nothing more can be rewritten.
// Returns the number of value log files rewritten.
func (s *BadgerStore) GC(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	startTime := time.Now()

	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return rewrites, err
		}
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return rewrites, fmt.Errorf("badger gc: %w", err)
		}
		rewrites++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRewrites.Add(uint64(rewrites))
	if s.metricsGCRewrites != nil {
		s.metricsGCRewrites.Add(float64(rewrites))
		s.metricsLastGCTime.Set(float64(time.Now().Unix()))
	}

	s.logger.Debug("badger gc completed",
		"rewrites", rewrites,
		"elapsed", time.Since(startTime))

	return rewrites, nil
}

// Close stops background loops and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		s.wg.Wait()

		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("close badger: %w", cerr)
			return
		}
		s.logger.Info("badger store closed")
	})
	return err
}

// RegisterMetrics registers Badger gauges with Prometheus and starts the
// updater. It should be called once per store.
func (s *BadgerStore) RegisterMetrics(registry *prometheus.Registry) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timemachine",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})

	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timemachine",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})

	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "timemachine",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last value log GC run",
	})

	s.metricsGCRewrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "timemachine",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by garbage collection",
	})

	registry.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsLastGCTime,
		s.metricsGCRewrites,
	)

	s.updateMetrics()

	s.wg.Add(1)
	go s.metricsUpdateLoop()

	return s
}

func (s *BadgerStore) updateMetrics() {
	lsm, vlog := s.db.Size()
	s.metricsLSMSize.Set(float64(lsm))
	s.metricsValueLogSize.Set(float64(vlog))
}

// metricsUpdateLoop periodically refreshes size gauges.
func (s *BadgerStore) metricsUpdateLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// gcLoop runs periodic value log garbage collection.
func (s *BadgerStore) gcLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil && !errors.Is(err, domain.ErrClosed) {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// scanKeys calls fn for every key under prefix, in key order.
func (s *BadgerStore) scanKeys(ctx context.Context, prefix []byte, fn func(key string)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(string(it.Item().Key()))
		}
		return nil
	})
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	return ctx.Err()
}

func sessionPrefix(sessionID string) string {
	return keyPrefix + sessionID + "/"
}

func roundPrefix(sessionID string, round int) string {
	return fmt.Sprintf("%s%010d/", sessionPrefix(sessionID), round)
}

func recordKey(sessionID string, round int, format domain.Format) []byte {
	return []byte(roundPrefix(sessionID, round) + string(format))
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

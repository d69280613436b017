package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/telemetry/metric"
)

// Compatibility decides whether a decoded snapshot can be loaded by the
// running host.
type Compatibility interface {
	Check(snap *domain.Snapshot) error
}

// VersionPolicy is the default Compatibility check.
//
// A snapshot's host_version must match HostVersion when both are set, and
// its mode must be listed in AllowedModes when the list is non-empty.
// Snapshots without metadata (legacy saves) always pass.
type VersionPolicy struct {
	HostVersion  string
	AllowedModes []string
}

// Check implements Compatibility.
func (p VersionPolicy) Check(snap *domain.Snapshot) error {
	if v := snap.MetaValue(domain.MetaHostVersion); v != "" && p.HostVersion != "" && v != p.HostVersion {
		return domain.ErrIncompatibleVersion.WithDetailsf("saved on %s, running %s", v, p.HostVersion)
	}
	if m := snap.MetaValue(domain.MetaMode); m != "" && len(p.AllowedModes) > 0 && !slices.Contains(p.AllowedModes, m) {
		return domain.ErrIncompatibleVersion.WithDetailsf("mode %q is not allowed", m)
	}
	return nil
}

// ApplyFunc loads a snapshot into the host's live state.
type ApplyFunc func(ctx context.Context, snap *domain.Snapshot) error

// RestartFunc restarts the session from its beginning.
type RestartFunc func(ctx context.Context) error

// Restoration is a prepared restore waiting to be applied.
type Restoration struct {
	// ID identifies the restoration in logs and responses.
	ID string `json:"id"`

	SessionID string `json:"session_id"`
	Round     int    `json:"round"`

	// Restart is set when the session should start over instead of loading
	// a snapshot.
	Restart bool `json:"restart"`

	// Snapshot is the decoded snapshot to load. Nil when Restart is set.
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`

	elapsed time.Duration
	metrics Metrics
	logger  *slog.Logger
	once    sync.Once
	err     error
}

// Apply hands the prepared snapshot to apply, or calls restart for a
// restart restoration. Only the first call has any effect; later calls
// return the first call's result.
func (r *Restoration) Apply(ctx context.Context, apply ApplyFunc, restart RestartFunc) error {
	r.once.Do(func() {
		r.err = r.apply(ctx, apply, restart)
	})
	return r.err
}

func (r *Restoration) apply(ctx context.Context, apply ApplyFunc, restart RestartFunc) error {
	metrics := orNopMetrics(r.metrics)
	logger := orDefaultLogger(r.logger)

	if r.Restart {
		if restart == nil {
			metrics.RecordRestore(metric.OutcomeError, 0)
			return domain.ErrMissingArgument.WithDetails("restart callback")
		}
		if err := restart(ctx); err != nil {
			metrics.RecordRestore(metric.OutcomeError, 0)
			return fmt.Errorf("restart session %s: %w", r.SessionID, err)
		}
		logger.Info("session restarted", "session_id", r.SessionID, "restoration_id", r.ID)
		metrics.RecordRestore(metric.OutcomeRestarted, r.elapsed.Seconds())
		return nil
	}

	if apply == nil {
		metrics.RecordRestore(metric.OutcomeError, 0)
		return domain.ErrMissingArgument.WithDetails("apply callback")
	}
	if err := apply(ctx, r.Snapshot); err != nil {
		metrics.RecordRestore(metric.OutcomeError, 0)
		return fmt.Errorf("apply snapshot %s/%d: %w", r.SessionID, r.Round, err)
	}

	logger.Info("snapshot loaded",
		"session_id", r.SessionID,
		"round", r.Round,
		"restoration_id", r.ID)
	metrics.RecordRestore(metric.OutcomeLoaded, r.elapsed.Seconds())
	return nil
}

// RestoreDeps holds the collaborators of a RestoreService.
type RestoreDeps struct {
	Store         SnapshotStore
	Codec         SnapshotCodec
	Compatibility Compatibility
	Notifier      Notifier
	Metrics       Metrics
	Logger        *slog.Logger
}

// RestoreService fetches, decodes and checks snapshots for loading.
// It never touches live host state; the caller's ApplyFunc does.
type RestoreService struct {
	store   SnapshotStore
	codec   SnapshotCodec
	compat  Compatibility
	notify  Notifier
	metrics Metrics
	logger  *slog.Logger
}

// NewRestoreService creates a RestoreService.
func NewRestoreService(deps RestoreDeps) *RestoreService {
	logger := orDefaultLogger(deps.Logger)
	compat := deps.Compatibility
	if compat == nil {
		compat = VersionPolicy{}
	}
	return &RestoreService{
		store:   deps.Store,
		codec:   deps.Codec,
		compat:  compat,
		notify:  orLogNotifier(deps.Notifier, logger),
		metrics: orNopMetrics(deps.Metrics),
		logger:  logger,
	}
}

// Prepare resolves the snapshot for (sessionID, round).
//
// Round 1 and below restart the session unless a round-1 snapshot exists.
// Missing, corrupt and incompatible snapshots are reported to the notifier
// and returned as errors; no restoration is produced for them.
func (s *RestoreService) Prepare(ctx context.Context, sessionID string, round int) (*Restoration, error) {
	start := time.Now()

	if err := domain.ValidateSessionID(sessionID); err != nil {
		s.metrics.RecordRestore(metric.OutcomeError, 0)
		return nil, err
	}

	r := &Restoration{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Round:     round,
		metrics:   s.metrics,
		logger:    s.logger,
	}

	if round <= 1 {
		r.Round = 1
		ok, err := s.store.Exists(ctx, sessionID, 1)
		if err != nil {
			return nil, s.fail(ctx, metric.OutcomeError, err, "")
		}
		if !ok {
			r.Restart = true
			r.elapsed = time.Since(start)
			return r, nil
		}
	}

	rec, err := s.store.Get(ctx, sessionID, r.Round)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, s.fail(ctx, metric.OutcomeNotFound, err,
				fmt.Sprintf("No Time Machine data for %s/%d", sessionID, r.Round))
		}
		return nil, s.fail(ctx, metric.OutcomeError, err, "")
	}

	snap, err := s.codec.Decode(rec.Format, rec.Data)
	if err != nil {
		return nil, s.fail(ctx, metric.OutcomeCorrupt, err,
			fmt.Sprintf("Time Machine data for %s/%d is corrupt", sessionID, r.Round))
	}
	snap.SessionID = sessionID
	snap.Round = r.Round

	if err := s.compat.Check(snap); err != nil {
		return nil, s.fail(ctx, metric.OutcomeIncompatible, err,
			fmt.Sprintf("Time Machine data for %s/%d can't be loaded by this version", sessionID, r.Round))
	}

	r.Snapshot = snap
	r.elapsed = time.Since(start)
	return r, nil
}

// Restore prepares and immediately applies a restoration.
func (s *RestoreService) Restore(ctx context.Context, sessionID string, round int, apply ApplyFunc, restart RestartFunc) (*Restoration, error) {
	r, err := s.Prepare(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}
	if err := r.Apply(ctx, apply, restart); err != nil {
		return r, err
	}
	return r, nil
}

// fail reports a failed preparation. A blank message logs without notifying
// the user.
func (s *RestoreService) fail(ctx context.Context, outcome string, err error, message string) error {
	s.logger.WarnContext(ctx, "restore failed", "outcome", outcome, "error", err)
	if message != "" {
		s.notify.Warn(ctx, message)
	}
	s.metrics.RecordRestore(outcome, 0)
	return err
}

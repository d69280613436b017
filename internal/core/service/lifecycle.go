package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	"github.com/doombubbles/time-machine/internal/core/domain"
)

// SentinelSessionWarning is shown when a round completes in a session the
// host cannot identify.
const SentinelSessionWarning = "This save is too old to create Time Machine backups for!"

// Screen names a host screen that can show the timeline.
type Screen string

const (
	ScreenPause      Screen = "pause"
	ScreenDefeat     Screen = "defeat"
	ScreenBossDefeat Screen = "boss_defeat"
)

// YOffset is the vertical placement hint for the timeline on the screen.
func (s Screen) YOffset() int {
	switch s {
	case ScreenDefeat, ScreenBossDefeat:
		return -50
	default:
		return 0
	}
}

// Valid reports whether s is a known screen.
func (s Screen) Valid() bool {
	switch s {
	case ScreenPause, ScreenDefeat, ScreenBossDefeat:
		return true
	}
	return false
}

// RoundCompleted is raised by the host after a round finishes.
type RoundCompleted struct {
	SessionID             string
	CompletedRound        int
	HighestCompletedRound int

	// Payload is the host's serialized game state.
	Payload []byte

	// Meta is stored alongside the payload.
	Meta map[string]string
}

// ScreenOpened is raised by the host when a timeline-capable screen opens.
type ScreenOpened struct {
	Screen       Screen
	SessionID    string
	CurrentRound int
}

// LifecycleDeps holds the collaborators of a Lifecycle.
type LifecycleDeps struct {
	Store    SnapshotStore
	Codec    SnapshotCodec
	Restore  *RestoreService
	GC       *GarbageCollector
	Notifier Notifier
	Metrics  Metrics
	Logger   *slog.Logger

	// Maintenance, when set, runs main menu collection on the
	// maintenance worker behind any queued wipe or size job.
	Maintenance *Maintenance

	// Quit asks the host to leave the running session. A pending
	// restoration is applied from OnSessionEnding.
	Quit func(ctx context.Context) error

	// Apply loads a snapshot outside of a session.
	Apply ApplyFunc

	// Restart starts the session over.
	Restart RestartFunc
}

// Lifecycle translates host events into store operations.
//
// Failures are logged and surfaced through the notifier; handlers never
// panic into the host.
type Lifecycle struct {
	store   SnapshotStore
	codec   SnapshotCodec
	restore *RestoreService
	gc      *GarbageCollector
	maint   *Maintenance
	notify  Notifier
	metrics Metrics
	logger  *slog.Logger
	quit    func(ctx context.Context) error
	apply   ApplyFunc
	restart RestartFunc

	mu      sync.Mutex
	pending *Restoration
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	logger := orDefaultLogger(deps.Logger)
	return &Lifecycle{
		store:   deps.Store,
		codec:   deps.Codec,
		restore: deps.Restore,
		gc:      deps.GC,
		maint:   deps.Maintenance,
		notify:  orLogNotifier(deps.Notifier, logger),
		metrics: orNopMetrics(deps.Metrics),
		logger:  logger,
		quit:    deps.Quit,
		apply:   deps.Apply,
		restart: deps.Restart,
	}
}

// OnRoundCompleted stores the state at the end of a round as the restore
// point for the next round. CompletedRound 0 stores round 1.
//
// A sentinel session is not an error: the user is warned and nothing is
// stored.
func (l *Lifecycle) OnRoundCompleted(ctx context.Context, ev RoundCompleted) error {
	if !domain.IsValidSessionID(ev.SessionID) {
		l.notify.Warn(ctx, SentinelSessionWarning)
		return nil
	}

	round := ev.CompletedRound + 1
	if err := domain.ValidateRound(round); err != nil {
		return err
	}

	meta := make(map[string]string, len(ev.Meta)+1)
	maps.Copy(meta, ev.Meta)
	if ev.HighestCompletedRound > 0 {
		meta[domain.MetaHighestCompletedRound] = strconv.Itoa(ev.HighestCompletedRound)
	}

	data, err := l.codec.Encode(ev.Payload, meta)
	if err != nil {
		l.metrics.IncSnapshotWriteError()
		l.logger.ErrorContext(ctx, "failed to encode snapshot",
			"session_id", ev.SessionID,
			"round", round,
			"error", err)
		return err
	}

	if err := l.store.Put(ctx, ev.SessionID, round, data); err != nil {
		l.metrics.IncSnapshotWriteError()
		l.logger.ErrorContext(ctx, "failed to store snapshot",
			"session_id", ev.SessionID,
			"round", round,
			"error", err)
		return err
	}

	l.metrics.RecordSnapshotWritten(len(data))
	l.logger.DebugContext(ctx, "saved time machine snapshot",
		"session_id", ev.SessionID,
		"round", round,
		"bytes", len(data))
	return nil
}

// OnScreenOpened returns the timeline to show on the opened screen, or nil
// when the session has nothing stored.
func (l *Lifecycle) OnScreenOpened(ctx context.Context, ev ScreenOpened) (*Timeline, error) {
	if !ev.Screen.Valid() {
		return nil, domain.ErrInvalidArgument.WithDetailsf("unknown screen %q", ev.Screen)
	}
	if !domain.IsValidSessionID(ev.SessionID) {
		return nil, nil
	}

	rounds, err := l.store.ListRounds(ctx, ev.SessionID)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to list rounds",
			"session_id", ev.SessionID,
			"error", err)
		return nil, err
	}

	t := BuildTimeline(ev.SessionID, rounds, ev.CurrentRound)
	if t != nil {
		t.YOffset = ev.Screen.YOffset()
	}
	return t, nil
}

// RequestRestore prepares the restore of (sessionID, round).
//
// Inside a running session the restoration is held as pending and the host
// is asked to quit; OnSessionEnding then applies it. Outside a session it
// is applied immediately.
func (l *Lifecycle) RequestRestore(ctx context.Context, sessionID string, round int, inSession bool) (*Restoration, error) {
	if l.restore == nil {
		return nil, domain.ErrMissingArgument.WithDetails("restore service")
	}

	r, err := l.restore.Prepare(ctx, sessionID, round)
	if err != nil {
		return nil, err
	}

	if !inSession {
		if err := r.Apply(ctx, l.apply, l.restart); err != nil {
			l.notify.Warn(ctx, fmt.Sprintf("Failed to load Time Machine data for %s/%d", sessionID, r.Round))
			return r, err
		}
		return r, nil
	}

	l.mu.Lock()
	l.pending = r
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "restore pending until session ends",
		"session_id", sessionID,
		"round", r.Round,
		"restoration_id", r.ID)

	if l.quit != nil {
		if err := l.quit(ctx); err != nil {
			l.logger.WarnContext(ctx, "host refused to quit session", "error", err)
			return r, err
		}
	}
	return r, nil
}

// Restore implements Restorer for a confirmed restore from inside a
// session.
func (l *Lifecycle) Restore(ctx context.Context, sessionID string, round int) (*Restoration, error) {
	return l.RequestRestore(ctx, sessionID, round, true)
}

// Pending returns the restoration waiting for the session to end, if any.
func (l *Lifecycle) Pending() *Restoration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// CancelPending drops the pending restoration.
func (l *Lifecycle) CancelPending() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}

// OnSessionEnding applies and clears the pending restoration. It reports
// whether a restoration was applied.
func (l *Lifecycle) OnSessionEnding(ctx context.Context) (bool, error) {
	r, err := l.ApplyPending(ctx, l.apply, l.restart)
	return r != nil && err == nil, err
}

// ApplyPending clears the pending restoration and applies it with the
// given callbacks, returning it. It returns nil when nothing is pending.
// Hosts outside the process use it to receive the snapshot themselves.
func (l *Lifecycle) ApplyPending(ctx context.Context, apply ApplyFunc, restart RestartFunc) (*Restoration, error) {
	l.mu.Lock()
	r := l.pending
	l.pending = nil
	l.mu.Unlock()

	if r == nil {
		return nil, nil
	}

	l.logger.InfoContext(ctx, "session about to end with pending load",
		"session_id", r.SessionID,
		"round", r.Round,
		"restoration_id", r.ID)

	if err := r.Apply(ctx, apply, restart); err != nil {
		l.notify.Warn(ctx, fmt.Sprintf("Failed to load Time Machine data for %s/%d", r.SessionID, r.Round))
		return r, err
	}
	return r, nil
}

// OnMainMenu runs garbage collection unless a restore is pending. With a
// maintenance worker the pass is queued behind earlier jobs and OnMainMenu
// waits for it.
func (l *Lifecycle) OnMainMenu(ctx context.Context, provider RetentionProvider) (*GCReport, error) {
	if l.Pending() != nil {
		l.logger.DebugContext(ctx, "skipping time machine cleanup while a load is pending")
		return &GCReport{Removed: []string{}, Kept: []string{}, Skipped: true, Reason: SkipRestorePending}, nil
	}
	if l.maint != nil {
		return l.maint.CollectWait(ctx, provider)
	}
	if l.gc == nil {
		return &GCReport{Removed: []string{}, Kept: []string{}, Skipped: true, Reason: SkipDisabled}, nil
	}
	return l.gc.Collect(ctx, provider)
}

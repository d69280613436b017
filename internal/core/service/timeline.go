package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/telemetry/metric"
)

// PopupTitle is the title of the restore confirmation prompt.
const PopupTitle = "Time Machine"

// PointState distinguishes the current round from selectable ones.
type PointState string

const (
	PointCurrent    PointState = "current"
	PointSelectable PointState = "selectable"
)

// Direction is the travel direction of a timeline point relative to the
// current round.
type Direction string

const (
	DirectionBack    Direction = "back"
	DirectionForward Direction = "forward"
	DirectionCurrent Direction = "current"
)

// TimelinePoint is one restorable round.
type TimelinePoint struct {
	Round     int        `json:"round"`
	State     PointState `json:"state"`
	Direction Direction  `json:"direction"`
	Message   string     `json:"message"`
}

// Timeline is the set of restore points for one session.
type Timeline struct {
	SessionID string          `json:"session_id"`
	Current   int             `json:"current"`
	Points    []TimelinePoint `json:"points"`

	// Progress is current over the highest stored round, clamped to [0, 1].
	Progress float64 `json:"progress"`

	// YOffset is the vertical placement hint of the screen the timeline is
	// shown on.
	YOffset int `json:"y_offset"`
}

// Contains reports whether round is a point on the timeline.
func (t *Timeline) Contains(round int) bool {
	if t == nil {
		return false
	}
	return slices.ContainsFunc(t.Points, func(p TimelinePoint) bool { return p.Round == round })
}

// BuildTimeline builds the timeline for a session's stored rounds. It
// returns nil when no rounds are stored.
func BuildTimeline(sessionID string, rounds []int, current int) *Timeline {
	rounds = domain.SortedUniqueRounds(rounds)
	if len(rounds) == 0 {
		return nil
	}

	t := &Timeline{
		SessionID: sessionID,
		Current:   current,
		Points:    make([]TimelinePoint, 0, len(rounds)),
	}

	highest := rounds[len(rounds)-1]
	t.Progress = min(max(float64(current)/float64(highest), 0), 1)

	for _, r := range rounds {
		p := TimelinePoint{
			Round:   r,
			State:   PointSelectable,
			Message: TimelineMessage(r, current),
		}
		switch {
		case r == current:
			p.State = PointCurrent
			p.Direction = DirectionCurrent
		case r > current:
			p.Direction = DirectionForward
		default:
			p.Direction = DirectionBack
		}
		t.Points = append(t.Points, p)
	}

	return t
}

// TimelineMessage is the confirmation text for restoring round while the
// session is at current.
func TimelineMessage(round, current int) string {
	if round > current {
		return fmt.Sprintf("Travel back (to the future!) when you finished round %d?\nRound %d will be about to start.", round, round+1)
	}
	return fmt.Sprintf("Travel back to when you finished round %d?\nRound %d will be about to start.", round, round+1)
}

// Prompter asks the user to confirm an action.
type Prompter interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, title, message string) (bool, error)

// Confirm implements Prompter.
func (f PrompterFunc) Confirm(ctx context.Context, title, message string) (bool, error) {
	return f(ctx, title, message)
}

// AutoConfirm is a Prompter that answers every prompt with answer.
func AutoConfirm(answer bool) Prompter {
	return PrompterFunc(func(context.Context, string, string) (bool, error) {
		return answer, nil
	})
}

// Restorer performs a confirmed restore.
type Restorer interface {
	Restore(ctx context.Context, sessionID string, round int) (*Restoration, error)
}

// RestorerFunc adapts a function to Restorer.
type RestorerFunc func(ctx context.Context, sessionID string, round int) (*Restoration, error)

// Restore implements Restorer.
func (f RestorerFunc) Restore(ctx context.Context, sessionID string, round int) (*Restoration, error) {
	return f(ctx, sessionID, round)
}

// TimelineController builds timelines from the store and turns an
// activated point into a confirmed restore.
type TimelineController struct {
	store    SnapshotStore
	prompter Prompter
	restorer Restorer
	metrics  Metrics
	logger   *slog.Logger
}

// NewTimelineController creates a TimelineController.
func NewTimelineController(store SnapshotStore, prompter Prompter, restorer Restorer, logger *slog.Logger, metrics Metrics) *TimelineController {
	return &TimelineController{
		store:    store,
		prompter: prompter,
		restorer: restorer,
		metrics:  orNopMetrics(metrics),
		logger:   orDefaultLogger(logger),
	}
}

// ForSession lists the session's stored rounds and builds its timeline.
// A nil timeline means nothing is stored.
func (c *TimelineController) ForSession(ctx context.Context, sessionID string, current int) (*Timeline, error) {
	if err := domain.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	rounds, err := c.store.ListRounds(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildTimeline(sessionID, rounds, current), nil
}

// Activate asks for confirmation of the point at round and restores it once
// confirmed. A declined or failed prompt returns ErrConfirmationDeclined and
// restores nothing.
func (c *TimelineController) Activate(ctx context.Context, t *Timeline, round int) (*Restoration, error) {
	if !t.Contains(round) {
		return nil, domain.ErrInvalidArgument.WithDetailsf("round %d is not on the timeline", round)
	}
	if c.prompter == nil || c.restorer == nil {
		return nil, domain.ErrMissingArgument.WithDetails("prompter and restorer are required")
	}

	ok, err := c.prompter.Confirm(ctx, PopupTitle, TimelineMessage(round, t.Current))
	if err != nil || !ok {
		c.logger.DebugContext(ctx, "restore not confirmed",
			"session_id", t.SessionID,
			"round", round,
			"error", err)
		c.metrics.RecordRestore(metric.OutcomeDeclined, 0)
		return nil, domain.ErrConfirmationDeclined.WithCause(err)
	}

	return c.restorer.Restore(ctx, t.SessionID, round)
}

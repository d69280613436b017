package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/cli/output"
	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// TimelineCommand returns the timeline subcommand group.
func TimelineCommand() *cli.Command {
	sessionFlags := []cli.Flag{
		&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID", Required: true},
		&cli.IntFlag{Name: "current", Usage: "Round the session is currently at"},
	}

	return &cli.Command{
		Name:    "timeline",
		Aliases: []string{"tl"},
		Usage:   "Browse and travel the restore points of a session",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the timeline of a session",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "screen", Usage: "Build the timeline as shown on a screen: pause, defeat, boss_defeat"},
				}, sessionFlags...),
				Action: timelineShow,
			},
			{
				Name:  "restore",
				Usage: "Restore a round of the timeline",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "round", Aliases: []string{"r"}, Usage: "Round to travel to", Required: true},
					&cli.StringFlag{Name: "out", Usage: "Write the restored payload to this file (- for stdout)"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Skip confirmation"},
				}, sessionFlags...),
				Action: timelineRestore,
			},
		},
	}
}

// timelineView renders a timeline as a table of points.
type timelineView struct {
	*service.Timeline
}

func (v timelineView) Table() *output.Table {
	t := output.NewTable("ROUND", "STATE", "DIRECTION", "MESSAGE")
	for _, p := range v.Points {
		msg, _, _ := strings.Cut(p.Message, "\n")
		t.AddRow(strconv.Itoa(p.Round), string(p.State), string(p.Direction), msg)
	}
	return t
}

func timelineShow(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	sessionID, current := c.String("session"), c.Int("current")

	var t *service.Timeline
	if screen := c.String("screen"); screen != "" {
		t, err = e.lifecycle.OnScreenOpened(c.Context, service.ScreenOpened{
			Screen:       service.Screen(screen),
			SessionID:    sessionID,
			CurrentRound: current,
		})
	} else {
		t, err = e.controller(nil).ForSession(c.Context, sessionID, current)
	}
	if err != nil {
		return err
	}

	if t == nil {
		fmt.Fprintf(c.App.Writer, "No restore points for session %s\n", sessionID)
		return nil
	}
	return render(c, timelineView{t})
}

func timelineRestore(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	sessionID, round, current := c.String("session"), c.Int("round"), c.Int("current")

	p := prompter(c)
	if c.Bool("force") {
		p = service.AutoConfirm(true)
	}
	ctrl := e.controller(p)

	t, err := ctrl.ForSession(c.Context, sessionID, current)
	if err != nil {
		return err
	}
	restoration, err := ctrl.Activate(c.Context, t, round)
	if errors.Is(err, domain.ErrConfirmationDeclined) {
		fmt.Fprintln(c.App.Writer, "Aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	return restoration.Apply(c.Context,
		func(_ context.Context, snap *domain.Snapshot) error {
			if out := c.String("out"); out != "" {
				if err := writePayload(c, out, snap.Payload); err != nil {
					return err
				}
				if out == "-" {
					return nil
				}
			}
			fmt.Fprintf(c.App.Writer, "Restored %s to round %d (%d bytes)\n", snap.SessionID, snap.Round, len(snap.Payload))
			return nil
		},
		func(context.Context) error {
			fmt.Fprintf(c.App.Writer, "No snapshot for round 1 of %s; restart the session to travel there\n", sessionID)
			return nil
		})
}

// controller builds a timeline controller whose restorer prepares
// restorations for the caller to apply.
func (e *env) controller(p service.Prompter) *service.TimelineController {
	restorer := service.RestorerFunc(e.restore.Prepare)
	return service.NewTimelineController(e.store, p, restorer, e.logger, nil)
}

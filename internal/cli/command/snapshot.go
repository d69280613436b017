package command

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/cli/output"
	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// SessionCommand returns the session subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "session",
		Aliases: []string{"sess"},
		Usage:   "Session management commands",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List sessions with stored snapshots",
				Action:  sessionList,
			},
			{
				Name:      "rounds",
				Usage:     "List the stored rounds of a session",
				ArgsUsage: "<session-id>",
				Action:    sessionRounds,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete every snapshot of a session",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: sessionDelete,
			},
		},
	}
}

// SnapshotCommand returns the snapshot subcommand group.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Aliases: []string{"snap"},
		Usage:   "Snapshot commands",
		Subcommands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Store a payload as if the round had just completed",
				ArgsUsage: "<payload-file|->",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID", Required: true},
					&cli.IntFlag{Name: "round", Aliases: []string{"r"}, Usage: "Completed round", Required: true},
					&cli.IntFlag{Name: "highest", Usage: "Highest completed round of the session"},
					&cli.StringSliceFlag{Name: "meta", Aliases: []string{"m"}, Usage: "Metadata as key=value (repeatable)"},
				},
				Action: snapshotSave,
			},
			{
				Name:  "get",
				Usage: "Show a stored snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID", Required: true},
					&cli.IntFlag{Name: "round", Aliases: []string{"r"}, Usage: "Round", Required: true},
					&cli.StringFlag{Name: "out", Usage: "Write the payload to this file (- for stdout)"},
				},
				Action: snapshotGet,
			},
		},
	}
}

// sessionRow is one line of session list.
type sessionRow struct {
	SessionID string `json:"session_id"`
	Rounds    []int  `json:"rounds"`
}

type sessionRows []sessionRow

func (l sessionRows) Table() *output.Table {
	t := output.NewTable("SESSION", "ROUNDS", "LATEST")
	for _, s := range l {
		latest := "-"
		if n := len(s.Rounds); n > 0 {
			latest = strconv.Itoa(s.Rounds[n-1])
		}
		t.AddRow(s.SessionID, strconv.Itoa(len(s.Rounds)), latest)
	}
	return t
}

func sessionList(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	ids, err := e.store.ListSessions(c.Context)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	rows := make(sessionRows, 0, len(ids))
	for _, id := range ids {
		rounds, err := e.store.ListRounds(c.Context, id)
		if err != nil {
			return fmt.Errorf("list rounds of %s: %w", id, err)
		}
		rows = append(rows, sessionRow{SessionID: id, Rounds: rounds})
	}
	return render(c, rows)
}

type roundList struct {
	SessionID string `json:"session_id"`
	Rounds    []int  `json:"rounds"`
}

func (l roundList) Table() *output.Table {
	t := output.NewTable("ROUND")
	for _, r := range l.Rounds {
		t.AddRow(strconv.Itoa(r))
	}
	return t
}

func sessionRounds(c *cli.Context) error {
	sessionID, err := sessionArg(c)
	if err != nil {
		return err
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	rounds, err := e.store.ListRounds(c.Context, sessionID)
	if err != nil {
		return fmt.Errorf("list rounds: %w", err)
	}
	if rounds == nil {
		rounds = []int{}
	}
	return render(c, roundList{SessionID: sessionID, Rounds: rounds})
}

func sessionDelete(c *cli.Context) error {
	sessionID, err := sessionArg(c)
	if err != nil {
		return err
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		ok, err := confirm(c, fmt.Sprintf("Delete every snapshot of session %s?", sessionID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	if err := e.store.DeleteSession(c.Context, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted session %s\n", sessionID)
	return nil
}

func snapshotSave(c *cli.Context) error {
	if c.NArg() != 1 {
		return domain.ErrMissingArgument.WithDetails("payload file")
	}
	meta, err := parseMeta(c.StringSlice("meta"))
	if err != nil {
		return err
	}
	payload, err := readPayload(c, c.Args().First())
	if err != nil {
		return err
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	ev := service.RoundCompleted{
		SessionID:             c.String("session"),
		CompletedRound:        c.Int("round"),
		HighestCompletedRound: c.Int("highest"),
		Payload:               payload,
		Meta:                  meta,
	}
	if err := e.lifecycle.OnRoundCompleted(c.Context, ev); err != nil {
		return err
	}
	if !domain.IsValidSessionID(ev.SessionID) {
		fmt.Fprintf(c.App.Writer, "Nothing stored for session %q\n", ev.SessionID)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "Stored restore point %s/%d\n", ev.SessionID, ev.CompletedRound+1)
	return nil
}

// snapshotView describes a decoded snapshot without its payload.
type snapshotView struct {
	SessionID string            `json:"session_id"`
	Round     int               `json:"round"`
	Format    string            `json:"format"`
	Bytes     int               `json:"bytes"`
	Meta      map[string]string `json:"meta"`
}

func newSnapshotView(snap *domain.Snapshot) snapshotView {
	meta := snap.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return snapshotView{
		SessionID: snap.SessionID,
		Round:     snap.Round,
		Format:    snap.Format.String(),
		Bytes:     len(snap.Payload),
		Meta:      meta,
	}
}

func (v snapshotView) Table() *output.Table {
	t := output.NewTable("FIELD", "VALUE")
	t.AddRow("session_id", v.SessionID)
	t.AddRow("round", strconv.Itoa(v.Round))
	t.AddRow("format", v.Format)
	t.AddRow("bytes", strconv.Itoa(v.Bytes))

	keys := make([]string, 0, len(v.Meta))
	for k := range v.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AddRow("meta."+k, v.Meta[k])
	}
	return t
}

func snapshotGet(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	sessionID, round := c.String("session"), c.Int("round")
	rec, err := e.store.Get(c.Context, sessionID, round)
	if err != nil {
		return err
	}
	snap, err := e.codec.Decode(rec.Format, rec.Data)
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		if err := writePayload(c, out, snap.Payload); err != nil {
			return err
		}
		if out == "-" {
			return nil
		}
	}
	return render(c, newSnapshotView(snap))
}

func sessionArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", domain.ErrMissingArgument.WithDetails("session id")
	}
	id := c.Args().First()
	if err := domain.ValidateSessionID(id); err != nil {
		return "", err
	}
	return id, nil
}

// parseMeta parses key=value pairs.
func parseMeta(pairs []string) (map[string]string, error) {
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, domain.ErrInvalidArgument.WithDetailsf("meta %q must be key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func readPayload(c *cli.Context, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func writePayload(c *cli.Context, path string, payload []byte) error {
	if path == "-" {
		_, err := c.App.Writer.Write(payload)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

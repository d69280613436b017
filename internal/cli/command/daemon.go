package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/cli/connection"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// DaemonCommand returns the subcommand group that talks to a running
// timemachined.
func DaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Query a running timemachined",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Daemon address or unix:///path (defaults to server.local.socket, then server.http.addr)",
				EnvVars: []string{"TIMEMACHINE_ADDR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: connection.DefaultTimeout,
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Check daemon health",
				Action: daemonStatus,
			},
			{
				Name:   "sessions",
				Usage:  "List sessions known to the daemon",
				Action: daemonSessions,
			},
			{
				Name:   "size",
				Usage:  "Show the daemon's storage footprint",
				Action: daemonSize,
			},
			{
				Name:  "gc",
				Usage: "Collect stale sessions on the daemon",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "keep", Aliases: []string{"k"}, Usage: "Live session ID to keep (repeatable)"},
					&cli.StringFlag{Name: "keep-file", Usage: "File listing live session IDs, one per line"},
				},
				Action: daemonGC,
			},
		},
	}
}

func daemonClient(c *cli.Context) (*connection.HTTPClient, error) {
	addr := c.String("addr")
	if addr == "" {
		e, err := getEnv(c)
		if err != nil {
			return nil, err
		}
		addr = e.cfg.Server.HTTP.Addr
		if sock := e.cfg.Server.Local.Socket; sock != "" {
			addr = connection.UnixScheme + sock
		}
	}
	return connection.NewHTTPClient(addr, c.Duration("timeout")), nil
}

type healthView struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
	Target  string `json:"target"`
}

func daemonStatus(c *cli.Context) error {
	client, err := daemonClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	var result healthView
	if err := client.Get(ctx, "/health", &result); err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	result.Target = client.BaseURL()
	return render(c, result)
}

func daemonSessions(c *cli.Context) error {
	client, err := daemonClient(c)
	if err != nil {
		return err
	}

	var result struct {
		Sessions []string `json:"sessions"`
		Total    int      `json:"total"`
	}
	if err := client.Get(c.Context, "/v1/sessions", &result); err != nil {
		return err
	}

	rows := make(sessionRows, 0, len(result.Sessions))
	for _, id := range result.Sessions {
		var rounds struct {
			Rounds []int `json:"rounds"`
		}
		if err := client.Get(c.Context, "/v1/sessions/"+id+"/rounds", &rounds); err != nil {
			return err
		}
		rows = append(rows, sessionRow{SessionID: id, Rounds: rounds.Rounds})
	}
	return render(c, rows)
}

func daemonSize(c *cli.Context) error {
	client, err := daemonClient(c)
	if err != nil {
		return err
	}

	var result sizeView
	if err := client.Get(c.Context, "/v1/maintenance/size", &result); err != nil {
		return err
	}
	return render(c, result)
}

func daemonGC(c *cli.Context) error {
	keep, err := retainedSessions(c)
	if err != nil {
		return err
	}
	client, err := daemonClient(c)
	if err != nil {
		return err
	}

	var report service.GCReport
	if err := client.Post(c.Context, "/v1/maintenance/gc", map[string]any{"keep": keep}, &report); err != nil {
		return err
	}
	return render(c, gcView{&report})
}

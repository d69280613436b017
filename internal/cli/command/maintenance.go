package command

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/cli/output"
	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// StorageCommand returns the storage maintenance subcommand group.
func StorageCommand() *cli.Command {
	return &cli.Command{
		Name:    "storage",
		Aliases: []string{"store"},
		Usage:   "Storage maintenance commands",
		Subcommands: []*cli.Command{
			{
				Name:   "size",
				Usage:  "Show how much data the saves use",
				Action: storageSize,
			},
			{
				Name:  "gc",
				Usage: "Delete the saves of sessions that are no longer live",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "keep",
						Aliases: []string{"k"},
						Usage:   "Live session ID to keep (repeatable)",
					},
					&cli.StringFlag{
						Name:  "keep-file",
						Usage: "File listing live session IDs, one per line",
					},
				},
				Action: storageGC,
			},
			{
				Name:  "wipe",
				Usage: "Delete every save",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: storageWipe,
			},
		},
	}
}

type sizeView struct {
	Bytes int64  `json:"bytes"`
	Label string `json:"label"`
}

func (v sizeView) Table() *output.Table {
	t := output.NewTable("BYTES", "LABEL")
	t.AddRow(fmt.Sprint(v.Bytes), v.Label)
	return t
}

type gcView struct {
	*service.GCReport
}

func (v gcView) Table() *output.Table {
	t := output.NewTable("SESSION", "RESULT")
	for _, id := range v.Removed {
		t.AddRow(id, "removed")
	}
	for _, id := range v.Kept {
		t.AddRow(id, "kept")
	}
	for _, f := range v.Failed {
		t.AddRow(f.SessionID, "failed: "+f.Error)
	}
	if v.Skipped {
		t.AddRow("-", "skipped: "+v.Reason)
	}
	return t
}

func storageSize(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	spin := output.NewSpinner(errWriter(c), service.SizeLabelCalculating)
	spin.Start()
	n, err := e.calcSize()
	if err != nil {
		spin.Fail("size calculation failed")
		return err
	}
	spin.Stop()

	return render(c, sizeView{Bytes: n, Label: service.FormatSize(n)})
}

func storageGC(c *cli.Context) error {
	keep, err := retainedSessions(c)
	if err != nil {
		return err
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	type result struct {
		report *service.GCReport
		err    error
	}
	done := make(chan result, 1)

	spin := output.NewSpinner(errWriter(c), "Collecting stale saves...")
	spin.Start()
	err = e.maintenance.Collect(service.StaticRetention(keep...), func(report *service.GCReport, err error) {
		done <- result{report, err}
	})
	if err != nil {
		spin.Fail("collection failed")
		return err
	}
	res := <-done
	if res.report == nil {
		spin.Fail("collection failed")
		return res.err
	}
	spin.Stop()

	return render(c, gcView{res.report})
}

func storageWipe(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		ok, err := confirm(c, "Delete ALL time machine saves?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.App.Writer, "Aborted.")
			return nil
		}
	}

	done := make(chan error, 1)
	if err := e.maintenance.Wipe(func(err error) { done <- err }); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return fmt.Errorf("wipe: %w", err)
	}

	n, err := e.calcSize()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, service.FormatSize(n))
	return nil
}

// calcSize runs a size calculation on the maintenance worker and waits for
// it.
func (e *env) calcSize() (int64, error) {
	type result struct {
		n   int64
		err error
	}
	done := make(chan result, 1)
	if err := e.maintenance.CalcSize(func(n int64, err error) {
		done <- result{n, err}
	}); err != nil {
		return 0, err
	}
	res := <-done
	return res.n, res.err
}

// retainedSessions collects the live session IDs from --keep and
// --keep-file. Collection without any live session would delete every
// save, so at least one ID is required.
func retainedSessions(c *cli.Context) ([]string, error) {
	keep := append([]string(nil), c.StringSlice("keep")...)

	if path := c.String("keep-file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open keep file: %w", err)
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			keep = append(keep, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read keep file: %w", err)
		}
	}

	if len(keep) == 0 {
		return nil, domain.ErrMissingArgument.WithDetails("at least one live session (--keep or --keep-file)")
	}
	return keep, nil
}

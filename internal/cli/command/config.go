package command

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/doombubbles/time-machine/internal/cli/output"
	"github.com/doombubbles/time-machine/internal/server/config"
	"github.com/doombubbles/time-machine/internal/storage"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"cfg"},
		Usage:   "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with profile IDs masked",
				Action: configShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate a configuration file",
				ArgsUsage: "[FILE]",
				Action:    configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	e, err := getEnv(c)
	if err != nil {
		return err
	}
	sanitized := config.Sanitize(e.cfg)

	if output.Format(c.String("output")) == output.FormatJSON {
		return render(c, sanitized)
	}

	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(sanitized); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	root := storage.RootDir(e.cfg.Storage.BaseDir, e.cfg.Storage.OwnerID)
	fmt.Fprintf(c.App.Writer, "# save root: %s\n", logger.RedactPath(root))
	return nil
}

func configValidate(c *cli.Context) error {
	e, err := getEnv(c)
	if err != nil {
		return err
	}

	path := e.flags.Config
	if c.NArg() > 0 {
		path = c.Args().First()
	}
	if path == "" {
		fmt.Fprintln(c.App.Writer, "No configuration file given; defaults and environment are valid.")
		return nil
	}

	if _, _, err := config.Load(path, e.flags.overrides()); err != nil {
		return fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "Configuration is valid: %s\n", path)
	return nil
}

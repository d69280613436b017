package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/doombubbles/time-machine/internal/core/service"
)

// confirm asks a yes/no question on the app's reader. Anything but y or yes
// is a no.
func confirm(c *cli.Context, question string) (bool, error) {
	fmt.Fprintf(c.App.Writer, "%s [y/N]: ", question)

	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// prompter shows the timeline popup as a terminal question.
func prompter(c *cli.Context) service.Prompter {
	return service.PrompterFunc(func(_ context.Context, title, message string) (bool, error) {
		fmt.Fprintf(c.App.Writer, "%s\n%s\n", title, message)
		return confirm(c, "Continue?")
	})
}

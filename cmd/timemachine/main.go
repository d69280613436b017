// Package main provides the entry point for timemachine, the command-line
// tool for inspecting and managing time machine saves.
//
// Usage:
//
//	timemachine session list
//	timemachine timeline show --session 6812 --current 40
//	timemachine timeline restore --session 6812 --round 35 --out state.json
//	timemachine storage gc --keep 6812 --keep 7001
//	timemachine daemon status
package main

import (
	"os"

	"github.com/doombubbles/time-machine/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		command.PrintError(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// Package command provides CLI command definitions for timemachine.
//
// Most commands work directly on the local save root described by the
// configuration file, the environment and the global flags. The daemon
// group talks to a running timemachined instead.
package command

// Package buildinfo exposes version information for both binaries.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X .../buildinfo.Version=1.0.0 -X .../buildinfo.Commit=abc123"
//
// The Go version always comes from the runtime.
package buildinfo

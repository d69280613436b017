// Package handler provides the HTTP request handlers of the time machine
// bridge.
//
//   - snapshot.go: round completion, stored sessions and rounds
//   - timeline.go: timelines and confirmed restores
//   - maintenance.go: size, collection, wipe and the main menu event
//   - health.go: health and metrics
//
// Every JSON response uses the Response envelope. Domain error codes are
// mapped to HTTP statuses by their last four digits.
package handler

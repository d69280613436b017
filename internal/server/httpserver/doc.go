// Package httpserver provides the loopback HTTP bridge of the time machine
// daemon.
//
// A host running out of process reports lifecycle events and drives the
// timeline through it:
//
//   - Snapshots: /v1/sessions, /v1/sessions/{id}/rounds[/{round}[/complete]]
//   - Timeline: /v1/sessions/{id}/timeline[/{round}/activate]
//   - Maintenance: /v1/maintenance/{size,gc,wipe}
//   - Host events: /v1/events/{main-menu,session-ending,pending}
//   - Health endpoints: /health, /metrics
//
// Every route runs behind Recover, RequestID, Metrics and optionally Audit
// and RateLimit.
package httpserver

// Package service provides the time machine's domain services.
//
// Services contain the restore-point logic and orchestrate the snapshot
// store and codec. They declare the interfaces they depend on, so storage
// backends and host callbacks are injected.
//
// This package contains:
//
//   - Lifecycle: host event callbacks (round completed, screen opened,
//     session ending, main menu)
//   - RestoreService: fetch, decode and compatibility check of snapshots
//   - TimelineController: restore point listing and confirmed activation
//   - GarbageCollector: removal of sessions the host no longer retains
//   - Maintenance: serial background worker for size, GC and wipe jobs
//
// Services never mutate live host state. Loading a snapshot is delegated
// to the ApplyFunc the host provides.
package service

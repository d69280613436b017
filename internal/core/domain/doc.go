// Package domain defines the core domain models for the time machine store.
//
// Domain models are plain values without IO dependencies. This package contains:
//
//   - Session: one play-through, identified by the host
//   - Record: the stored container bytes for one (session, round) key
//   - Snapshot: a decoded restore point with its opaque payload
//   - RetentionSet: the sessions the host still considers live
//   - Errors: coded domain errors shared by every layer
package domain

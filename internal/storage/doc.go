// Package storage persists snapshot containers keyed by (session, round).
//
// Two backends implement Store:
//
//   - FSStore: one directory per session under the save root, one file per
//     round. The default.
//   - BadgerStore: an embedded Badger database with a hierarchical key space.
//
// Stores hold opaque container bytes produced by the codec package; they
// never interpret payloads. Listings are self-healing: entries that do not
// parse as positive round numbers are ignored rather than reported.
//
// Deletes are soft: a failure on one entry is recorded and its siblings are
// still attempted. The joined failures are returned for reporting.
package storage

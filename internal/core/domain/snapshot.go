package domain

import (
	"sort"
	"strconv"
	"strings"
)

// NoSessionID is the host's sentinel for "no valid session".
const NoSessionID = "0"

// Well-known snapshot metadata keys.
const (
	MetaHostVersion           = "host_version"
	MetaMode                  = "mode"
	MetaHighestCompletedRound = "highest_completed_round"
)

// Format tags the on-disk encoding of a stored snapshot.
type Format string

const (
	// FormatRawJSON is the legacy uncompressed text format (read-only).
	FormatRawJSON Format = "raw-json"

	// FormatCompressedV1 is the canonical compressed container.
	FormatCompressedV1 Format = "compressed-v1"
)

// String implements fmt.Stringer.
func (f Format) String() string {
	return string(f)
}

// Session identifies one play-through of the host game.
type Session struct {
	// ID is the stable identifier supplied by the host.
	ID string `json:"id"`

	// OwnerID optionally scopes storage to one player profile.
	OwnerID string `json:"owner_id,omitempty"`
}

// IsValidSessionID reports whether id names a real session.
// The empty string and "0" are the host's "nothing to persist" sentinels.
func IsValidSessionID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != NoSessionID
}

// ValidateSessionID checks that id can be used as a storage key.
// Session IDs become single path segments, so separators and dot names are
// rejected.
func ValidateSessionID(id string) error {
	if !IsValidSessionID(id) {
		return ErrNoValidSession.WithDetailsf("session id %q", id)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return ErrInvalidArgument.WithDetailsf("session id %q is not a valid key", id)
	}
	return nil
}

// ValidateRound checks that round is a positive round number.
func ValidateRound(round int) error {
	if round < 1 {
		return ErrInvalidArgument.WithDetailsf("round must be >= 1, got %d", round)
	}
	return nil
}

// ParseRound parses a stored round name. Names that are not positive
// integers yield 0 so callers can filter them out.
func ParseRound(name string) int {
	n, err := strconv.Atoi(name)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// Record is the stored form of one restore point: container bytes as
// produced by the codec, never interpreted by the store.
type Record struct {
	SessionID string
	Round     int
	Format    Format
	Data      []byte
}

// Snapshot is a decoded restore point.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Round     int               `json:"round"`
	Format    Format            `json:"format"`
	Payload   []byte            `json:"-"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// MetaValue returns the metadata value for key, or "" when absent.
func (s *Snapshot) MetaValue(key string) string {
	if s == nil || s.Meta == nil {
		return ""
	}
	return s.Meta[key]
}

// RetentionSet is the set of session IDs the host still considers live.
type RetentionSet map[string]struct{}

// NewRetentionSet builds a RetentionSet from ids. Blank ids are skipped.
func NewRetentionSet(ids ...string) RetentionSet {
	set := make(RetentionSet, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is retained.
func (r RetentionSet) Contains(id string) bool {
	_, ok := r[id]
	return ok
}

// IDs returns the retained ids in sorted order.
func (r RetentionSet) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedUniqueRounds sorts rounds ascending, dropping duplicates and
// non-positive entries.
func SortedUniqueRounds(rounds []int) []int {
	out := make([]int, 0, len(rounds))
	seen := make(map[int]struct{}, len(rounds))
	for _, r := range rounds {
		if r < 1 {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// Package domain defines the core domain models for the time machine store.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
//
// Codes use the form TM-<AREA>-<NNNN>. The last four digits follow HTTP
// semantics (404x not found, 409x conflict, 5xxx internal) so that transport
// layers can map them without knowing every code.
type DomainError struct {
	Code    string // Error code (e.g., "TM-SNAP-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Snapshot Errors (SNAP)
// ============================================================================

var (
	// ErrSnapshotNotFound indicates no snapshot exists for a (session, round) key.
	ErrSnapshotNotFound = NewDomainError("TM-SNAP-4040", "snapshot not found")

	// ErrCorruptSnapshot indicates the stored container could not be decoded.
	ErrCorruptSnapshot = NewDomainError("TM-SNAP-4220", "corrupt snapshot")

	// ErrIncompatibleVersion indicates the snapshot targets an environment
	// the host cannot currently satisfy.
	ErrIncompatibleVersion = NewDomainError("TM-SNAP-4091", "snapshot is incompatible with the current game")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the session has no stored snapshots.
	ErrSessionNotFound = NewDomainError("TM-SESS-4040", "session not found")

	// ErrNoValidSession indicates the host supplied the "no session" sentinel.
	ErrNoValidSession = NewDomainError("TM-SESS-4001", "no valid session")
)

// ============================================================================
// Timeline and GC Errors
// ============================================================================

var (
	// ErrConfirmationDeclined indicates the user did not confirm a restore.
	ErrConfirmationDeclined = NewDomainError("TM-TIME-4090", "restore not confirmed")

	// ErrRetentionUnavailable indicates the live session set could not be determined.
	ErrRetentionUnavailable = NewDomainError("TM-GC-5030", "retention set unavailable")

	// ErrGCThrottled indicates a collection pass was requested too soon after the last one.
	ErrGCThrottled = NewDomainError("TM-GC-4290", "garbage collection throttled")
)

// ============================================================================
// System and Argument Errors
// ============================================================================

var (
	// ErrStorageIO indicates a filesystem or storage engine failure.
	ErrStorageIO = NewDomainError("TM-SYS-5001", "storage error")

	// ErrClosed indicates the component has been shut down.
	ErrClosed = NewDomainError("TM-SYS-5030", "closed")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("TM-ARG-1002", "missing required argument")
)

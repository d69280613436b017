package handler

import (
	"encoding/json"
	"time"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// MetaHeaderPrefix marks request headers copied into snapshot metadata.
// X-Meta-Host-Version becomes the host_version key.
const MetaHeaderPrefix = "X-Meta-"

// RoundCompletedResponse is the response body for
// POST /v1/sessions/{id}/rounds/{round}/complete.
type RoundCompletedResponse struct {
	SessionID string `json:"session_id"`
	// Stored is false for the no-session sentinel.
	Stored bool `json:"stored"`
	// StoredRound is the restore point written: the round about to start.
	StoredRound int `json:"stored_round,omitempty"`
}

// ListSessionsResponse is the response body for GET /v1/sessions.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
	Total    int      `json:"total"`
}

// ListRoundsResponse is the response body for GET /v1/sessions/{id}/rounds.
type ListRoundsResponse struct {
	SessionID string `json:"session_id"`
	Rounds    []int  `json:"rounds"`
}

// SnapshotResponse carries a decoded snapshot. Payload holds JSON payloads
// verbatim; anything else is base64 encoded in PayloadBase64.
type SnapshotResponse struct {
	SessionID     string            `json:"session_id"`
	Round         int               `json:"round"`
	Format        domain.Format     `json:"format"`
	Meta          map[string]string `json:"meta,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	PayloadBase64 []byte            `json:"payload_base64,omitempty"`
}

func newSnapshotResponse(snap *domain.Snapshot) *SnapshotResponse {
	resp := &SnapshotResponse{
		SessionID: snap.SessionID,
		Round:     snap.Round,
		Format:    snap.Format,
		Meta:      snap.Meta,
	}
	if len(snap.Payload) > 0 && json.Valid(snap.Payload) {
		resp.Payload = json.RawMessage(snap.Payload)
	} else {
		resp.PayloadBase64 = snap.Payload
	}
	return resp
}

// ActivateRequest is the request body for
// POST /v1/sessions/{id}/timeline/{round}/activate.
type ActivateRequest struct {
	// Confirm is the user's answer to the restore prompt.
	Confirm bool `json:"confirm"`
	// Current is the round the session is at.
	Current int `json:"current"`
	// InSession holds the restore as pending until the host reports
	// POST /v1/events/session-ending.
	InSession bool `json:"in_session,omitempty"`
}

// ActivateResponse is the response body for a confirmed restore.
type ActivateResponse struct {
	RestorationID string            `json:"restoration_id"`
	SessionID     string            `json:"session_id"`
	Round         int               `json:"round"`
	Restart       bool              `json:"restart"`
	Pending       bool              `json:"pending,omitempty"`
	Snapshot      *SnapshotResponse `json:"snapshot,omitempty"`
}

// SessionEndingResponse is the response body for
// POST /v1/events/session-ending. Restoration is set when a pending load
// was handed over.
type SessionEndingResponse struct {
	Applied     bool              `json:"applied"`
	Restoration *ActivateResponse `json:"restoration,omitempty"`
}

// TimelineResponse is the response body for GET /v1/sessions/{id}/timeline.
type TimelineResponse struct {
	*service.Timeline
	Title string `json:"title"`
}

// SizeResponse is the response body for GET /v1/maintenance/size.
type SizeResponse struct {
	Bytes int64  `json:"bytes"`
	Label string `json:"label"`
}

// RetentionRequest is the request body for POST /v1/maintenance/gc and
// POST /v1/events/main-menu. Available defaults to true; false reports
// that the host could not determine its live sessions.
type RetentionRequest struct {
	Keep      []string `json:"keep"`
	Available *bool    `json:"available,omitempty"`
}

func (req RetentionRequest) provider() service.RetentionProvider {
	if req.Available != nil && !*req.Available {
		return service.UnavailableRetention()
	}
	return service.StaticRetention(req.Keep...)
}

// WipeRequest is the request body for POST /v1/maintenance/wipe.
type WipeRequest struct {
	Confirm bool `json:"confirm"`
}

// WipeResponse is the response body for POST /v1/maintenance/wipe.
type WipeResponse struct {
	Wiped bool         `json:"wiped"`
	Size  SizeResponse `json:"size"`
}

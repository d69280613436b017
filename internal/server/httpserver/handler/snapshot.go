package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// handleRoundCompleted handles POST /v1/sessions/{id}/rounds/{round}/complete.
// The body is the serialized game state as of the end of the round. A
// sentinel session answers 200 with stored false.
func (h *Handler) handleRoundCompleted(w http.ResponseWriter, r *http.Request) {
	round, err := pathCompletedRound(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	highest, _, err := queryInt(r, "highest")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "TM-ARG-1001", "failed to read request body", nil)
		return
	}

	ev := service.RoundCompleted{
		SessionID:             r.PathValue("id"),
		CompletedRound:        round,
		HighestCompletedRound: highest,
		Payload:               payload,
		Meta:                  metaFromHeaders(r.Header),
	}
	if err := h.lifecycle.OnRoundCompleted(r.Context(), ev); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if !domain.IsValidSessionID(ev.SessionID) {
		h.writeJSON(w, r, http.StatusOK, RoundCompletedResponse{SessionID: ev.SessionID})
		return
	}
	h.writeJSON(w, r, http.StatusCreated, RoundCompletedResponse{
		SessionID:   ev.SessionID,
		Stored:      true,
		StoredRound: round + 1,
	})
}

// handleListSessions handles GET /v1/sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// handleDeleteSession handles DELETE /v1/sessions/{id}.
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := domain.ValidateSessionID(sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Request-ID", getRequestID(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleListRounds handles GET /v1/sessions/{id}/rounds.
func (h *Handler) handleListRounds(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := domain.ValidateSessionID(sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	rounds, err := h.store.ListRounds(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []int{}
	}
	h.writeJSON(w, r, http.StatusOK, ListRoundsResponse{
		SessionID: sessionID,
		Rounds:    rounds,
	})
}

// handleGetRound handles GET /v1/sessions/{id}/rounds/{round}. It returns
// the decoded snapshot without loading it anywhere.
func (h *Handler) handleGetRound(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := domain.ValidateSessionID(sessionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	round, err := pathRound(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	rec, err := h.store.Get(r.Context(), sessionID, round)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	snap, err := h.codec.Decode(rec.Format, rec.Data)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	snap.SessionID = sessionID
	snap.Round = round

	h.writeJSON(w, r, http.StatusOK, newSnapshotResponse(snap))
}

// metaFromHeaders collects X-Meta-* headers. Names are lower-cased and
// dashes become underscores.
func metaFromHeaders(header http.Header) map[string]string {
	meta := make(map[string]string)
	for name, values := range header {
		key, ok := strings.CutPrefix(name, MetaHeaderPrefix)
		if !ok || key == "" || len(values) == 0 {
			continue
		}
		meta[strings.ToLower(strings.ReplaceAll(key, "-", "_"))] = values[0]
	}
	return meta
}

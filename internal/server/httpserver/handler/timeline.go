package handler

import (
	"context"
	"net/http"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// handleTimeline handles GET /v1/sessions/{id}/timeline?current=N&screen=S.
// With a screen the timeline is built as that screen would show it.
func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	current, _, err := queryInt(r, "current")
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var t *service.Timeline
	if screen := r.URL.Query().Get("screen"); screen != "" {
		t, err = h.lifecycle.OnScreenOpened(r.Context(), service.ScreenOpened{
			Screen:       service.Screen(screen),
			SessionID:    sessionID,
			CurrentRound: current,
		})
	} else {
		t, err = h.timeline(nil).ForSession(r.Context(), sessionID, current)
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if t == nil {
		t = &service.Timeline{SessionID: sessionID, Current: current, Points: []service.TimelinePoint{}}
	}
	h.writeJSON(w, r, http.StatusOK, TimelineResponse{Timeline: t, Title: service.PopupTitle})
}

// handleActivate handles POST /v1/sessions/{id}/timeline/{round}/activate.
//
// The body carries the user's answer to the confirmation prompt. A
// confirmed restore is prepared and handed back to the caller, which loads
// the payload or restarts the session. With in_session the restore is held
// pending and handed over by POST /v1/events/session-ending.
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	round, err := pathRound(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	var req ActivateRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	ctrl := h.timeline(service.AutoConfirm(req.Confirm))
	if req.InSession {
		if h.lifecycle == nil {
			h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("lifecycle"))
			return
		}
		ctrl = h.pendingTimeline(service.AutoConfirm(req.Confirm))
	}
	t, err := ctrl.ForSession(r.Context(), sessionID, req.Current)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	restoration, err := ctrl.Activate(r.Context(), t, round)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if req.InSession {
		h.writeJSON(w, r, http.StatusAccepted, ActivateResponse{
			RestorationID: restoration.ID,
			SessionID:     restoration.SessionID,
			Round:         restoration.Round,
			Restart:       restoration.Restart,
			Pending:       true,
		})
		return
	}

	resp := &ActivateResponse{
		RestorationID: restoration.ID,
		SessionID:     restoration.SessionID,
		Round:         restoration.Round,
	}
	apply, restart := resp.capture()
	if err := restoration.Apply(r.Context(), apply, restart); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// capture returns callbacks that copy an applied restoration into resp
// for the caller to load.
func (resp *ActivateResponse) capture() (service.ApplyFunc, service.RestartFunc) {
	apply := func(_ context.Context, snap *domain.Snapshot) error {
		resp.Snapshot = newSnapshotResponse(snap)
		return nil
	}
	restart := func(context.Context) error {
		resp.Restart = true
		return nil
	}
	return apply, restart
}

// timeline builds a controller whose restorer only prepares restorations;
// the HTTP caller applies them.
func (h *Handler) timeline(prompter service.Prompter) *service.TimelineController {
	restorer := service.RestorerFunc(func(ctx context.Context, sessionID string, round int) (*service.Restoration, error) {
		if h.restore == nil {
			return nil, domain.ErrMissingArgument.WithDetails("restore service")
		}
		return h.restore.Prepare(ctx, sessionID, round)
	})
	return service.NewTimelineController(h.store, prompter, restorer, h.logger, h.svcMetrics)
}

// pendingTimeline builds a controller that restores through the lifecycle,
// which holds the restoration until the session ends.
func (h *Handler) pendingTimeline(prompter service.Prompter) *service.TimelineController {
	return service.NewTimelineController(h.store, prompter, h.lifecycle, h.logger, h.svcMetrics)
}

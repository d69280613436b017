package handler

import (
	"context"
	"net/http"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
)

// handleSize handles GET /v1/maintenance/size.
func (h *Handler) handleSize(w http.ResponseWriter, r *http.Request) {
	resp, err := h.calcSize(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleGC handles POST /v1/maintenance/gc.
func (h *Handler) handleGC(w http.ResponseWriter, r *http.Request) {
	var req RetentionRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if h.maintenance == nil {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("maintenance worker"))
		return
	}

	type result struct {
		report *service.GCReport
		err    error
	}
	done := make(chan result, 1)
	err := h.maintenance.Collect(req.provider(), func(report *service.GCReport, err error) {
		done <- result{report, err}
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	select {
	case res := <-done:
		if res.err != nil && res.report == nil {
			h.handleServiceError(w, r, res.err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, res.report)
	case <-r.Context().Done():
		h.handleServiceError(w, r, r.Context().Err())
	}
}

// handleWipe handles POST /v1/maintenance/wipe. The body must confirm the
// wipe.
func (h *Handler) handleWipe(w http.ResponseWriter, r *http.Request) {
	var req WipeRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if !req.Confirm {
		h.handleServiceError(w, r, domain.ErrConfirmationDeclined.WithDetails("wipe requires confirm"))
		return
	}
	if h.maintenance == nil {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("maintenance worker"))
		return
	}

	done := make(chan error, 1)
	if err := h.maintenance.Wipe(func(err error) { done <- err }); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	select {
	case err := <-done:
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
	case <-r.Context().Done():
		h.handleServiceError(w, r, r.Context().Err())
		return
	}

	size, err := h.calcSize(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, WipeResponse{Wiped: true, Size: *size})
}

// handleMainMenu handles POST /v1/events/main-menu. The host reports its
// live sessions and stale ones are collected unless a load is pending. The
// lifecycle queues the pass on the maintenance worker.
func (h *Handler) handleMainMenu(w http.ResponseWriter, r *http.Request) {
	var req RetentionRequest
	if err := decodeBody(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	report, err := h.lifecycle.OnMainMenu(r.Context(), req.provider())
	if err != nil && report == nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, report)
}

// handleSessionEnding handles POST /v1/events/session-ending. A restore
// held pending by an in-session activate is cleared and handed back for
// the host to load.
func (h *Handler) handleSessionEnding(w http.ResponseWriter, r *http.Request) {
	if h.lifecycle == nil {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("lifecycle"))
		return
	}

	resp := &ActivateResponse{}
	apply, restart := resp.capture()
	restoration, err := h.lifecycle.ApplyPending(r.Context(), apply, restart)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if restoration == nil {
		h.writeJSON(w, r, http.StatusOK, SessionEndingResponse{})
		return
	}

	resp.RestorationID = restoration.ID
	resp.SessionID = restoration.SessionID
	resp.Round = restoration.Round
	h.writeJSON(w, r, http.StatusOK, SessionEndingResponse{Applied: true, Restoration: resp})
}

// handleCancelPending handles DELETE /v1/events/pending.
func (h *Handler) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	if h.lifecycle == nil {
		h.handleServiceError(w, r, domain.ErrMissingArgument.WithDetails("lifecycle"))
		return
	}
	h.lifecycle.CancelPending()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) calcSize(ctx context.Context) (*SizeResponse, error) {
	if h.maintenance == nil {
		return nil, domain.ErrMissingArgument.WithDetails("maintenance worker")
	}

	type result struct {
		bytes int64
		err   error
	}
	done := make(chan result, 1)
	err := h.maintenance.CalcSize(func(n int64, err error) {
		done <- result{n, err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return &SizeResponse{Bytes: res.bytes, Label: service.FormatSize(res.bytes)}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

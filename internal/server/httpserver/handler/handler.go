package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/doombubbles/time-machine/internal/core/domain"
	"github.com/doombubbles/time-machine/internal/core/service"
	"github.com/doombubbles/time-machine/internal/telemetry/logger"
)

// maxBodyBytes bounds request bodies. Snapshot payloads are serialized
// game states and stay well below this.
const maxBodyBytes = 64 << 20

// Deps holds the services behind the HTTP API.
type Deps struct {
	Store       service.SnapshotStore
	Codec       service.SnapshotCodec
	Lifecycle   *service.Lifecycle
	Restore     *service.RestoreService
	Maintenance *service.Maintenance
	Metrics     service.Metrics
	Registry    RegistryHandler
	Logger      *slog.Logger
}

// RegistryHandler serves the metrics exposition. metric.Registry
// implements it.
type RegistryHandler interface {
	Handler() http.Handler
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	store       service.SnapshotStore
	codec       service.SnapshotCodec
	lifecycle   *service.Lifecycle
	restore     *service.RestoreService
	maintenance *service.Maintenance
	svcMetrics  service.Metrics
	metrics     http.Handler
	logger      *slog.Logger
	mux         *http.ServeMux
}

// Routes lists every pattern the Handler serves, for the router to wrap.
var Routes = []string{
	"GET /health",
	"GET /metrics",
	"GET /v1/sessions",
	"DELETE /v1/sessions/{id}",
	"GET /v1/sessions/{id}/rounds",
	"GET /v1/sessions/{id}/rounds/{round}",
	"POST /v1/sessions/{id}/rounds/{round}/complete",
	"GET /v1/sessions/{id}/timeline",
	"POST /v1/sessions/{id}/timeline/{round}/activate",
	"GET /v1/maintenance/size",
	"POST /v1/maintenance/gc",
	"POST /v1/maintenance/wipe",
	"POST /v1/events/main-menu",
	"POST /v1/events/session-ending",
	"DELETE /v1/events/pending",
}

// New creates a new Handler with the given services.
func New(deps Deps) *Handler {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	h := &Handler{
		store:       deps.Store,
		codec:       deps.Codec,
		lifecycle:   deps.Lifecycle,
		restore:     deps.Restore,
		maintenance: deps.Maintenance,
		svcMetrics:  deps.Metrics,
		logger:      l,
		mux:         http.NewServeMux(),
	}
	if deps.Registry != nil {
		h.metrics = deps.Registry.Handler()
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /metrics", h.handleMetrics)

	h.mux.HandleFunc("GET /v1/sessions", h.handleListSessions)
	h.mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleDeleteSession)
	h.mux.HandleFunc("GET /v1/sessions/{id}/rounds", h.handleListRounds)
	h.mux.HandleFunc("GET /v1/sessions/{id}/rounds/{round}", h.handleGetRound)
	h.mux.HandleFunc("POST /v1/sessions/{id}/rounds/{round}/complete", h.handleRoundCompleted)

	h.mux.HandleFunc("GET /v1/sessions/{id}/timeline", h.handleTimeline)
	h.mux.HandleFunc("POST /v1/sessions/{id}/timeline/{round}/activate", h.handleActivate)

	h.mux.HandleFunc("GET /v1/maintenance/size", h.handleSize)
	h.mux.HandleFunc("POST /v1/maintenance/gc", h.handleGC)
	h.mux.HandleFunc("POST /v1/maintenance/wipe", h.handleWipe)

	h.mux.HandleFunc("POST /v1/events/main-menu", h.handleMainMenu)
	h.mux.HandleFunc("POST /v1/events/session-ending", h.handleSessionEnding)
	h.mux.HandleFunc("DELETE /v1/events/pending", h.handleCancelPending)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID returns the request ID set by the RequestID middleware, or
// the caller's header when the middleware is not installed.
func getRequestID(r *http.Request) string {
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := errorCodeToHTTPStatus(de.Code)
		if status >= 500 {
			h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		}
		h.writeError(w, r, status, de.Code, de.Message, detailsOf(de))
		return
	}

	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "TM-SYS-5000", "internal server error", nil)
}

func detailsOf(de *domain.DomainError) any {
	if de.Details == "" {
		return nil
	}
	return de.Details
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes. The last
// four digits of a code carry its HTTP class.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4220"):
		return http.StatusUnprocessableEntity
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"), strings.HasSuffix(code, "-4002"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "TM-ARG-"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// pathRound parses the {round} path value.
func pathRound(r *http.Request) (int, error) {
	raw := r.PathValue("round")
	round := domain.ParseRound(raw)
	if round == 0 {
		return 0, domain.ErrInvalidArgument.WithDetailsf("round %q must be a positive integer", raw)
	}
	return round, nil
}

// pathCompletedRound parses the {round} path value of a completion event.
// Zero is allowed: completing round 0 stores round 1.
func pathCompletedRound(r *http.Request) (int, error) {
	raw := r.PathValue("round")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidArgument.WithDetailsf("round %q must be a non-negative integer", raw)
	}
	return n, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, domain.ErrInvalidArgument.WithDetailsf("%s must be an integer", name)
	}
	return n, true, nil
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrInvalidArgument.WithDetails("invalid request body").WithCause(err)
	}
	return nil
}

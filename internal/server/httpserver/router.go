package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/doombubbles/time-machine/internal/server/httpserver/handler"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Deps are the services behind the handlers.
	Deps handler.Deps

	// Metrics records per-route request metrics. Nil disables them.
	Metrics RequestMetrics

	// Logger for request logging.
	Logger *slog.Logger

	// RateLimit is the global request rate (requests/second). Zero disables it.
	RateLimit int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Deps.Logger == nil {
		cfg.Deps.Logger = logger
	}

	h := handler.New(cfg.Deps)

	// One limiter shared by every route.
	var limit Middleware
	if cfg.RateLimit > 0 {
		limit = RateLimit(cfg.RateLimit, cfg.RateLimit)
	}

	// Order: Recover -> RequestID -> Metrics -> RateLimit -> Audit -> Handler
	mux := http.NewServeMux()
	for _, pattern := range handler.Routes {
		middlewares := []Middleware{
			Recover(logger),
			RequestID(),
			Metrics(cfg.Metrics, pattern),
		}
		if limit != nil && pattern != "GET /health" {
			middlewares = append(middlewares, limit)
		}
		if cfg.EnableAudit {
			middlewares = append(middlewares, Audit(logger))
		}
		mux.Handle(pattern, Chain(h, middlewares...))
	}
	return mux
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		RateLimit:   200,
		EnableAudit: true,
	}
}

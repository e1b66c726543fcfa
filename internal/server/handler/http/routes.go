package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/mindease/internal/middleware"
	"github.com/atinyakov/mindease/internal/session"
)

// RouterOptions carries the optional parts of the middleware chain.
// Zero values disable the corresponding feature.
type RouterOptions struct {
	// Sessions loads the request session for the /api/auth routes.
	Sessions *session.Manager
	// Metrics enables request metrics and the /metrics endpoint.
	Metrics *middleware.Metrics
	// Limiter and the per-minute limits throttle signup and login per client IP.
	Limiter         middleware.RateLimiter
	RateLimitSignup int
	RateLimitLogin  int
	// CORSOrigins enables CORS for the listed origins ("*" for any).
	CORSOrigins []string
}

// NewRouter constructs the HTTP handler for the MindEase API.
//
// Routes:
//
//	POST /api/auth/signup  → authHandler.Signup (rate limited)
//	POST /api/auth/login   → authHandler.Login  (rate limited)
//	POST /api/auth/logout  → authHandler.Logout
//	GET  /api/auth/me      → authHandler.Me
//	GET  /health           → healthHandler.Health
//	GET  /metrics          → Prometheus exposition, when Metrics is set
//
// Every request gets a request id, panic recovery, request logging,
// metrics and CORS. The /api/auth routes additionally only accept
// application/json bodies and carry the session in their context.
func NewRouter(
	authHandler *AuthHandler,
	healthHandler *HealthHandler,
	logger *zap.Logger,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(middleware.CORS(opts.CORSOrigins))
	}

	r.Get("/health", healthHandler.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		if opts.Sessions != nil {
			r.Use(middleware.Sessions(opts.Sessions, logger))
		}

		r.With(middleware.RateLimit(opts.Limiter, "/api/auth/signup", opts.RateLimitSignup, time.Minute, opts.Metrics)).
			Post("/signup", authHandler.Signup)
		r.With(middleware.RateLimit(opts.Limiter, "/api/auth/login", opts.RateLimitLogin, time.Minute, opts.Metrics)).
			Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	return r
}

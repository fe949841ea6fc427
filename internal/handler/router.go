package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onoacademic/campusid/internal/observability/metrics"
	"github.com/onoacademic/campusid/internal/security/audit"
	"github.com/onoacademic/campusid/internal/security/auth"
	"github.com/onoacademic/campusid/internal/security/middleware"
	"github.com/onoacademic/campusid/internal/security/ratelimit"
)

// RouterDeps groups everything NewRouter wires together
type RouterDeps struct {
	Login    *LoginHandler
	Entities *EntityHandler
	Validate *ValidateHandler
	Health   *HealthHandler

	TokenManager       *auth.TokenManager
	APILimiter         *ratelimit.Limiter
	LoginLimiter       *ratelimit.Limiter
	Audit              *audit.Logger
	CORSAllowedOrigins []string
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the API.
//
// Middleware order: RequestID -> metrics -> CORS -> JWT -> rate limit -> audit -> JSON body.
// Health, readiness, metrics, login and field validation skip authentication.
func NewRouter(deps *RouterDeps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.CORS(deps.CORSAllowedOrigins))

	r.Get("/healthz", deps.Health.Health)
	r.Get("/readyz", deps.Health.Ready)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(deps.TokenManager, log))
		r.Use(middleware.RateLimitMiddleware(deps.APILimiter, log))
		r.Use(middleware.AuditMiddleware(deps.Audit))
		r.Use(middleware.JSONBody(log, middleware.DefaultMaxBodyBytes))

		r.With(middleware.RateLimitMiddleware(deps.LoginLimiter, log)).Post("/api/auth/login", deps.Login.Login)

		r.Post("/api/validate/{field}", deps.Validate.Field)
		r.Post("/api/forms/{form}", deps.Validate.Form)

		r.Route("/api/entities/{collection}", func(r chi.Router) {
			r.Get("/", deps.Entities.List)
			r.Post("/", deps.Entities.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", deps.Entities.Get)
				r.Patch("/", deps.Entities.Update)
				r.Delete("/", deps.Entities.Delete)
			})
		})
	})

	return r
}

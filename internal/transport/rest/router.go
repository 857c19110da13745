package rest

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/attendance-management/internal/attendance"
	"github.com/frahmantamala/attendance-management/internal/auth"
	"github.com/frahmantamala/attendance-management/internal/permission"
	"github.com/frahmantamala/attendance-management/internal/transport/middleware"
	"github.com/frahmantamala/attendance-management/internal/transport/swagger"
)

type Handlers struct {
	Health     *HealthHandler
	Auth       *auth.Handler
	Permission *permission.Handler
	Attendance *attendance.Handler
	RBAC       *permission.RBACAuthorization
}

type Options struct {
	Metrics        *middleware.HTTPMetrics
	MetricsHandler http.Handler
	// RateLimiter guards the public credential endpoints.
	RateLimiter *middleware.RateLimiter
	OpenAPI     []byte
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Instrument)
	}

	if opts.MetricsHandler != nil {
		router.Handle("/metrics", opts.MetricsHandler)
	}
	if opts.OpenAPI != nil {
		router.Get(swagger.SpecPath, swagger.SpecHandler(opts.OpenAPI))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.Group(func(pub chi.Router) {
				if opts.RateLimiter != nil {
					pub.Use(opts.RateLimiter.Middleware)
				}
				pub.Post("/signin", h.Auth.SignIn)
				pub.Post("/signup", h.Auth.SignUp)
			})

			ar.Group(func(pr chi.Router) {
				pr.Use(h.Auth.AuthMiddleware)
				pr.Post("/signout", h.Auth.SignOut)
				pr.Get("/me", h.Auth.Me)
			})
		})

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.Permission != nil && h.RBAC != nil {
				pr.Get("/permissions/me", h.Permission.Mine)

				pr.Group(func(admin chi.Router) {
					admin.Use(h.RBAC.RequireRole(auth.RoleAdmin))
					admin.Get("/permissions", h.Permission.List)
					admin.Put("/users/{id}/permissions", h.Permission.Toggle)
				})
			}

			if h.Attendance != nil && h.RBAC != nil {
				pr.With(h.RBAC.RequirePermission(permission.KeyMarkAttendance)).
					Post("/attendance/mark", h.Attendance.MarkAttendance)
				pr.With(h.RBAC.RequirePermission(permission.KeyReviewLeave)).
					Post("/leave-requests/review", h.Attendance.ReviewLeaveRequests)
			}
		})
	})
}

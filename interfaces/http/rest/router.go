// Package rest wires the chi router: public browsing routes take an
// optional token, write routes require one, and the cache admin surface
// requires the admin role on top.
package rest

import (
	"net/http"

	"patchshare-backend/interfaces/http/rest/handlers"
	"patchshare-backend/interfaces/http/rest/middleware"
	"patchshare-backend/pkg/auth"
	"patchshare-backend/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	patchHandler *handlers.PatchHandler
	adminHandler *handlers.AdminHandler
	validator    *auth.JWTValidator
	ipLimiter    *auth.IPRateLimiter
	userLimiter  *auth.UserRateLimiter
	tracer       *observability.Tracer
	enableCORS   bool
	logger       *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	patchHandler *handlers.PatchHandler,
	adminHandler *handlers.AdminHandler,
	validator *auth.JWTValidator,
	ipLimiter *auth.IPRateLimiter,
	userLimiter *auth.UserRateLimiter,
	tracer *observability.Tracer,
	enableCORS bool,
	logger *zap.Logger,
) *Router {
	return &Router{
		patchHandler: patchHandler,
		adminHandler: adminHandler,
		validator:    validator,
		ipLimiter:    ipLimiter,
		userLimiter:  userLimiter,
		tracer:       tracer,
		enableCORS:   enableCORS,
		logger:       logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Tracing(rt.tracer))

	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.patchshare.io"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	router.Route("/api/v1", func(r chi.Router) {
		// Public browsing; a valid token widens visibility to own
		// private patches.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuthenticate(rt.validator, rt.ipLimiter, rt.logger))

			r.Get("/patches", rt.patchHandler.ListLatest)
			r.Get("/patches/top-rated", rt.patchHandler.TopRated)
			r.Get("/patches/{patchID}", rt.patchHandler.GetPatch)
			r.Post("/patches/{patchID}/download", rt.patchHandler.DownloadPatch)
			r.Get("/users/{username}/patches", rt.patchHandler.ListByUser)
			r.Get("/users/{username}/patches/count", rt.patchHandler.CountByUser)
			r.Get("/categories", rt.patchHandler.ListCategories)
			r.Get("/categories/{category}/patches", rt.patchHandler.ListByCategory)
			r.Get("/tags/{tag}/patches", rt.patchHandler.ListByTag)
			r.Get("/search", rt.patchHandler.Search)
			r.Get("/stats", rt.patchHandler.GetStats)
		})

		// Writes require authentication.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.validator, rt.ipLimiter, rt.userLimiter, rt.logger))

			r.Post("/patches", rt.patchHandler.CreatePatch)
			r.Put("/patches/{patchID}", rt.patchHandler.UpdatePatch)
			r.Delete("/patches/{patchID}", rt.patchHandler.DeletePatch)
			r.Post("/patches/{patchID}/ratings", rt.patchHandler.RatePatch)
		})

		// Cache maintenance requires the admin role.
		r.Route("/admin/cache", func(r chi.Router) {
			r.Use(middleware.Authenticate(rt.validator, rt.ipLimiter, rt.userLimiter, rt.logger))
			r.Use(middleware.RequireRole("admin"))

			r.Get("/stats", rt.adminHandler.CacheStats)
			r.Post("/clear", rt.adminHandler.ClearCache)
			r.Post("/clear-pattern", rt.adminHandler.ClearCachePattern)
			r.Post("/invalidate-tag", rt.adminHandler.InvalidateTag)
			r.Post("/warmup", rt.adminHandler.WarmupCache)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

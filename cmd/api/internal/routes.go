package internal

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// NewRouter mounts the public and token-protected routes. metricsHandler
// may be nil.
func NewRouter(api *API, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(api.Log))
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// Public routes
	r.Get("/health", api.HandleHealth)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	r.Post("/api/token", api.HandleGenerateToken)

	// Analysis
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(api.JWT))
		r.Post("/api/validate", api.HandleValidate)
		r.Post("/api/backtest", api.HandleBacktest)
		r.Post("/api/optimize", api.HandleOptimize)
		r.Get("/api/trades", api.HandleGetTrades)
	})

	return r
}

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.limiter, g.logger))
		}
		r.Get("/status", g.handleStatus())
		if g.metrics != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{}))
		}
	})

	return r
}

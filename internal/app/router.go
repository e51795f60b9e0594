package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"booktracker/internal/catalog"
	"booktracker/internal/circulation"
	"booktracker/internal/metrics"
	"booktracker/internal/patron"
	"booktracker/internal/web"
)

// RouterDeps are the collaborators mounted on the HTTP router.
type RouterDeps struct {
	Logger      *slog.Logger
	Limiter     *web.RateLimiter
	Gatherer    prometheus.Gatherer
	Health      func(ctx context.Context) error
	Catalog     *catalog.Handler
	Patrons     *patron.Handler
	Circulation *circulation.Handler
}

// NewRouter builds the HTTP API: /healthz and /metrics at the root, the domain
// routes under /api/v1.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(web.Recover(d.Logger))
	r.Use(web.Logging(d.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				d.Logger.WarnContext(ctx, "health check failed", slog.Any("error", err))
				web.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}
		r.Use(middleware.AllowContentType("application/json"))
		d.Catalog.Routes(r)
		d.Patrons.Routes(r)
		d.Circulation.Routes(r)
	})
	return r
}

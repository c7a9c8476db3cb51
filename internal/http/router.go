// Package httpapi assembles the public router. Handlers live with their
// bounded context; this package only mounts them behind the shared middleware.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"immersion/internal/platform/metrics"
	"immersion/pkg/platform/httputil"
	"immersion/pkg/platform/middleware/auth"
	"immersion/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every handler mounted on the API.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config lists what the router mounts. Health checks run on /healthz, keyed by
// dependency name.
type Config struct {
	Validator auth.JWTValidator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Health    map[string]HealthCheck
	Handlers  []Registrar
}

// NewRouter wires the probes and every authenticated endpoint.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/healthz", healthz(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, cfg.Logger))
		for _, h := range cfg.Handlers {
			h.Register(r)
		}
	})
	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}

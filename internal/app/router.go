package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/ai-interview-auditor/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	})
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "ETag", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Mutating endpoints are rate limited and optionally guarded by Basic auth.
	r.Group(func(wr chi.Router) {
		if cfg.RateLimitPerMin > 0 {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
		}
		wr.Use(httpserver.BasicAuth(cfg.AdminUsername, cfg.AdminPasswordHash))
		wr.Post("/v1/uploads", srv.UploadHandler())
		wr.Post("/v1/sessions", srv.CreateSessionHandler())
		wr.Post("/v1/sessions/{id}/reset", srv.ResetHandler())
	})
	r.Get("/v1/sessions/{id}", srv.GetSessionHandler())
	r.Get("/v1/sessions/{id}/report", srv.ReportHandler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}

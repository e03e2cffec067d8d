// Package server wires the events API routes, middleware, and metrics
// endpoint into a single handler.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dossier-systems/dossier-ingest/internal/handlers"
	"github.com/dossier-systems/dossier-ingest/pkg/httputil"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"
	"github.com/dossier-systems/dossier-ingest/pkg/middleware"
)

// NewRouter constructs a ServeMux with the events API routes registered.
func NewRouter(h *handlers.EventsHandler, logger *logging.Logger) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()

	// Webhook intake and queue API
	mux.HandleFunc("POST /events", h.HandleEvent)
	mux.HandleFunc("GET /events/status/{id}", h.HandleStatus)
	mux.HandleFunc("GET /events/stats", h.HandleStats)
	mux.HandleFunc("POST /events/replay/{id}", h.HandleReplay)
	mux.HandleFunc("POST /events/reindex/{doctype}", h.HandleReindex)

	// Health endpoints
	mux.HandleFunc("GET /events/health", h.HandleHealth)
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	// Status and stats are read by browser dashboards; intake itself is
	// server-to-server and unaffected.
	cors := middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	return middleware.RequestID(accessLog(logger, cors(mux)))
}

// accessLog emits one structured line per request. Scrape endpoints are
// excluded to keep the log readable under scrape traffic.
func accessLog(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger.InfoContext(r.Context(), "request completed",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.IP(httputil.GetClientIP(r)),
			logging.Duration(time.Since(start).Milliseconds()),
			slog.Int("status_code", sw.status),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

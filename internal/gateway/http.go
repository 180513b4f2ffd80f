package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/agentrelay/internal/httpmw"
)

// JSON writes v as a JSON response body with status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Router assembles the gateway's HTTP surface: the WebSocket upgrade
// endpoint, a liveness probe, and a Prometheus scrape endpoint.
func Router(handler http.Handler, registry *Registry, reg *prometheus.Registry, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(httpmw.CORS(allowedOrigins))

	r.Get("/ws", handler.ServeHTTP)
	r.Get("/healthz", healthHandler(registry))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

func healthHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]any{
			"status":             "ok",
			"active_connections": registry.Len(),
		})
	}
}

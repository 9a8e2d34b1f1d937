package api

import (
	"net/http"

	"logsentry/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRouter wires every endpoint. A nil registry leaves /metrics unrouted.
func NewRouter(h *Handlers, registry *prometheus.Registry, allowedOrigins []string) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware(allowedOrigins))

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/ingest", h.Ingest).Methods("POST", "OPTIONS")
	api.HandleFunc("/logs", h.GetLogs).Methods("GET", "OPTIONS")

	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET", "OPTIONS")
	api.HandleFunc("/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("PUT", "OPTIONS")

	api.HandleFunc("/rules", h.GetRules).Methods("GET", "OPTIONS")
	api.HandleFunc("/rules", h.CreateRule).Methods("POST")
	api.HandleFunc("/rules/stats", h.GetRulesStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/rules/reload", h.ReloadRules).Methods("POST", "OPTIONS")
	api.HandleFunc("/rules/{id}", h.GetRule).Methods("GET", "OPTIONS")
	api.HandleFunc("/rules/{id}", h.UpdateRule).Methods("PUT")
	api.HandleFunc("/rules/{id}", h.DeleteRule).Methods("DELETE")

	api.HandleFunc("/stats", h.GetStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/ws/stats", h.WebSocketStats).Methods("GET", "OPTIONS")

	router.HandleFunc("/ws", h.Stream).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET", "OPTIONS")
	if registry != nil {
		router.Handle("/metrics", metrics.Handler(registry)).Methods("GET")
	}

	return router
}

func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowOrigin := "*"
			if origin != "" && !allowAll && allowed[origin] {
				allowOrigin = origin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "3600")
			if allowOrigin != "*" {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

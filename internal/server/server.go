package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgepool/forgepool/internal/api"
	"github.com/forgepool/forgepool/internal/config"
	"github.com/forgepool/forgepool/internal/ctrl"
)

// New constructs the HTTP handler for the server: the client API, the
// worker control-plane websocket, health and metrics.
func New(rt *ctrl.Router, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	r.Mount("/api", api.NewRouter(rt, cfg.APIKey))
	r.Handle(cfg.WSPath, ctrl.WSHandler(rt, cfg.WorkerKey))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

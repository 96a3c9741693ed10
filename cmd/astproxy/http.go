package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthSource состояние прокси для /healthz
type healthSource interface {
	Connected() bool
	Ready() bool
	SessionID() string
}

type healthResponse struct {
	Connected bool   `json:"connected"`
	Ready     bool   `json:"ready"`
	Session   string `json:"session,omitempty"`
}

// newRouter маршруты служебного HTTP сервера
func newRouter(p healthSource, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Connected: p.Connected(),
			Ready:     p.Ready(),
			Session:   p.SessionID(),
		}

		status := http.StatusOK
		if !resp.Connected {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus-bus-tracker/internal/logging"
	"campus-bus-tracker/internal/mapsync"
)

type server struct {
	poller    *poller
	hub       *wsHub
	routes    routeCatalog
	staticDir string
}

func (s *server) routesHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/vehicles", s.handleVehicles)
	r.Get("/api/routes", s.handleRoutes)
	r.Get("/data.json", s.hub.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	fs := http.FileServer(http.Dir(s.staticDir))
	r.With(withLogging).Handle("/*", fs)
	return r
}

func (s *server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	var vehicles []Vehicle
	if s.poller != nil {
		vehicles = s.poller.Snapshot()
	}
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	writeJSON(w, vehicles)
}

func (s *server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.routes.list()
	if routes == nil {
		routes = []mapsync.Route{}
	}
	writeJSON(w, routes)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("encode response")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		logging.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("static request")
	})
}

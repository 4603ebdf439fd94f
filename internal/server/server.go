// Package server exposes engine telemetry over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/engine"
	"github.com/born-ml/mathengine/native"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server serves device listings, the state of one engine and metrics.
type Server struct {
	router   *chi.Mux
	factory  *engine.Factory
	engine   *engine.Engine
	registry *prometheus.Registry
	log      zerolog.Logger
	addr     string
}

// New creates a server. registry may be nil to serve the default
// prometheus registry.
func New(addr string, f *engine.Factory, e *engine.Engine, registry *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		factory:  f,
		engine:   e,
		registry: registry,
		log:      log.With().Str("component", "server").Logger(),
		addr:     addr,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/v1/devices", s.handleDevices)
	s.router.Get("/v1/engine", s.handleEngine)

	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		s.router.Handle("/metrics", promhttp.Handler())
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

type devicesResponse struct {
	Devices []native.DeviceInfo `json:"devices"`
}

// EngineResponse describes the served engine.
type EngineResponse struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	State       string             `json:"state"`
	Threads     int                `json:"threads,omitempty"`
	Device      *native.DeviceInfo `json:"device,omitempty"`
	PeakMemory  uint64             `json:"peak_memory_bytes"`
	MemoryInUse uint64             `json:"memory_in_use_bytes"`
	Memory      native.MemoryStats `json:"memory"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, devicesResponse{Devices: s.factory.Devices()})
}

func (s *Server) handleEngine(w http.ResponseWriter, _ *http.Request) {
	if s.engine == nil {
		s.writeError(w, http.StatusNotFound, "no engine")
		return
	}

	resp := EngineResponse{
		ID:      s.engine.ID(),
		Kind:    s.engine.Kind().String(),
		State:   s.engine.State().String(),
		Threads: s.engine.ThreadCount(),
	}
	stats, err := s.engine.MemoryStats()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp.PeakMemory, resp.MemoryInUse, resp.Memory = stats.Peak, stats.InUse, stats

	if info, err := s.engine.DeviceInfo(); err == nil {
		resp.Device = &info
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

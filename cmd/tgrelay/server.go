package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tgrelay/internal/constants"
	"tgrelay/internal/events"
	"tgrelay/internal/metrics"
	"tgrelay/internal/middleware"
	"tgrelay/internal/models"
	"tgrelay/internal/router"
	"tgrelay/pkg/circuitbreaker"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// QueueLength reports pending gateway work.
type QueueLength interface {
	Len() int
}

// ServerDeps are the runtime components the ops endpoints report on.
type ServerDeps struct {
	Events  events.Log
	Breaker *circuitbreaker.CircuitBreaker
	Gateway QueueLength
	Router  *router.ChannelRouter
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	deps    ServerDeps
	started time.Time
	server  *http.Server
}

type healthResponse struct {
	Status         string `json:"status"`
	CircuitBreaker string `json:"circuit_breaker,omitempty"`
	GatewayQueue   int    `json:"gateway_queue"`
	Channels       int    `json:"channels"`
	UptimeSec      int64  `json:"uptime_sec"`
}

func NewServer(cfg *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		deps:    deps,
		started: time.Now(),
	}
	s.setupRoutes()

	port := cfg.Server.Port
	if port == "" {
		port = fmt.Sprintf("%d", constants.DefaultServerPort)
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/metrics/prometheus", metrics.PrometheusHandler(metrics.GetRegistry())).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.logger.Infof("Starting ops server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports 503 while the Bot API breaker is open, since no
// delivery can succeed until it closes again.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			UptimeSec: int64(time.Since(s.started).Seconds()),
		}
		if s.deps.Gateway != nil {
			resp.GatewayQueue = s.deps.Gateway.Len()
		}
		if s.deps.Router != nil {
			resp.Channels = s.deps.Router.Len()
		}

		status := http.StatusOK
		if s.deps.Breaker != nil {
			state := s.deps.Breaker.GetState()
			resp.CircuitBreaker = state.String()
			if state == circuitbreaker.StateOpen {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		s.writeJSON(w, status, resp)
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.deps.Events.Events(r.Context())
		if err != nil {
			s.logger.WithError(err).Error("Failed to read event log for stats")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, events.Summarize(all))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// Package ops provides the operational HTTP server: health checks and
// queue introspection for the worker process.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fill-tracker/internal/config"
	"github.com/fill-tracker/internal/logging"
	"github.com/fill-tracker/internal/queue"
)

// Pinger reports backing-store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueInspector reports queue depths.
type QueueInspector interface {
	Depth(ctx context.Context, queueName string) (int64, error)
}

// Server serves the worker's operational endpoints.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	postgres   Pinger
	queues     QueueInspector
	logger     *logging.Logger
}

func NewServer(cfg *config.OpsConfig, postgres Pinger, queues QueueInspector, logger *logging.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		postgres: postgres,
		queues:   queues,
		logger:   logger,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/queues", s.handleQueues).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if err := s.postgres.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Error("health check failed")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]string{
		"status":  status,
		"service": "fill-tracker",
	})
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]int64)
	for _, name := range []string{
		queue.QueueTransactionProcessing,
		queue.QueueAddressProcessing,
		queue.QueueEventProcessing,
	} {
		depth, err := s.queues.Depth(r.Context(), name)
		if err != nil {
			s.logger.WithField("queue", name).WithError(err).Error("failed to read queue depth")
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to read queue depths",
			})
			return
		}
		depths[name] = depth
	}

	respondJSON(w, http.StatusOK, depths)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting ops server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Package api serves the operator endpoints: health, metrics and the
// payment attempts whose outcome the client never learned.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payflow/pkg/journal"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/metrics/memory"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CircuitReporter exposes the state of a circuit breaker.
type CircuitReporter interface {
	Name() string
	State() metrics.CircuitState
}

// Server provides HTTP endpoints for monitoring and reconciliation.
type Server struct {
	journal journal.Store
	metrics metrics.MetricsCollector
	server  *http.Server
	router  *mux.Router
	config  ServerConfig
	logger  *logging.Logger
	started time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8081")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// Gatherer backs /metrics; without one /metrics reports that Prometheus
	// is not configured
	Gatherer prometheus.Gatherer

	// Circuit is reported by /status when set
	Circuit CircuitReporter

	// MaxUnresolved caps /attempts/unresolved (default: 100)
	MaxUnresolved int
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:       ":8081",
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  10 * time.Second,
		MaxUnresolved: 100,
	}
}

// NewServer creates a new API server over store.
func NewServer(store journal.Store, collector metrics.MetricsCollector, config ServerConfig) *Server {
	if config.MaxUnresolved <= 0 {
		config.MaxUnresolved = 100
	}

	s := &Server{
		journal: store,
		metrics: metrics.OrNoOp(collector),
		config:  config,
		logger:  logging.Global().Named("api"),
		started: time.Now(),
	}

	router := mux.NewRouter()

	// Health and status endpoints
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Metrics endpoints
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	// Reconciliation endpoints
	router.HandleFunc("/attempts/unresolved", s.handleUnresolved).Methods(http.MethodGet)
	router.HandleFunc("/attempts/{transaction_id}", s.handleAttempt).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	s.router = router
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	s.logger.Info("API server started", zap.String("address", s.config.Address))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth returns a simple health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStatus returns detailed status information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
		"journal":   s.journal.Name(),
	}

	if s.config.Circuit != nil {
		response["circuit_breaker"] = map[string]string{
			"name":  s.config.Circuit.Name(),
			"state": s.config.Circuit.State().String(),
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleMetrics returns metrics in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.config.Gatherer != nil {
		promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "# Prometheus metrics are not configured\n")
}

// handleMetricsJSON returns metrics in JSON format.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if mc, ok := s.metrics.(*memory.MemoryCollector); ok {
		writeJSON(w, http.StatusOK, mc.Snapshot())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"error": "Metrics collector does not support JSON snapshot",
	})
}

// handleUnresolved lists attempts whose outcome is unknown, oldest first.
func (s *Server) handleUnresolved(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUnresolved
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": "limit must be a positive integer",
			})
			return
		}
		if n < limit {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := s.journal.Unresolved(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list unresolved attempts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(entries),
		"attempts": entries,
	})
}

// handleAttempt returns the journal entry of one transaction.
func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["transaction_id"]

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entry, err := s.journal.Get(ctx, id)
	if errors.Is(err, journal.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":          "attempt not found",
			"transaction_id": id,
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

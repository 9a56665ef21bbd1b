package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raaihank/msgguard/internal/audit"
	"github.com/raaihank/msgguard/internal/config"
	"github.com/raaihank/msgguard/internal/events"
	"github.com/raaihank/msgguard/internal/filter"
	"github.com/raaihank/msgguard/internal/logger"
	"go.uber.org/zap"
)

// Server exposes the engine's two lifecycle entry points over HTTP, plus
// health, info, metrics and the event WebSocket.
type Server struct {
	config *config.Config
	logger *logger.Logger
	engine *filter.Engine
	audit  *audit.Store
	hub    *events.Hub
	router *mux.Router
	server *http.Server
}

// New creates a new server instance. The audit store and event hub may be
// nil when their subsystems are disabled.
func New(cfg *config.Config, log *logger.Logger, engine *filter.Engine, auditStore *audit.Store, hub *events.Hub) *Server {
	router := mux.NewRouter()

	s := &Server{
		config: cfg,
		logger: log.WithComponent("server"),
		engine: engine,
		audit:  auditStore,
		hub:    hub,
		router: router,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Prometheus metrics
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// WebSocket endpoint for filter events
	if s.hub != nil {
		path := s.config.Events.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.handleWebSocket).Methods("GET")
	}

	// Evaluation endpoints, one per lifecycle stage
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.HandleFunc("/evaluate/after-model", s.handleAfterModel).Methods("POST")
	api.HandleFunc("/evaluate/before-send", s.handleBeforeSend).Methods("POST")

	if s.audit != nil {
		api.HandleFunc("/audit/recent", s.handleAuditRecent).Methods("GET")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting msgguard server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("active_rules", s.engine.ActiveRules()),
		zap.Bool("audit_enabled", s.audit != nil),
		zap.Bool("events_enabled", s.hub != nil),
	)

	if s.hub != nil {
		go s.hub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping msgguard server")
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"msgguard",
		"filter_enabled":%t,
		"active_rules":%d,
		"oracle_configured":%t
	}`, s.config.Filter.Enabled, s.engine.ActiveRules(), s.config.Oracle.Endpoint != "")
}

// handleWebSocket hands the connection to the event hub
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

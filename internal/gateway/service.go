package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/config"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/logger"
	"github.com/ecucondorSA/Devaltamedica-Independent-sub009/pkg/types"
)

// AccessChecker is the access decision boundary exposed to route handlers
type AccessChecker interface {
	CheckAccess(ctx context.Context, actor types.AccessContext, req types.AccessRequest) (*types.AccessResult, error)
	CheckBatchAccess(ctx context.Context, actor types.AccessContext, requests []types.AccessRequest) ([]*types.AccessResult, error)
	GrantEmergencyAccess(ctx context.Context, actor types.AccessContext, req types.AccessRequest, justification, approver string) (*types.AccessResult, error)
}

// TrailReader reads persisted audit entries for compliance tooling
type TrailReader interface {
	Query(ctx context.Context, filter *types.AuditFilter) ([]*types.AuditEntry, error)
}

// HealthChecker reports persistence health
type HealthChecker interface {
	Health() error
}

// Service exposes the access engine and audit chain over HTTP
type Service struct {
	router         *mux.Router
	server         *http.Server
	config         *config.Config
	logger         *logger.Logger
	tokenValidator *TokenValidator
	accessEngine   AccessChecker
	trailReader    TrailReader
	healthChecker  HealthChecker
	startTime      time.Time
}

// NewService creates a new gateway service
func NewService(cfg *config.Config, accessEngine AccessChecker, trailReader TrailReader, healthChecker HealthChecker, log *logger.Logger) *Service {
	s := &Service{
		router:         mux.NewRouter(),
		config:         cfg,
		logger:         log,
		tokenValidator: NewTokenValidator(cfg.JWT.SecretKey),
		accessEngine:   accessEngine,
		trailReader:    trailReader,
		healthChecker:  healthChecker,
		startTime:      time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return s
}

// setupRoutes registers routes and the middleware chain
func (s *Service) setupRoutes() {
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc(s.config.Monitoring.HealthPath, s.handleHealth).Methods("GET")
	if s.config.Monitoring.Enabled {
		s.router.Handle(s.config.Monitoring.MetricsPath, metricsHandler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/access/check", s.handleCheckAccess).Methods("POST")
	api.HandleFunc("/access/check-batch", s.handleCheckBatchAccess).Methods("POST")
	api.HandleFunc("/access/emergency", s.handleEmergencyAccess).Methods("POST")
	api.HandleFunc("/audit/verify", s.handleVerifyChain).Methods("POST")
	api.HandleFunc("/audit/merkle-root", s.handleMerkleRoot).Methods("POST")
	api.HandleFunc("/audit/trail", s.handleAuditTrail).Methods("GET")
}

// Start starts the HTTP server
func (s *Service) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting audit service")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, draining in-flight requests so
// pending audit appends complete before the process exits.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down audit service")
	return s.server.Shutdown(ctx)
}

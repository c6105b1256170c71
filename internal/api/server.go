// Package api exposes the Kestrel HTTP surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/credora-labs/kestrel/internal/assess"
	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/identity"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, service *assess.Service, registry *identity.Registry, ledger domain.LedgerRepository, cache domain.Cache, bus domain.EventBus, version string) *Server {
	handler := NewHandler(service, registry, ledger, cache, bus, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Fraud evaluation
	router.Post("/fraud/evaluate", handler.Evaluate)
	router.Get("/assessments/{id}", handler.GetAssessment)
	router.Get("/rules", handler.ListRules)

	// Loan ledger
	router.Post("/loans", handler.CreateLoan)
	router.Get("/loans", handler.ListLoans)
	router.Get("/loans/{id}", handler.GetLoan)
	router.Post("/loans/{id}/status", handler.UpdateLoanStatus)

	// Identity registry
	router.Post("/identity/register", handler.RegisterIdentity)
	router.Get("/identity/{wallet}", handler.GetIdentity)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware(cfg.CORSOrigins)) // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Formulas
		r.Post("/formulas/evaluate", handler.EvaluateFormula)
		r.Post("/formulas/validate", handler.ValidateFormula)
		r.Post("/formulas/test", handler.TestFormula)

		// Conditions
		r.Post("/conditions/evaluate", handler.EvaluateCondition)
		r.Post("/conditions/validate", handler.ValidateCondition)

		// Cost sharing
		r.Post("/cost-sharing/calculate", handler.CalculateCostSharing)
		r.Get("/cost-sharing/profiles/{benefitId}", handler.GetProfile)
		r.Put("/cost-sharing/profiles/{benefitId}", handler.PutProfile)
		r.Get("/members/{memberId}/accumulators", handler.GetAccumulator)

		// Rule evaluation
		r.Post("/eligibility/evaluate", handler.EvaluateEligibility)
		r.Get("/eligibility/{id}", handler.GetEligibility)
		r.Post("/preapproval/evaluate", handler.EvaluatePreapproval)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRules)
		r.Post("/rules/reload", handler.ReloadRules)
		r.Delete("/rules/{id}", handler.DeleteRule)

		// Calculations
		r.Post("/calculations", handler.CreateCalculation)
		r.Get("/calculations/{id}", handler.GetCalculation)
		r.Post("/calculations/{id}/approve", handler.ApproveCalculation)
		r.Post("/calculations/{id}/reject", handler.RejectCalculation)
		r.Post("/calculations/{id}/override", handler.OverrideCalculation)
	})

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

// Package api provides HTTP handlers and routing for the specializer service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	if s.handlers.config.TracingEnabled {
		return otelhttp.NewHandler(s.router, "specializer",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
	}
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Generated workflows, one per agent
	api.HandleFunc("/specializations", s.handlers.CreateSpecialization).Methods("POST")
	api.HandleFunc("/specializations", s.handlers.ListSpecializations).Methods("GET")
	api.HandleFunc("/specializations/{id}", s.handlers.GetSpecialization).Methods("GET")
	api.HandleFunc("/specializations/{id}", s.handlers.UpdateSpecialization).Methods("PUT")
	api.HandleFunc("/specializations/{id}", s.handlers.DeleteSpecialization).Methods("DELETE")
	api.HandleFunc("/specializations/{id}/workflow", s.handlers.GetWorkflow).Methods("GET")

	// Scheduling policy preview
	api.HandleFunc("/schedule/preview", s.handlers.PreviewSchedule).Methods("POST")

	// Template management
	api.HandleFunc("/templates/current", s.handlers.CurrentTemplate).Methods("GET")
	api.HandleFunc("/templates/current/document", s.handlers.TemplateDocument).Methods("GET")
	api.HandleFunc("/templates/validate", s.handlers.ValidateTemplate).Methods("POST")
	api.HandleFunc("/templates/reload", s.handlers.ReloadTemplate).Methods("POST")

	// CORS preflight; the middleware answers before the handler runs.
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	s.router.Use(s.handlers.limiter.Handler)
}

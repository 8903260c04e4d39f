package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/metrics"
	"github.com/tributary-ai/model-router/internal/middleware"
	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/types"
)

// Router is the routing engine the server fronts
type Router interface {
	Route(ctx context.Context, req *types.RoutingRequest) (*types.RoutingResult, error)
	Analyze(req *types.RoutingRequest) *types.TaskAnalysis
	Stats() types.RouterStats
}

// Catalog is the model registry
type Catalog interface {
	ListAvailable() []types.CapabilityEntry
	Get(id string) (types.CapabilityEntry, error)
}

// HealthReporter exposes provider health and records live traffic outcomes
type HealthReporter interface {
	GetAllHealth(ctx context.Context) (map[string]*types.HealthSnapshot, error)
	Track(providerID string) func(err error)
}

// Dependencies are the collaborators wired into the server. Providers,
// Metrics and Gatherer may be nil.
type Dependencies struct {
	Router    Router
	Catalog   Catalog
	Health    HealthReporter
	Providers *providers.Set
	Metrics   *metrics.Recorder
	Gatherer  prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	deps       Dependencies
	validator  *middleware.ValidationMiddleware
	httpServer *http.Server
	logger     *logrus.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ValidateAPI    bool          `yaml:"validate_api"`
}

// NewServer creates a new server instance
func NewServer(config *ServerConfig, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if deps.Router == nil || deps.Catalog == nil || deps.Health == nil {
		return nil, errors.New("router, catalog and health are required")
	}
	if deps.Providers == nil {
		deps.Providers = providers.NewSet()
	}

	validator, err := middleware.NewValidationMiddleware(openAPISpec, config.ValidateAPI, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize validation middleware: %w", err)
	}

	return &Server{
		deps:      deps,
		validator: validator,
		logger:    logger,
		config:    config,
	}, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting model router server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping model router server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler builds the routed handler with all middleware
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.CORS(s.config.AllowedOrigins))
	r.Use(s.contentTypeMiddleware)
	r.Use(middleware.BodyLimit(s.config.MaxRequestSize))
	r.Use(s.validator.Middleware)

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/routing/decision", s.handleRoutingDecision).Methods("POST", "OPTIONS")
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST", "OPTIONS")
	api.HandleFunc("/chat/completions", s.handleChatCompletion).Methods("POST", "OPTIONS")
	api.HandleFunc("/models", s.handleListModels).Methods("GET")
	api.HandleFunc("/routing/stats", s.handleRoutingStats).Methods("GET")
	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	// Health check endpoint (no /v1 prefix)
	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	s.setupDocsRoutes(r)

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveHTTP(r.Method, route, wrapped.statusCode, elapsed)
		}

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  middleware.RequestIDFromContext(r.Context()),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !isJSON(contentType) {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "invalid_request_error", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

// handleRoutingDecision returns a routing decision without executing the request
func (s *Server) handleRoutingDecision(w http.ResponseWriter, r *http.Request) {
	var req types.RoutingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	result, err := s.deps.Router.Route(r.Context(), &req)
	if err != nil {
		s.logger.WithError(err).Error("Routing failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "routing_error", fmt.Sprintf("Routing failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.RoutingRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Router.Analyze(&req))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.ModelsResponse{
		Object: "list",
		Data:   s.deps.Catalog.ListAvailable(),
	})
}

func (s *Server) handleRoutingStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Router.Stats())
}

// handleHealthCheck reports every provider. It answers 503 only when no
// provider is usable.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.deps.Health.GetAllHealth(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "api_error", err.Error())
		return
	}

	healthy, unhealthy := 0, 0
	for _, snap := range snapshots {
		switch snap.Status {
		case types.HealthHealthy:
			healthy++
		case types.HealthUnhealthy:
			unhealthy++
		}
	}

	status := "degraded"
	statusCode := http.StatusOK
	switch {
	case len(snapshots) > 0 && healthy == len(snapshots):
		status = "healthy"
	case len(snapshots) > 0 && unhealthy == len(snapshots):
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"providers": snapshots,
		"timestamp": time.Now().Unix(),
	})
}

// Helper functions

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return false
		}
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request_error", fmt.Sprintf("Invalid JSON: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errType, message string) {
	s.writeJSON(w, statusCode, types.NewErrorResponse(statusCode, errType, message))
}

func isJSON(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mediaType) == "application/json"
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

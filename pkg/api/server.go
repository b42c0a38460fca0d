package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/middleware"
	"github.com/platinummonkey/tally/pkg/observability"
)

// DefaultMaxBodyBytes caps request bodies when the config leaves it unset
const DefaultMaxBodyBytes = 10 << 20

// HealthResponse is the /api/health body
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServerConfig wires the HTTP server. Service and Resolver are required.
type ServerConfig struct {
	Service  AnalyticsService
	Resolver middleware.AccountResolver
	Logger   *observability.Logger

	// Optional: HTTP metrics and /metrics
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	// Optional: /healthz and /readyz
	Health *observability.HealthChecker

	// Optional: server spans go to the global provider when nil
	TracerProvider trace.TracerProvider

	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: cfg.Logger,
	}
	s.setupRoutes(cfg)

	s.handler = httputil.Chain(
		middleware.RequestID(cfg.Logger),
		httputil.RecoveryMiddleware(cfg.Logger),
		httputil.LoggingMiddleware(cfg.Logger),
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.MaxBytesMiddleware(cfg.MaxBodyBytes),
	)(s.router)

	opts := []otelhttp.Option{otelhttp.WithFilter(traced)}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	s.handler = otelhttp.NewHandler(s.handler, "tally.http", opts...)
	return s
}

// traced skips probes and scrapes
func traced(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return !strings.HasPrefix(r.URL.Path, "/api/health")
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg ServerConfig) {
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	// Public routes
	s.router.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	if cfg.Health != nil {
		observability.RegisterHealthRoutes(s.router, cfg.Health)
	}
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	// Authenticated routes
	gate := middleware.NewIdentityGate(cfg.Resolver, cfg.Logger)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(gate.Handler, httputil.ContentTypeMiddleware)
	NewAnalyticsHandlers(cfg.Service).RegisterRoutes(api)

	// a subrouter answers its own mismatches, so both routers need the JSON handlers
	for _, r := range []*mux.Router{s.router, api} {
		r.NotFoundHandler = http.HandlerFunc(httputil.WriteNotFound)
		r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, HealthResponse{
		Status:  "OK",
		Message: "Tally analytics API is running",
	})
}

// Router exposes the underlying router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

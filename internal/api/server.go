// Package api assembles the HTTP server: routing, middleware, and
// lifecycle for the riskscan REST API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redforge/riskscan/internal/api/handlers"
	"github.com/redforge/riskscan/internal/api/middleware"
	"github.com/redforge/riskscan/internal/health"
	"github.com/redforge/riskscan/internal/identity"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/metrics"
	"github.com/redforge/riskscan/internal/schedule"
)

// Config holds the HTTP server settings.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	EnableCORS      bool          `yaml:"enable_cors"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimit:       120,
		RateWindow:      time.Minute,
	}
}

// Dependencies are the collaborators the server routes requests to.
type Dependencies struct {
	Scans     handlers.ScanService
	Scheduler *schedule.Scheduler
	Checker   *health.Checker
	Resolver  identity.Resolver
	Version   string
}

// Server is the riskscan HTTP server.
type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer builds the router and middleware chain around the given
// collaborators.
func NewServer(config Config, deps Dependencies) *Server {
	logger := logging.Default().WithComponent("api")

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.routes(deps)

	var handler http.Handler = s.router
	if config.EnableCORS {
		handler = gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(config.AllowedOrigins),
			gorillahandlers.AllowedMethods([]string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			}),
			gorillahandlers.AllowedHeaders([]string{
				"Content-Type", "Authorization", "X-API-Key", "X-Request-ID",
			}),
		)(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// routes wires middleware and handlers. Health, version, and metrics are
// reachable without credentials; everything under /api/v1 except those
// requires an authenticated principal.
func (s *Server) routes(deps Dependencies) {
	s.router.Use(
		middleware.Recovery(s.logger),
		middleware.WithRequestID(),
		middleware.Logging(s.logger),
		middleware.Metrics(routeTemplate),
	)
	if s.config.RateLimit > 0 {
		s.router.Use(middleware.RateLimit(s.config.RateLimit, s.config.RateWindow))
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(
		metrics.Global().Registry(),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api/v1").Subrouter()

	// Health routes register first so they stay reachable without
	// credentials; everything after the catch-all subrouter requires one.
	handlers.NewHealthHandler(deps.Checker, deps.Version).Register(apiRouter)

	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(middleware.Authentication(deps.Resolver, s.logger))

	scanHandler := handlers.NewScanHandler(deps.Scans)
	scanHandler.Register(protected)
	handlers.NewWatchHandler(deps.Scans).Register(protected)
	handlers.NewRiskHandler().Register(protected)
	if deps.Scheduler != nil {
		handlers.NewScheduleHandler(deps.Scheduler).Register(protected)
	}
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. It blocks until the listener fails or Stop is
// called; a clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// routeTemplate names a request by its mux route template so metric
// labels stay bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

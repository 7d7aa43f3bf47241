// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	v1 "finchat/api/v1"
	"finchat/internal/config"
	"finchat/internal/gateway/handlers"
	"finchat/internal/gateway/middleware"
)

// Pinger checks a backing dependency for the /health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	config      config.ServerConfig
	rateLimiter *middleware.RateLimiter
	ready       atomic.Bool
	log         zerolog.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(cfg config.ServerConfig, api *v1.Router, health Pinger, version string, log zerolog.Logger) *Server {
	log = log.With().Str("component", "gateway").Logger()
	router := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Enabled:           cfg.RateLimit.Enabled,
	})

	// Recovery -> Logging -> RateLimit
	handler := middleware.Recovery(log)(
		middleware.Logging(log)(
			rateLimiter.RateLimit(router),
		),
	)

	var check func(context.Context) error
	if health != nil {
		check = health.PingContext
	}
	router.HandleFunc("/health", handlers.HealthHandler(version, check)).Methods(http.MethodGet)
	api.RegisterRoutes(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "no route for "+r.URL.Path)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusMethodNotAllowed, handlers.ErrCodeInvalidRequest, r.Method+" not allowed on "+r.URL.Path)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		router:      router,
		config:      cfg,
		rateLimiter: rateLimiter,
		log:         log,
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()
	s.ready.Store(true)
	defer s.ready.Store(false)

	s.log.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down gateway server")
	s.rateLimiter.Stop()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// IsReady reports whether the server is accepting requests.
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

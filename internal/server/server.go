// Package server implements the forecastd HTTP API server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/forecastd/internal/server/handlers"
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	APIKey         string
	MaxRequestBody int64
	RunRateLimit   float64
	RunBurst       int
	// WriteTimeout bounds a whole response, runs included. Zero disables it.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the forecastd HTTP API server.
type Server struct {
	opts     Options
	handlers *handlers.Handlers
	router   chi.Router
	logger   *slog.Logger

	mu  sync.Mutex
	srv *http.Server
}

// New creates a new HTTP server.
func New(opts Options, deps handlers.Deps) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := handlers.New(deps)
	h.SetLogger(opts.Logger)

	s := &Server{opts: opts, handlers: h, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(APIKeyMiddleware(opts.APIKey))
	r.Use(MaxBodyMiddleware(opts.MaxRequestBody))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests on the configured address. It returns
// nil after a graceful Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("forecastd server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/chainlab/chain"
)

const (
	// DefaultAddr is where ListenAndServe binds when no address is given.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultPath is the route prefix used for the assistant chain.
	DefaultPath = "chain"
)

var (
	// ErrInvalidPath is returned by Register for an empty or malformed path.
	ErrInvalidPath = errors.New("invalid route path")

	// ErrDuplicatePath is returned by Register when a path is already taken.
	ErrDuplicatePath = errors.New("route path already registered")
)

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)*$`)

// Server serves registered runnables over HTTP.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	mu        sync.Mutex
	runnables map[string]chain.Runnable
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server with only the health route.
func New(opts ...Option) *Server {
	s := &Server{
		logger:    slog.Default(),
		runnables: make(map[string]chain.Runnable),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router = r
	return s
}

// Register mounts the invoke, batch, stream and input_schema routes of
// runnable under path.
func (s *Server) Register(path string, runnable chain.Runnable) error {
	path = strings.Trim(path, "/")
	if !pathPattern.MatchString(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runnables[path]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, path)
	}
	s.runnables[path] = runnable

	h := &runnableHandler{runnable: runnable, logger: s.logger.With("path", "/"+path)}
	s.router.Route("/"+path, func(r chi.Router) {
		r.Post("/invoke", h.invoke)
		r.Post("/batch", h.batch)
		r.Post("/stream", h.stream)
		r.Get("/input_schema", h.inputSchema)
	})
	s.logger.Info("registered runnable", "path", "/"+path, "name", runnable.Name())
	return nil
}

// Handler returns the router for use with net/http or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"elapsed", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

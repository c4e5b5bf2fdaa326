package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	internal "github.com/ZanzyTHEbar/callbridge/callbridge"
	"github.com/ZanzyTHEbar/callbridge/callbridge/config"
	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/ZanzyTHEbar/callbridge/callbridge/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// TurnHandler runs one chat turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req pipeline.TurnRequest) (*pipeline.Result, error)
	Registry() *pipeline.Registry
}

// Sessions is the part of the session store the HTTP boundary needs.
type Sessions interface {
	WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Clear(ctx context.Context, sessionID string) error
	Backend() string
}

// HealthReporter exposes inference provider health.
type HealthReporter interface {
	Health() inference.Health
}

// Deps are the collaborators of the HTTP server. Health, Limiter and
// Metrics are optional.
type Deps struct {
	Turns       TurnHandler
	Sessions    Sessions
	Health      HealthReporter
	Limiter     ports.RateLimiter
	Metrics     http.Handler
	MetricsPath string // defaults to /metrics
	Logger      zerolog.Logger
}

// Server is the chi-based HTTP boundary.
type Server struct {
	deps      Deps
	cfg       config.ServerConfig
	router    chi.Router
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer builds the router.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger.With().Str("component", "http").Logger(),
		startTime: time.Now(),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	if s.deps.Metrics != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/chat/session/clear", s.handleClearSession)
		r.Get("/system/status", s.handleStatus)
		r.Get("/tools", s.handleListTools)
	})
	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = internal.DefaultHTTPAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info().Dur("timeout", timeout).Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error().
					Str("request_id", middleware.GetReqID(r.Context())).
					Interface("panic", rec).
					Msg("handler panic")
				s.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

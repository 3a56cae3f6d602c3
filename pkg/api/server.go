package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/camia/aviation/pkg/config"
	"github.com/camia/aviation/pkg/engine"
	"github.com/camia/aviation/pkg/policy"
	"github.com/camia/aviation/pkg/sweep"
	"github.com/camia/aviation/pkg/telemetry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// DefaultMaxSweepPoints bounds the grid of a single sweep request.
const DefaultMaxSweepPoints = sweep.DefaultMaxPoints

// Server exposes a model over HTTP.
type Server struct {
	model            *engine.SystemsModel
	graph            *engine.Graph
	policies         *policy.Engine
	metrics          *telemetry.Metrics
	logger           zerolog.Logger
	sweepConcurrency int
	maxSweepPoints   int
}

// Option configures a Server.
type Option func(*Server)

// WithPolicies checks every evaluation's inputs against p first.
func WithPolicies(p *policy.Engine) Option {
	return func(s *Server) { s.policies = p }
}

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger.With().Str("component", "api").Logger() }
}

// WithSweepConcurrency sets how many sweep points are evaluated at once.
func WithSweepConcurrency(n int) Option {
	return func(s *Server) { s.sweepConcurrency = n }
}

// WithMaxSweepPoints bounds the grid size of sweep requests.
func WithMaxSweepPoints(n int) Option {
	return func(s *Server) { s.maxSweepPoints = n }
}

// NewServer creates a server for model. The model is shared by all requests;
// every request evaluates against its own inputs map.
func NewServer(model *engine.SystemsModel, opts ...Option) *Server {
	s := &Server{
		model:          model,
		graph:          engine.BuildGraph(model),
		logger:         zerolog.Nop(),
		maxSweepPoints: DefaultMaxSweepPoints,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/transforms", s.listTransforms)
		r.Get("/transforms/{name}", s.getTransform)
		r.Get("/transforms/{name}/requirements", s.requirements)
		r.Get("/graph", s.getGraph)
		r.Post("/evaluate", s.evaluate)
		r.Post("/sweep", s.sweep)
		if s.policies != nil {
			r.Get("/policies", s.listPolicies)
		}
	})

	return r
}

// instrument logs each request and counts it by route pattern and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(route, status)
		}

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

// ListenAndServe serves the API on cfg.Addr until ctx is done, then shuts
// down gracefully within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// Requests see the values of ctx, such as telemetry, but are not
		// cancelled with it; Shutdown drains them instead.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", cfg.Addr).Int("transforms", s.model.Len()).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

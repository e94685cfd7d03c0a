// Package httpapi exposes the thought service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/omstasher/internal/runtime/config"
	"github.com/drblury/omstasher/internal/runtime/container"
	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// APIVersion is reported by the root endpoint.
const APIVersion = "0.1.0"

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(r *Runtime) {
		if g != nil {
			r.gatherer = g
		}
	}
}

// WithRegisterer sets where request metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runtime) { r.registerer = reg }
}

// WithShutdownTimeout bounds the graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.shutdownTimeout = d
		}
	}
}

// Runtime is the HTTP server process branch.
type Runtime struct {
	cfg             config.HTTPConfig
	services        *container.Services
	logger          loggingpkg.ServiceLogger
	gatherer        prometheus.Gatherer
	registerer      prometheus.Registerer
	shutdownTimeout time.Duration
}

// New returns an HTTP runtime serving services.
func New(cfg config.HTTPConfig, services *container.Services, logger loggingpkg.ServiceLogger, opts ...Option) *Runtime {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	r := &Runtime{
		cfg:             cfg,
		services:        services,
		logger:          logger.With(loggingpkg.LogFields{"component": "http"}),
		gatherer:        prometheus.DefaultGatherer,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler builds the routed handler with its middleware chain.
func (r *Runtime) Handler() (http.Handler, error) {
	requests, err := newRequestMetrics(r.registerer)
	if err != nil {
		return nil, err
	}

	h := &handlers{services: r.services, logger: r.logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /thoughts/{id}", h.getThought)
	mux.HandleFunc("GET /thoughts/{id}/thread", h.getThread)
	mux.HandleFunc("POST /thoughts", h.postThought)

	// scrapes stay out of the request counter
	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	root.Handle("/", chain(mux,
		correlationMiddleware(r.logger),
		tracingMiddleware(),
		requests.middleware(),
	))
	return root, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.ListenAddress())
	if err != nil {
		return errspkg.NewSetupError("http listener", err)
	}
	return r.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// returns ctx.Err().
func (r *Runtime) Serve(ctx context.Context, ln net.Listener) error {
	handler, err := r.Handler()
	if err != nil {
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	r.logger.Info("HTTP server listening", loggingpkg.LogFields{"address": ln.Addr().String()})

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("HTTP server shutdown failed", err, nil)
		_ = srv.Close()
	}
	<-served
	r.logger.Info("HTTP server stopped", nil)
	return ctx.Err()
}

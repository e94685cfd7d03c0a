package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/drblury/omstasher/internal/runtime/ids"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	"github.com/drblury/omstasher/internal/runtime/metrics"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

type middleware func(http.Handler) http.Handler

// chain applies mws so that the first one is the outermost.
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type correlationKey struct{}

// CorrelationID returns the id attached by the correlation middleware.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// correlationMiddleware reuses the caller's correlation id or creates a ULID.
func correlationMiddleware(logger loggingpkg.ServiceLogger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationHeader)
			if id == "" {
				id = ids.CreateULID()
			}
			w.Header().Set(CorrelationHeader, id)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
			logger.Debug("Request served", loggingpkg.LogFields{
				"method":         r.Method,
				"path":           r.URL.Path,
				"correlation_id": id,
				"duration":       time.Since(start).String(),
			})
		})
	}
}

// tracingMiddleware wraps each request in an OpenTelemetry span.
func tracingMiddleware() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracer := otel.Tracer("omstasher-http-tracer")
			ctx, span := tracer.Start(r.Context(), "HTTP "+r.Method)
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("correlation.id", CorrelationID(r.Context())),
				attribute.Int("http.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}

type requestMetrics struct {
	requests *prometheus.CounterVec
}

func newRequestMetrics(reg prometheus.Registerer) (*requestMetrics, error) {
	if reg == nil {
		return &requestMetrics{}, nil
	}
	requests, err := metrics.Register(reg, metrics.NewCounterVec("http", "requests_total",
		"HTTP requests served, by method and status code.", []string{"method", "code"}))
	if err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests}, nil
}

func (m *requestMetrics) middleware() middleware {
	return func(next http.Handler) http.Handler {
		if m.requests == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

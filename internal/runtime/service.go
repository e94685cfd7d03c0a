package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	"github.com/drblury/omstasher/internal/runtime/events"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

const tracerName = "omstasher-runtime-tracer"

// ServiceRuntime is the event handler of a service. ServiceID must be
// stable: messages carrying it as origin are never handed back.
type ServiceRuntime interface {
	ServiceID() uint8
	OnEvent(ctx context.Context, msg events.EventMessage) error
}

// RunOption configures RunService.
type RunOption func(*runSettings)

type runSettings struct {
	logger  loggingpkg.ServiceLogger
	metrics *Metrics
	tracer  trace.Tracer
	hooks   EventHooks
}

// WithLogger sets the loop logger.
func WithLogger(logger loggingpkg.ServiceLogger) RunOption {
	return func(s *runSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts handled events.
func WithMetrics(m *Metrics) RunOption {
	return func(s *runSettings) { s.metrics = m }
}

// WithHooks adds callbacks around each handler invocation.
func WithHooks(hooks EventHooks) RunOption {
	return func(s *runSettings) { s.hooks = s.hooks.Merge(hooks) }
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) RunOption {
	return func(s *runSettings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// RunService feeds every message received by consumer to handler, skipping
// the handler's own messages. It returns nil once the broadcaster is closed,
// a *errors.HandlerError as soon as the handler fails and ctx.Err() on
// cancellation. Lagging is logged and does not stop the loop.
func RunService(ctx context.Context, handler ServiceRuntime, consumer *events.Consumer, opts ...RunOption) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if consumer == nil {
		return errspkg.ErrConsumerRequired
	}

	settings := runSettings{
		logger: loggingpkg.NewNopLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	id := handler.ServiceID()
	logger := settings.logger.With(loggingpkg.LogFields{"service_id": id})
	logger.Info("Service runtime started", nil)

	for {
		msg, err := consumer.Recv(ctx)
		if err != nil {
			if errors.Is(err, events.ErrBroadcasterClosed) {
				logger.Info("Event source closed, service runtime stopping", nil)
				return nil
			}
			if missed, lagged := events.IsLag(err); lagged {
				settings.metrics.observe(id, outcomeLagged)
				logger.Error("Service runtime lagged behind, events were lost", err, loggingpkg.LogFields{
					"missed": missed,
				})
				continue
			}
			return err
		}

		if msg.Origin == id {
			settings.metrics.observe(id, outcomeSuppressed)
			logger.Trace("Skipping own event", loggingpkg.LogFields{"action": msg.Action.String()})
			continue
		}

		if err := handle(ctx, settings, handler, msg); err != nil {
			settings.metrics.observe(id, outcomeFailed)
			logger.Error("Service runtime handler failed", err, loggingpkg.LogFields{
				"origin":  msg.Origin,
				"subject": msg.Subject,
				"action":  msg.Action.String(),
			})
			return &errspkg.HandlerError{ServiceID: id, Err: err}
		}
		settings.metrics.observe(id, outcomeHandled)

		goruntime.Gosched()
	}
}

// handle runs the handler inside a span with the hooks around it. A panic
// in the handler is turned into an error.
func handle(ctx context.Context, settings runSettings, handler ServiceRuntime, msg events.EventMessage) (err error) {
	ctx, span := settings.tracer.Start(ctx, "HandleEvent")
	defer span.End()

	span.SetAttributes(
		attribute.Int("service.id", int(handler.ServiceID())),
		attribute.Int("event.origin", int(msg.Origin)),
		attribute.String("event.subject", msg.Subject),
		attribute.String("event.action", msg.Action.String()),
	)

	ec := EventContext{Context: ctx, ServiceID: handler.ServiceID(), Message: msg, StartedAt: time.Now()}
	settings.hooks.start(ec)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling %s: %v", msg.Action, r)
		}
		ec.Duration = time.Since(ec.StartedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("handler of service %d failed", handler.ServiceID()))
			settings.hooks.failed(ec, err)
			return
		}
		settings.hooks.done(ec)
	}()

	return handler.OnEvent(ctx, msg)
}

package runtime

import (
	"context"
	"time"

	"github.com/drblury/omstasher/internal/runtime/events"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// EventContext describes one handler invocation to hooks.
type EventContext struct {
	Context   context.Context
	ServiceID uint8
	Message   events.EventMessage
	StartedAt time.Time
	// Duration is only set in OnEventDone and OnEventError.
	Duration time.Duration
}

// EventHooks are callbacks around each handler invocation of a service
// runtime loop. Nil hooks are skipped.
type EventHooks struct {
	OnEventStart func(ec EventContext)
	OnEventDone  func(ec EventContext)
	OnEventError func(ec EventContext, err error)
}

// Merge returns hooks calling h first and then other.
func (h EventHooks) Merge(other EventHooks) EventHooks {
	return EventHooks{
		OnEventStart: chain2(h.OnEventStart, other.OnEventStart),
		OnEventDone:  chain2(h.OnEventDone, other.OnEventDone),
		OnEventError: chainError(h.OnEventError, other.OnEventError),
	}
}

func chain2(a, b func(EventContext)) func(EventContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ec EventContext) {
		a(ec)
		b(ec)
	}
}

func chainError(a, b func(EventContext, error)) func(EventContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ec EventContext, err error) {
		a(ec, err)
		b(ec, err)
	}
}

func (h EventHooks) start(ec EventContext) {
	if h.OnEventStart != nil {
		h.OnEventStart(ec)
	}
}

func (h EventHooks) done(ec EventContext) {
	if h.OnEventDone != nil {
		h.OnEventDone(ec)
	}
}

func (h EventHooks) failed(ec EventContext, err error) {
	if h.OnEventError != nil {
		h.OnEventError(ec, err)
	}
}

// LoggingHooks traces every invocation and its duration.
func LoggingHooks(logger loggingpkg.ServiceLogger) EventHooks {
	fields := func(ec EventContext) loggingpkg.LogFields {
		f := loggingpkg.LogFields{
			"service_id": ec.ServiceID,
			"origin":     ec.Message.Origin,
			"subject":    ec.Message.Subject,
			"action":     ec.Message.Action.String(),
		}
		if ec.Duration > 0 {
			f["duration"] = ec.Duration.String()
		}
		return f
	}
	return EventHooks{
		OnEventStart: func(ec EventContext) {
			logger.Trace("Event handling started", fields(ec))
		},
		OnEventDone: func(ec EventContext) {
			logger.Debug("Event handled", fields(ec))
		},
		OnEventError: func(ec EventContext, err error) {
			logger.Error("Event handling failed", err, fields(ec))
		},
	}
}

// AlertingHooks calls alert on every handler failure.
func AlertingHooks(alert func(ec EventContext, err error)) EventHooks {
	return EventHooks{OnEventError: alert}
}

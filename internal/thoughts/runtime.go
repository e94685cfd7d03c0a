package thoughts

import (
	"context"
	"fmt"

	"github.com/drblury/omstasher/internal/runtime/events"
	"github.com/drblury/omstasher/internal/runtime/ids"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// Runtime keeps the thought cache coherent with modifications advertised by
// other services.
type Runtime struct {
	service Service
	logger  loggingpkg.ServiceLogger
}

// NewRuntime returns the event handler of the thought service.
func NewRuntime(service Service, logger loggingpkg.ServiceLogger) *Runtime {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Runtime{service: service, logger: logger}
}

func (r *Runtime) ServiceID() uint8 { return ServiceID }

func (r *Runtime) OnEvent(_ context.Context, msg events.EventMessage) error {
	if msg.Subject != Subject {
		return nil
	}
	switch msg.Action.Kind {
	case events.Update, events.Delete:
		id, err := ids.ParseThoughtID(msg.Action.ID)
		if err != nil {
			return fmt.Errorf("thought event from service %d: %w", msg.Origin, err)
		}
		r.service.Forget(id)
		r.logger.Debug("Dropped cached thought", loggingpkg.LogFields{
			"thought_id": id.String(),
			"origin":     msg.Origin,
		})
	}
	return nil
}

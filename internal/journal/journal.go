// Package journal records every event crossing the broadcaster and mirrors
// it on a Watermill topic for in-process observers.
package journal

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/omstasher/internal/runtime/events"
	"github.com/drblury/omstasher/internal/runtime/ids"
	"github.com/drblury/omstasher/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	"github.com/drblury/omstasher/internal/runtime/metadata"
)

// ServiceID is the observer origin: the journal never publishes on the
// broadcaster, so it sees every event.
const ServiceID = events.ObserverOrigin

// outputBuffer bounds what a slow journal subscriber may hold before the
// pubsub starts blocking on it.
const outputBuffer = 64

// NewPubSub returns the in-process Watermill pubsub the journal writes to.
func NewPubSub(logger loggingpkg.ServiceLogger) *gochannel.GoChannel {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: outputBuffer,
	}, loggingpkg.NewWatermillAdapter(logger))
}

// Runtime logs events and forwards them to publisher. A nil publisher only
// logs.
type Runtime struct {
	publisher message.Publisher
	topic     string
	logger    loggingpkg.ServiceLogger
}

// NewRuntime returns the journal handler.
func NewRuntime(publisher message.Publisher, topic string, logger loggingpkg.ServiceLogger) *Runtime {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Runtime{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With(loggingpkg.LogFields{"component": "journal"}),
	}
}

func (r *Runtime) ServiceID() uint8 { return ServiceID }

func (r *Runtime) OnEvent(ctx context.Context, msg events.EventMessage) error {
	r.logger.Info("Event observed", loggingpkg.LogFields{
		"origin":  msg.Origin,
		"subject": msg.Subject,
		"action":  msg.Action.String(),
	})
	if r.publisher == nil {
		return nil
	}

	wm, err := Encode(msg)
	if err != nil {
		return err
	}
	wm.SetContext(ctx)
	if err := r.publisher.Publish(r.topic, wm); err != nil {
		return fmt.Errorf("journal: publish to %q: %w", r.topic, err)
	}
	return nil
}

// Encode wraps msg into a Watermill message with a JSON payload.
func Encode(msg events.EventMessage) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("journal: encode event: %w", err)
	}
	wm := message.NewMessage(ids.CreateULID(), payload)
	wm.Metadata = metadata.ToWatermill(metadata.ForEvent(msg))
	return wm, nil
}

// Decode reads back an event written by Encode.
func Decode(wm *message.Message) (events.EventMessage, error) {
	var msg events.EventMessage
	if err := jsoncodec.Unmarshal(wm.Payload, &msg); err != nil {
		return events.EventMessage{}, fmt.Errorf("journal: decode message %s: %w", wm.UUID, err)
	}
	return msg, nil
}

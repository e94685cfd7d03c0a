package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	"github.com/drblury/omstasher/internal/runtime/events"
)

// recordingRuntime remembers every event it is handed.
type recordingRuntime struct {
	id   uint8
	fail error

	mu   sync.Mutex
	seen []events.EventMessage
}

func (r *recordingRuntime) ServiceID() uint8 { return r.id }

func (r *recordingRuntime) OnEvent(_ context.Context, msg events.EventMessage) error {
	r.mu.Lock()
	r.seen = append(r.seen, msg)
	r.mu.Unlock()
	return r.fail
}

func (r *recordingRuntime) handled() []events.EventMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventMessage(nil), r.seen...)
}

func pumpAll(t *testing.T, b *events.Broadcaster) {
	t.Helper()
	for b.Pending() > 0 {
		require.NoError(t, b.Pump(context.Background()))
	}
}

func TestRunServiceSuppressesOwnEvents(t *testing.T) {
	b := events.New()
	producer, consumer := b.Subscribe()
	handler := &recordingRuntime{id: 1}

	own := events.NewEventMessage(1, "thought", events.Created("A"))
	foreign := events.NewEventMessage(2, "thought", events.Updated("A"))
	require.NoError(t, producer.Publish(own))
	require.NoError(t, producer.Publish(foreign))
	pumpAll(t, b)
	b.Close()

	err := RunService(context.Background(), handler, consumer)
	require.NoError(t, err, "a closed broadcaster ends the loop cleanly")
	assert.Equal(t, []events.EventMessage{foreign}, handler.handled())
}

func TestRunServiceHandlerErrorEndsLoop(t *testing.T) {
	b := events.New()
	producer, consumer := b.Subscribe()
	boom := errors.New("boom")
	handler := &recordingRuntime{id: 3, fail: boom}

	require.NoError(t, producer.Publish(events.NewEventMessage(1, "thought", events.Created("A"))))
	require.NoError(t, producer.Publish(events.NewEventMessage(1, "thought", events.Created("B"))))
	pumpAll(t, b)

	err := RunService(context.Background(), handler, consumer)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var handlerErr *errspkg.HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, uint8(3), handlerErr.ServiceID)
	assert.Len(t, handler.handled(), 1, "nothing is handled after the failure")
}

func TestRunServiceContinuesAfterLag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	b := events.New(events.WithCapacity(2))
	producer, consumer := b.Subscribe()
	handler := &recordingRuntime{id: 9}
	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, producer.Publish(events.NewEventMessage(1, "thought", events.Created(id))))
	}
	pumpAll(t, b)
	b.Close()

	require.NoError(t, RunService(context.Background(), handler, consumer, WithMetrics(m)))

	seen := handler.handled()
	require.Len(t, seen, 2)
	assert.Equal(t, "C", seen[0].Action.ID)
	assert.Equal(t, "D", seen[1].Action.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("9", outcomeLagged)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("9", outcomeHandled)))
}

func TestRunServiceStopsOnCancel(t *testing.T) {
	b := events.New()
	_, consumer := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := RunService(ctx, &recordingRuntime{id: 1}, consumer)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunServiceRequiresCollaborators(t *testing.T) {
	b := events.New()
	_, consumer := b.Subscribe()

	assert.ErrorIs(t, RunService(context.Background(), nil, consumer), errspkg.ErrHandlerRequired)
	assert.ErrorIs(t, RunService(context.Background(), &recordingRuntime{}, nil), errspkg.ErrConsumerRequired)
}

func TestRunServiceTracesHandledEvents(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := events.New()
	producer, consumer := b.Subscribe()
	require.NoError(t, producer.Publish(events.NewEventMessage(2, "thought", events.Deleted("A"))))
	pumpAll(t, b)
	b.Close()

	handler := &recordingRuntime{id: 1, fail: errors.New("boom")}
	err := RunService(context.Background(), handler, consumer, WithTracer(tp.Tracer("test")))
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HandleEvent", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

// Every live subscriber runs its own loop and sees the foreign events in
// publication order, while the publishing service never sees its own.
func TestServiceLoopsShareTheStream(t *testing.T) {
	b := events.New()
	thoughtsRuntime := &recordingRuntime{id: 1}
	journal := &recordingRuntime{id: 0}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := b.Producer()
	loops := []Branch{
		ServiceBranch(b, thoughtsRuntime),
		ServiceBranch(b, journal),
	}
	done := make(chan error, len(loops)+1)
	go func() { done <- b.Run(ctx) }()
	for _, loop := range loops {
		go func(run Branch) { done <- run(ctx) }(loop)
	}

	sent := []events.EventMessage{
		events.NewEventMessage(1, "thought", events.Created("A")),
		events.NewEventMessage(2, "thought", events.Updated("A")),
		events.NewEventMessage(1, "thought", events.Deleted("A")),
	}
	for _, msg := range sent {
		require.NoError(t, producer.Publish(msg))
	}

	require.Eventually(t, func() bool { return len(journal.handled()) == 3 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(thoughtsRuntime.handled()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, sent, journal.handled())
	assert.Equal(t, sent[1:2], thoughtsRuntime.handled())

	b.Close()
	for i := 0; i < len(loops)+1; i++ {
		<-done
	}
}

package thoughts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/omstasher/internal/runtime/events"
)

type serviceFixture struct {
	service  *BackendService
	store    *SQLStore
	consumer *events.Consumer
	b        *events.Broadcaster
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	b := events.New()
	producer, consumer := b.Subscribe()
	store := newTestStore(t)
	svc := NewService(store, producer, nil)
	t.Cleanup(func() { _ = svc.Close() })
	return serviceFixture{service: svc, store: store, consumer: consumer, b: b}
}

// nextEvent dispatches one queued message and reads it back.
func (f serviceFixture) nextEvent(t *testing.T) events.EventMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.b.Pump(ctx))
	msg, err := f.consumer.TryRecv()
	require.NoError(t, err)
	return msg
}

func TestPostThoughtCreatesAndAdvertises(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	env, err := f.service.PostThought(ctx, PostRequest{Content: "Hello\nworld", Keywords: []string{"greeting"}})
	require.NoError(t, err)
	require.NotNil(t, env.Thread)
	assert.Equal(t, "Hello", env.Thread.Title)

	msg := f.nextEvent(t)
	assert.Equal(t, events.NewEventMessage(ServiceID, Subject, events.Created(env.ThoughtID)), msg)

	id := uuid.MustParse(env.ThoughtID)
	got, err := f.service.GetThought(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, env.Content, got.Content)
}

func TestPostThoughtRejectsUnknownParent(t *testing.T) {
	f := newServiceFixture(t)
	parent := uuid.New()

	_, err := f.service.PostThought(context.Background(), PostRequest{ParentID: &parent, Content: "orphan"})
	assert.ErrorIs(t, err, ErrParentNotFound)
	assert.Equal(t, 0, f.b.Pending(), "nothing is advertised on failure")
}

func TestPostThoughtRejectsSelfParent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.PostThought(ctx, PostRequest{Content: "loop"})
	require.NoError(t, err)
	f.nextEvent(t)

	id := uuid.MustParse(created.ThoughtID)
	_, err = f.service.PostThought(ctx, PostRequest{ID: &id, ParentID: &id, Content: "loop"})
	assert.ErrorIs(t, err, ErrInvalidThought)
	assert.NotErrorIs(t, err, ErrParentNotFound)
}

func TestPostThoughtRejectsReparentingUnderDescendant(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, err := f.service.PostThought(ctx, PostRequest{Content: "a"})
	require.NoError(t, err)
	aID := uuid.MustParse(a.ThoughtID)
	b, err := f.service.PostThought(ctx, PostRequest{ParentID: &aID, Content: "b"})
	require.NoError(t, err)
	bID := uuid.MustParse(b.ThoughtID)
	f.nextEvent(t)
	f.nextEvent(t)

	_, err = f.service.PostThought(ctx, PostRequest{ID: &aID, ParentID: &bID, Content: "a"})
	require.ErrorIs(t, err, ErrInvalidThought)
	assert.Equal(t, 0, f.b.Pending(), "a rejected update is not advertised")

	thread, err := f.service.GetThread(ctx, aID)
	require.NoError(t, err)
	assert.Len(t, thread, 1)
}

func TestPostThoughtRejectsEmptyContent(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.PostThought(context.Background(), PostRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrInvalidThought)
}

func TestPostThoughtUpdatesExisting(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.PostThought(ctx, PostRequest{Content: "draft"})
	require.NoError(t, err)
	f.nextEvent(t)

	id := uuid.MustParse(created.ThoughtID)
	updated, err := f.service.PostThought(ctx, PostRequest{ID: &id, Content: "final"})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "creation time is kept")

	msg := f.nextEvent(t)
	assert.Equal(t, events.Updated(created.ThoughtID), msg.Action)
}

func TestPostThoughtWithChosenID(t *testing.T) {
	f := newServiceFixture(t)
	id := uuid.New()

	env, err := f.service.PostThought(context.Background(), PostRequest{ID: &id, Content: "chosen"})
	require.NoError(t, err)
	assert.Equal(t, id.String(), env.ThoughtID)
	assert.Equal(t, events.Creation, f.nextEvent(t).Action.Kind)
}

func TestGetThoughtUnknown(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.GetThought(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrThoughtNotFound)
}

func TestGetThread(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	root, err := f.service.PostThought(ctx, PostRequest{Content: "root"})
	require.NoError(t, err)
	rootID := uuid.MustParse(root.ThoughtID)

	answer, err := f.service.PostThought(ctx, PostRequest{ParentID: &rootID, Content: "answer"})
	require.NoError(t, err)
	require.NotNil(t, answer.Node)
	assert.Equal(t, root.ThoughtID, answer.Node.ParentThoughtID)

	thread, err := f.service.GetThread(ctx, uuid.MustParse(answer.ThoughtID))
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, root.ThoughtID, thread[0].ThoughtID)
	assert.Equal(t, answer.ThoughtID, thread[1].ThoughtID)

	_, err = f.service.GetThread(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrThoughtNotFound)
}

func TestForgetDropsCache(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	env, err := f.service.PostThought(ctx, PostRequest{Content: "cached"})
	require.NoError(t, err)
	id := uuid.MustParse(env.ThoughtID)
	assert.Equal(t, 1, f.service.Cached())

	// a write that bypasses the service is only visible once forgotten
	th, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	th.Content = "changed elsewhere"
	_, err = f.store.Update(ctx, *th)
	require.NoError(t, err)

	got, err := f.service.GetThought(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Content)

	f.service.Forget(id)
	assert.Equal(t, 0, f.service.Cached())

	got, err = f.service.GetThought(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "changed elsewhere", got.Content)
}

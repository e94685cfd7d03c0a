package runtime

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	"github.com/drblury/omstasher/internal/runtime/events"
)

func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestOrchestratorFirstReturnWins(t *testing.T) {
	boom := errors.New("http server failed")
	cancelled := make(chan error, 1)

	o := NewOrchestrator(nil).
		Add("waiter", func(ctx context.Context) error {
			err := blockUntilCancelled(ctx)
			cancelled <- err
			return err
		}).
		Add("http", func(context.Context) error { return boom })

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, <-cancelled, context.Canceled, "the other branches are cancelled")
}

func TestOrchestratorDispatcherReturnIsFatal(t *testing.T) {
	o := NewOrchestrator(nil).
		Add("service", blockUntilCancelled).
		AddFatalOnReturn("dispatcher", func(context.Context) error { return nil })

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrDispatcherStopped)
}

func TestOrchestratorDispatcherWithoutProducers(t *testing.T) {
	b := events.New()
	producer := b.Producer()
	producer.Close()

	o := NewOrchestrator(nil).
		Add("service", blockUntilCancelled).
		AddFatalOnReturn("dispatcher", DispatcherBranch(b))

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrDispatcherStopped)
	assert.ErrorIs(t, err, events.ErrNoProducers)
}

func TestOrchestratorGracefulBranchReturnsNil(t *testing.T) {
	o := NewOrchestrator(nil).
		Add("service", blockUntilCancelled).
		Add("signal", func(context.Context) error { return nil })

	assert.NoError(t, o.Run(context.Background()))
}

func TestOrchestratorWithoutBranches(t *testing.T) {
	assert.NoError(t, NewOrchestrator(nil).Run(context.Background()))
}

func TestSignalBranch(t *testing.T) {
	run := SignalBranch(nil, syscall.SIGUSR1)

	errs := make(chan error, 1)
	go func() { errs <- run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("signal branch did not return")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, run(ctx), context.Canceled)
}

func TestOrchestratorParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(nil).
		Add("service", blockUntilCancelled).
		AddFatalOnReturn("dispatcher", blockUntilCancelled)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, o.Run(ctx), context.Canceled)
}

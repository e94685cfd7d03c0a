package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	"github.com/drblury/omstasher/internal/runtime/events"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// Branch is one long-running task of the process.
type Branch func(ctx context.Context) error

type branch struct {
	name          string
	run           Branch
	fatalOnReturn bool
}

// Orchestrator races its branches: the first one to return decides the
// outcome and the others are cancelled.
type Orchestrator struct {
	logger   loggingpkg.ServiceLogger
	branches []branch
}

// NewOrchestrator returns an empty orchestrator.
func NewOrchestrator(logger loggingpkg.ServiceLogger) *Orchestrator {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Orchestrator{logger: logger}
}

// Add registers a branch whose return value becomes the result of Run when
// it finishes first.
func (o *Orchestrator) Add(name string, run Branch) *Orchestrator {
	o.branches = append(o.branches, branch{name: name, run: run})
	return o
}

// AddFatalOnReturn registers a branch that must never finish on its own,
// such as the event dispatcher. Its return always ends the race with
// ErrDispatcherStopped.
func (o *Orchestrator) AddFatalOnReturn(name string, run Branch) *Orchestrator {
	o.branches = append(o.branches, branch{name: name, run: run, fatalOnReturn: true})
	return o
}

// Run starts every branch and blocks until all of them have returned. The
// error of the first branch to return is the result, unless ctx itself was
// cancelled, in which case Run returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.branches) == 0 {
		return nil
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(raceCtx)

	var (
		once   sync.Once
		result error
	)
	for _, b := range o.branches {
		g.Go(func() error {
			err := b.run(gctx)
			if b.fatalOnReturn {
				if err == nil {
					err = errspkg.ErrDispatcherStopped
				} else {
					err = fmt.Errorf("%w: %w", errspkg.ErrDispatcherStopped, err)
				}
			}
			once.Do(func() {
				result = err
				fields := loggingpkg.LogFields{"branch": b.name}
				if err != nil {
					o.logger.Error("Process branch returned, shutting down", err, fields)
				} else {
					o.logger.Info("Process branch returned, shutting down", fields)
				}
				cancel()
			})
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return result
}

// SignalBranch returns nil when one of signals is received, SIGINT and
// SIGTERM by default, and ctx.Err() when cancelled first.
func SignalBranch(logger loggingpkg.ServiceLogger, signals ...os.Signal) Branch {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return func(ctx context.Context) error {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			logger.Info("Received signal, stopping", loggingpkg.LogFields{"signal": sig.String()})
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// DispatcherBranch runs the broadcaster loop.
func DispatcherBranch(b *events.Broadcaster) Branch {
	return b.Run
}

// ServiceBranch runs handler against its own subscription. The producer
// handed out with the subscription is held for the lifetime of the loop.
func ServiceBranch(b *events.Broadcaster, handler ServiceRuntime, opts ...RunOption) Branch {
	producer, consumer := b.Subscribe()
	return func(ctx context.Context) error {
		defer producer.Close()
		defer consumer.Close()
		return RunService(ctx, handler, consumer, opts...)
	}
}

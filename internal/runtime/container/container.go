package container

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/omstasher/internal/runtime/config"
	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	"github.com/drblury/omstasher/internal/runtime/events"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	"github.com/drblury/omstasher/internal/thoughts"
)

// Services is the registry of domain services handed to the outer layers.
type Services struct {
	Thoughts thoughts.Service
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger shared by every built dependency.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer sets where build, broadcaster and runtime metrics are
// registered. Nil disables metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
		c.registererSet = true
	}
}

// WithOpener replaces sql.Open.
func WithOpener(open Opener) Option {
	return func(c *Container) { c.open = open }
}

// Container builds the process singletons on first use. Builders only reach
// their own dependencies through the accessors, so construction order
// follows usage.
type Container struct {
	source        config.Source
	logger        loggingpkg.ServiceLogger
	registerer    prometheus.Registerer
	registererSet bool
	open          Opener
	metrics       *buildMetrics

	closed atomic.Bool

	database    *Cell[*Database]
	store       *Cell[thoughts.Store]
	service     *Cell[thoughts.Service]
	services    *Cell[*Services]
	broadcaster *Cell[*events.Broadcaster]
}

// New returns a container reading its configuration from source. Nothing is
// built yet.
func New(source config.Source, opts ...Option) (*Container, error) {
	c := &Container{
		source: source,
		logger: loggingpkg.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.registererSet {
		c.registerer = prometheus.DefaultRegisterer
	}
	if c.registerer != nil {
		m, err := newBuildMetrics(c.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = m
	}

	c.database = newCell(c, "database", c.buildDatabase).OnDiscard(func(db *Database) {
		c.discard("database", db.Close())
	})
	c.store = newCell(c, "thought_store", c.buildThoughtStore)
	c.service = newCell(c, "thought_service", c.buildThoughtService).OnDiscard(func(svc thoughts.Service) {
		if closer, ok := svc.(io.Closer); ok {
			c.discard("thought_service", closer.Close())
		}
	})
	c.services = newCell(c, "services", c.buildServices)
	c.broadcaster = newCell(c, "broadcaster", c.buildBroadcaster).OnDiscard(func(b *events.Broadcaster) {
		b.Close()
		c.discard("broadcaster", nil)
	})
	return c, nil
}

// newCell wraps build with logging and metrics.
func newCell[T any](c *Container, name string, build func(context.Context) (T, error)) *Cell[T] {
	return NewCell(name, func(ctx context.Context) (T, error) {
		start := time.Now()
		value, err := build(ctx)
		took := time.Since(start)

		c.metrics.observe(name, took, err)
		fields := loggingpkg.LogFields{"cell": name, "duration": took.String()}
		if err != nil {
			c.logger.Error("Dependency build failed", err, fields)
		} else {
			c.logger.Debug("Dependency built", fields)
		}
		return value, err
	})
}

// discard logs the teardown of a value built after Close.
func (c *Container) discard(name string, err error) {
	fields := loggingpkg.LogFields{"cell": name}
	if err != nil {
		c.logger.Error("Failed to release dependency built after close", err, fields)
		return
	}
	c.logger.Debug("Released dependency built after close", fields)
}

func get[T any](ctx context.Context, c *Container, cell *Cell[T]) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, errspkg.ErrContainerClosed
	}
	value, err := cell.Get(ctx)
	if errors.Is(err, ErrCellSealed) {
		return zero, errspkg.ErrContainerClosed
	}
	return value, err
}

// Logger returns the container logger.
func (c *Container) Logger() loggingpkg.ServiceLogger { return c.logger }

// Registerer returns the metrics registerer, nil when metrics are disabled.
func (c *Container) Registerer() prometheus.Registerer { return c.registerer }

// Source returns the configuration source.
func (c *Container) Source() config.Source { return c.source }

// Database returns the shared connection pool.
func (c *Container) Database(ctx context.Context) (*Database, error) {
	return get(ctx, c, c.database)
}

// ThoughtStore returns the thought persistence layer.
func (c *Container) ThoughtStore(ctx context.Context) (thoughts.Store, error) {
	return get(ctx, c, c.store)
}

// ThoughtService returns the thought service.
func (c *Container) ThoughtService(ctx context.Context) (thoughts.Service, error) {
	return get(ctx, c, c.service)
}

// Services returns the service registry.
func (c *Container) Services(ctx context.Context) (*Services, error) {
	return get(ctx, c, c.services)
}

// Broadcaster returns the event broadcaster.
func (c *Container) Broadcaster() (*events.Broadcaster, error) {
	return get(context.Background(), c, c.broadcaster)
}

func (c *Container) buildDatabase(ctx context.Context) (*Database, error) {
	cfg, err := config.BuildDatabaseConfig(c.source)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Connecting to database", loggingpkg.LogFields{"database": cfg.String()})
	return OpenDatabase(ctx, cfg, c.open, c.logger)
}

func (c *Container) buildThoughtStore(ctx context.Context) (thoughts.Store, error) {
	db, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	dialect, err := thoughts.DialectFor(db.Driver)
	if err != nil {
		return nil, errspkg.NewSetupError("thought store", err)
	}
	store := thoughts.NewSQLStore(db.DB, dialect)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, errspkg.NewSetupError("thought store", err)
	}
	return store, nil
}

func (c *Container) buildThoughtService(ctx context.Context) (thoughts.Service, error) {
	store, err := c.ThoughtStore(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.Broadcaster()
	if err != nil {
		return nil, err
	}
	return thoughts.NewService(store, b.Producer(), c.logger), nil
}

func (c *Container) buildServices(ctx context.Context) (*Services, error) {
	svc, err := c.ThoughtService(ctx)
	if err != nil {
		return nil, err
	}
	return &Services{Thoughts: svc}, nil
}

func (c *Container) buildBroadcaster(context.Context) (*events.Broadcaster, error) {
	cfg, err := config.BuildEventsConfig(c.source)
	if err != nil {
		return nil, err
	}
	opts := []events.Option{
		events.WithCapacity(cfg.Capacity),
		events.WithLogger(c.logger.With(loggingpkg.LogFields{"component": "dispatcher"})),
	}
	if c.registerer != nil {
		m, err := events.NewMetrics(c.registerer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, events.WithMetrics(m))
	}
	return events.New(opts...), nil
}

// Close tears every built singleton down, dependents first. Later accessor
// calls fail with ErrContainerClosed, and a build still in flight releases
// its value instead of publishing it.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	c.services.Seal()
	c.store.Seal()
	if svc, ok := c.service.Seal(); ok {
		if closer, ok := svc.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	if b, ok := c.broadcaster.Seal(); ok {
		b.Close()
	}
	if db, ok := c.database.Seal(); ok {
		errs = append(errs, db.Close())
	}
	c.logger.Debug("Dependency container closed", nil)
	return errors.Join(errs...)
}

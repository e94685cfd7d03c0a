package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/drblury/omstasher/internal/runtime/config"
	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// Opener opens a database/sql handle; sql.Open in production.
type Opener func(driver, dataSource string) (*sql.DB, error)

// Database is the shared connection pool together with the keeper that
// keeps it warm.
type Database struct {
	*sql.DB
	Driver string

	stop      context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// OpenDatabase opens and pings the database described by cfg, then starts
// the connection keeper. Failures are reported as SetupError.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, open Opener, logger loggingpkg.ServiceLogger) (*Database, error) {
	if open == nil {
		open = sql.Open
	}
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}

	db, err := open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, errspkg.NewSetupError("database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errspkg.NewSetupError("database", fmt.Errorf("ping %s: %w", cfg.Driver, err))
	}

	keeperCtx, stop := context.WithCancel(context.Background())
	d := &Database{DB: db, Driver: cfg.Driver, stop: stop, done: make(chan struct{})}
	go d.keep(keeperCtx, cfg.KeepAliveInterval, logger.With(loggingpkg.LogFields{
		"component": "connection_keeper",
		"driver":    cfg.Driver,
	}))
	return d, nil
}

// keep pings the pool on every tick until stopped. Failures are logged and
// never end the keeper.
func (d *Database) keep(ctx context.Context, interval time.Duration, logger loggingpkg.ServiceLogger) {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Connection keeper crashed", fmt.Errorf("panic: %v", r), nil)
		}
	}()

	if interval <= 0 {
		interval = config.DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("Connection keeper started", loggingpkg.LogFields{"interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Connection keeper stopped", nil)
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := d.PingContext(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				logger.Error("Database keep-alive failed", err, nil)
				continue
			}
			logger.Trace("Database keep-alive", nil)
		}
	}
}

// Close stops the keeper and closes the pool. It is safe to call more than
// once.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		d.stop()
		<-d.done
		d.closeErr = d.DB.Close()
	})
	return d.closeErr
}

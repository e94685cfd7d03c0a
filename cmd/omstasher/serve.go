package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/omstasher/internal/httpapi"
	"github.com/drblury/omstasher/internal/journal"
	"github.com/drblury/omstasher/internal/runtime"
	"github.com/drblury/omstasher/internal/runtime/config"
	"github.com/drblury/omstasher/internal/runtime/container"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
	"github.com/drblury/omstasher/internal/thoughts"
)

// serve builds the services and races the process branches until one of
// them returns. A nil registry means the Prometheus default one.
func serve(ctx context.Context, src config.Source, logger loggingpkg.ServiceLogger, registry *prometheus.Registry) error {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if registry != nil {
		registerer, gatherer = registry, registry
	}

	c, err := container.New(src, container.WithLogger(logger), container.WithRegisterer(registerer))
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close dependencies", err, nil)
		}
	}()

	httpCfg, err := config.BuildHTTPConfig(src)
	if err != nil {
		return err
	}
	eventsCfg, err := config.BuildEventsConfig(src)
	if err != nil {
		return err
	}
	services, err := c.Services(ctx)
	if err != nil {
		return err
	}
	b, err := c.Broadcaster()
	if err != nil {
		return err
	}
	runtimeMetrics, err := runtime.NewMetrics(registerer)
	if err != nil {
		return err
	}
	runOpts := []runtime.RunOption{
		runtime.WithLogger(logger),
		runtime.WithMetrics(runtimeMetrics),
		runtime.WithHooks(runtime.LoggingHooks(logger)),
	}

	o := runtime.NewOrchestrator(logger).
		AddFatalOnReturn("dispatcher", runtime.DispatcherBranch(b)).
		Add("thoughts", runtime.ServiceBranch(b, thoughts.NewRuntime(services.Thoughts, logger), runOpts...))

	if eventsCfg.JournalEnabled {
		pubSub := journal.NewPubSub(logger)
		defer pubSub.Close()
		o.Add("journal", runtime.ServiceBranch(b, journal.NewRuntime(pubSub, eventsCfg.JournalTopic, logger), runOpts...))
	}

	api := httpapi.New(httpCfg, services, logger,
		httpapi.WithRegisterer(registerer),
		httpapi.WithGatherer(gatherer))
	o.Add("http", api.Run).
		Add("signals", runtime.SignalBranch(logger))

	logger.Info("omstasher starting", loggingpkg.LogFields{
		"http_address": httpCfg.ListenAddress(),
		"journal":      eventsCfg.JournalEnabled,
	})
	return o.Run(ctx)
}

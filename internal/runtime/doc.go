/*
Package runtime drives the in-process services of omstasher.

# Service runtime loop

RunService feeds the messages received by a subscription to a
ServiceRuntime. Messages whose origin equals the handler's ServiceID are
skipped so a service never reacts to its own events. The loop ends with nil
when the broadcaster is closed, with a *errors.HandlerError when the handler
fails or panics, and with ctx.Err() on cancellation. A subscriber that fell
behind is told how many messages it missed; the loop logs it and goes on.

Each invocation runs inside an OpenTelemetry span, is counted in Prometheus
(omstasher_runtime_events_total) and can be observed through EventHooks.

# Orchestrator

Orchestrator races the long-running branches of the process: the
dispatcher loop, every service loop, the HTTP server and the signal
listener. The first branch to return wins and the others are cancelled. The
dispatcher is registered with AddFatalOnReturn because the process cannot
live without it: its return always yields errors.ErrDispatcherStopped.

Subpackages hold the building blocks: config, container, errors, events,
ids, jsoncodec, logging, metadata and metrics.
*/
package runtime

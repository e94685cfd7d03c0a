// Package omstasher is the backend of a thought stash: a small service that
// stores thoughts in a SQL database, serves them over HTTP and broadcasts
// every modification to the services living in the same process.
//
// Three pieces hold the process together. A dependency Container builds the
// process singletons (database pool, thought store, thought service,
// broadcaster) on first use, exactly once even under concurrent access, and
// retries a failed build on the next access. A Broadcaster merges the events
// of every producer into one ordered stream and republishes it to each
// subscriber, giving every subscriber its own bounded backlog: a slow
// subscriber loses its oldest events and is told how many it missed, it
// never slows the others down. Finally each service runs a RunService loop
// over its own subscription, which hides the service's own events from it.
//
// # Orchestration
//
// The command line races the dispatcher loop, the service loops, the HTTP
// server and a signal listener through an Orchestrator. Whichever returns
// first ends the process; the dispatcher returning at all is fatal and is
// reported as ErrDispatcherStopped.
//
// # Configuration
//
// Every setting is a flat key (http_address, http_port, database_dsn, ...)
// resolved from command line flags, OMSTASHER_* environment variables, a
// YAML file and defaults, in that order. Missing or malformed values surface
// as ConfigurationError on first access of the singleton needing them.
package omstasher

package config

import (
	"fmt"

	errspkg "github.com/drblury/omstasher/internal/runtime/errors"
)

const (
	KeyEventsCapacity = "events_capacity"
	KeyJournalEnabled = "journal_enabled"
	KeyJournalTopic   = "journal_topic"

	// DefaultEventsCapacity is the backlog every subscriber gets.
	DefaultEventsCapacity = 5
	// DefaultJournalTopic is the in-process topic the journal publishes to.
	DefaultJournalTopic = "omstasher.events"
)

// EventsConfig tunes the broadcaster and the journal runtime.
type EventsConfig struct {
	Capacity       int
	JournalEnabled bool
	JournalTopic   string
}

// BuildEventsConfig reads the optional event settings; every key has a
// default.
func BuildEventsConfig(src Source) (EventsConfig, error) {
	capacity, err := Optional(src, KeyEventsCapacity, DefaultEventsCapacity, Value.AsInt)
	if err != nil {
		return EventsConfig{}, err
	}
	if capacity <= 0 {
		return EventsConfig{}, errspkg.NewConfigurationError(KeyEventsCapacity,
			fmt.Errorf("subscriber capacity must be positive, got %d", capacity))
	}

	enabled, err := Optional(src, KeyJournalEnabled, true, Value.AsBool)
	if err != nil {
		return EventsConfig{}, err
	}

	topic, err := Optional(src, KeyJournalTopic, DefaultJournalTopic, Value.AsString)
	if err != nil {
		return EventsConfig{}, err
	}

	return EventsConfig{
		Capacity:       capacity,
		JournalEnabled: enabled,
		JournalTopic:   topic,
	}, nil
}

package events

import (
	"fmt"
	"strings"
)

// ObserverOrigin is reserved for producers that are not services, such as
// the journal.
const ObserverOrigin uint8 = 0

// ModificationKind tells which state change an event advertises.
type ModificationKind uint8

const (
	Creation ModificationKind = iota + 1
	Update
	Delete
)

func (k ModificationKind) String() string {
	switch k {
	case Creation:
		return "creation"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k ModificationKind) MarshalText() ([]byte, error) {
	switch k {
	case Creation, Update, Delete:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("events: unknown modification kind %d", uint8(k))
	}
}

func (k *ModificationKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "creation":
		*k = Creation
	case "update":
		*k = Update
	case "delete":
		*k = Delete
	default:
		return fmt.Errorf("events: unknown modification kind %q", text)
	}
	return nil
}

// StateModification carries the kind of change and the public identifier of
// the affected entity.
type StateModification struct {
	Kind ModificationKind `json:"kind"`
	ID   string           `json:"id"`
}

func Created(id string) StateModification { return StateModification{Kind: Creation, ID: id} }
func Updated(id string) StateModification { return StateModification{Kind: Update, ID: id} }
func Deleted(id string) StateModification { return StateModification{Kind: Delete, ID: id} }

func (m StateModification) String() string {
	return fmt.Sprintf("%s(%s)", m.Kind, m.ID)
}

// EventMessage is sent by services to advertise state changes. It is the
// only contract shared between services.
type EventMessage struct {
	// Origin is the id of the service the message comes from.
	Origin uint8 `json:"origin"`
	// Subject names the kind of entity the message refers to.
	Subject string            `json:"subject"`
	Action  StateModification `json:"action"`
}

// NewEventMessage builds a message.
func NewEventMessage(origin uint8, subject string, action StateModification) EventMessage {
	return EventMessage{Origin: origin, Subject: subject, Action: action}
}

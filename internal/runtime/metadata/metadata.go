package metadata

import (
	"strconv"

	"github.com/drblury/omstasher/internal/runtime/events"
)

// Header keys set on journaled events.
const (
	KeyOrigin     = "omstasher_origin"
	KeySubject    = "omstasher_subject"
	KeyActionKind = "omstasher_action_kind"
	KeyActionID   = "omstasher_action_id"
)

// Metadata represents the headers carried alongside a journaled event.
type Metadata map[string]string

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// ForEvent describes msg as headers, so observers can filter without
// decoding the payload.
func ForEvent(msg events.EventMessage) Metadata {
	return New(
		KeyOrigin, strconv.Itoa(int(msg.Origin)),
		KeySubject, msg.Subject,
		KeyActionKind, msg.Action.Kind.String(),
		KeyActionID, msg.Action.ID,
	)
}

// Origin parses the origin header.
func (m Metadata) Origin() (uint8, bool) {
	raw, ok := m[KeyOrigin]
	if !ok {
		return 0, false
	}
	origin, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(origin), true
}

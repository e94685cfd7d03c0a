package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Correlation identifiers and journal message ids use it.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewThoughtID returns a random identifier for a new thought.
func NewThoughtID() uuid.UUID {
	return uuid.New()
}

// ParseThoughtID parses the textual form of a thought identifier.
func ParseThoughtID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid thought id %q: %w", raw, err)
	}
	return id, nil
}

package thoughts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/omstasher/internal/runtime/events"
	"github.com/drblury/omstasher/internal/runtime/ids"
	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

const (
	// ServiceID identifies the thought service on the event bus.
	ServiceID uint8 = 1
	// Subject is the event subject of thought modifications.
	Subject = "thought"
)

var (
	ErrThoughtNotFound = errors.New("thoughts: thought does not exist")
	ErrParentNotFound  = errors.New("thoughts: parent thought does not exist")
	ErrInvalidThought  = errors.New("thoughts: thought content is empty")
)

// Service is the thought API exposed to the outer layers.
type Service interface {
	GetThought(ctx context.Context, id uuid.UUID) (*Envelope, error)
	// PostThought creates a thought, or updates it when the request names
	// an existing id.
	PostThought(ctx context.Context, req PostRequest) (*Envelope, error)
	// GetThread returns the chain from the thread root down to id.
	GetThread(ctx context.Context, id uuid.UUID) ([]Envelope, error)
	// Forget drops the cached copy of a thought.
	Forget(id uuid.UUID)
}

// PostRequest carries the fields of a thought to write. A nil ID asks for a
// new thought.
type PostRequest struct {
	ID         *uuid.UUID `json:"thought_id,omitempty"`
	ParentID   *uuid.UUID `json:"parent_thought_id,omitempty"`
	Keywords   []string   `json:"keywords"`
	Categories []string   `json:"categories"`
	Sources    []Source   `json:"sources"`
	Content    string     `json:"content"`
}

// BackendService implements Service on top of a Store and advertises every
// write on the event bus.
type BackendService struct {
	store    Store
	producer *events.Producer
	logger   loggingpkg.ServiceLogger
	now      func() time.Time

	mu    sync.RWMutex
	cache map[uuid.UUID]Envelope
}

// NewService returns a service writing to store and publishing through
// producer. The service owns producer and releases it on Close.
func NewService(store Store, producer *events.Producer, logger loggingpkg.ServiceLogger) *BackendService {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &BackendService{
		store:    store,
		producer: producer,
		logger:   logger.With(loggingpkg.LogFields{"service": "thoughts"}),
		now:      time.Now,
		cache:    make(map[uuid.UUID]Envelope),
	}
}

func (s *BackendService) GetThought(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	if env, ok := s.cached(id); ok {
		return &env, nil
	}

	thought, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if thought == nil {
		return nil, fmt.Errorf("%w: %s", ErrThoughtNotFound, id)
	}

	env := thought.Envelope()
	s.remember(thought.ID, env)
	return &env, nil
}

// checkAcyclic rejects attaching id below one of its own descendants.
func (s *BackendService) checkAcyclic(ctx context.Context, id, parentID uuid.UUID) error {
	chain, err := s.store.Ancestors(ctx, parentID)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor.ID == id {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrInvalidThought, id, parentID)
		}
	}
	return nil
}

func (s *BackendService) PostThought(ctx context.Context, req PostRequest) (*Envelope, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrInvalidThought
	}
	if req.ParentID != nil {
		if req.ID != nil && *req.ParentID == *req.ID {
			return nil, fmt.Errorf("%w: a thought cannot answer itself", ErrInvalidThought)
		}
		parent, err := s.store.Get(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: %s", ErrParentNotFound, *req.ParentID)
		}
		if req.ID != nil {
			if err := s.checkAcyclic(ctx, *req.ID, *req.ParentID); err != nil {
				return nil, err
			}
		}
	}

	thought := Thought{
		ParentID:   req.ParentID,
		Keywords:   req.Keywords,
		Categories: req.Categories,
		Sources:    req.Sources,
		CreatedAt:  s.now().UTC(),
		Content:    req.Content,
	}

	exists := false
	if req.ID != nil {
		thought.ID = *req.ID
		existing, err := s.store.Get(ctx, thought.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			thought.CreatedAt = existing.CreatedAt
			exists = true
		}
	} else {
		thought.ID = ids.NewThoughtID()
	}

	action := events.Created(thought.ID.String())
	if exists {
		updated, err := s.store.Update(ctx, thought)
		if err != nil {
			return nil, err
		}
		if !updated {
			return nil, fmt.Errorf("%w: %s", ErrThoughtNotFound, thought.ID)
		}
		action = events.Updated(thought.ID.String())
	} else if err := s.store.Insert(ctx, thought); err != nil {
		return nil, err
	}

	env := thought.Envelope()
	s.remember(thought.ID, env)
	s.advertise(action)
	return &env, nil
}

func (s *BackendService) GetThread(ctx context.Context, id uuid.UUID) ([]Envelope, error) {
	chain, err := s.store.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrThoughtNotFound, id)
	}

	thread := make([]Envelope, 0, len(chain))
	for _, thought := range chain {
		thread = append(thread, thought.Envelope())
	}
	return thread, nil
}

func (s *BackendService) Forget(id uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
}

// Cached returns the number of cached envelopes.
func (s *BackendService) Cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Close releases the event producer.
func (s *BackendService) Close() error {
	if s.producer != nil {
		s.producer.Close()
	}
	return nil
}

func (s *BackendService) cached(id uuid.UUID) (Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.cache[id]
	return env, ok
}

func (s *BackendService) remember(id uuid.UUID, env Envelope) {
	s.mu.Lock()
	s.cache[id] = env
	s.mu.Unlock()
}

// advertise publishes a modification. A failure is only logged: the write
// already happened.
func (s *BackendService) advertise(action events.StateModification) {
	if s.producer == nil {
		return
	}
	msg := events.NewEventMessage(ServiceID, Subject, action)
	if err := s.producer.Publish(msg); err != nil {
		s.logger.Error("Failed to advertise thought modification", err, loggingpkg.LogFields{
			"action": action.String(),
		})
		return
	}
	s.logger.Debug("Thought modification advertised", loggingpkg.LogFields{"action": action.String()})
}

package container

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrCellSealed is returned by a sealed cell, including to a build that
// finished after the seal.
var ErrCellSealed = errors.New("container: cell is sealed")

// Cell lazily builds a single value. Concurrent first callers share one
// build and its result; a failed build is not remembered, so the next call
// tries again.
type Cell[T any] struct {
	name  string
	build   func(ctx context.Context) (T, error)
	discard func(T)

	group singleflight.Group

	mu    sync.RWMutex
	value  T
	built  bool
	sealed bool
}

// NewCell returns an unbuilt cell.
func NewCell[T any](name string, build func(ctx context.Context) (T, error)) *Cell[T] {
	return &Cell[T]{name: name, build: build}
}

// OnDiscard sets the teardown applied to a value whose build completes after
// the cell was sealed.
func (c *Cell[T]) OnDiscard(discard func(T)) *Cell[T] {
	c.discard = discard
	return c
}

// Name returns the cell name used in logs and metrics.
func (c *Cell[T]) Name() string { return c.name }

// Get returns the value, building it on first use. A caller whose ctx ends
// while a build is in flight stops waiting; the build itself carries on.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if value, ok, sealed := c.state(); sealed {
		return zero, ErrCellSealed
	} else if ok {
		return value, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(c.name, func() (any, error) {
		// a build that completed between Peek and DoChan wins
		if value, ok, sealed := c.state(); sealed {
			return nil, ErrCellSealed
		} else if ok {
			return value, nil
		}
		value, err := c.build(buildCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.sealed {
			c.mu.Unlock()
			if c.discard != nil {
				c.discard(value)
			}
			return nil, ErrCellSealed
		}
		c.value, c.built = value, true
		c.mu.Unlock()
		return value, nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns the value without building it.
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.built
}

func (c *Cell[T]) state() (T, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.built, c.sealed
}

// Seal empties the cell for good and returns what it held. Builds in flight
// hand their value to the discard function instead of storing it.
func (c *Cell[T]) Seal() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, built := c.value, c.built
	var zero T
	c.value, c.built, c.sealed = zero, false, true
	return value, built
}

// Take empties the cell and returns what it held.
func (c *Cell[T]) Take() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, built := c.value, c.built
	var zero T
	c.value, c.built = zero, false
	return value, built
}

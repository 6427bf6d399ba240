// Package counter holds the click counter backends.
package counter

import (
	"context"
	"sync/atomic"
)

// Counter is the capability the HTTP surface depends on.
type Counter interface {
	// Up adds one click and returns the new total.
	Up(ctx context.Context) (int64, error)
	// Get returns the current total.
	Get(ctx context.Context) (int64, error)
}

var _ Counter = (*LocalCounter)(nil)

// LocalCounter is the in-memory fallback. Its value lives as long as the instance
// and is not shared between processes.
type LocalCounter struct {
	count int64
}

func (c *LocalCounter) Get(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&c.count), nil
}

func (c *LocalCounter) Up(ctx context.Context) (int64, error) {
	return atomic.AddInt64(&c.count, 1), nil
}

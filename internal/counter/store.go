package counter

import (
	"context"
	"errors"
	"fmt"
)

const (
	StatsCollection = "global_stats"
	CounterName     = "click_counter"
)

// ErrMalformedRecord is returned when the stored record cannot be a click count.
var ErrMalformedRecord = errors.New("malformed counter record")

// Tx reads and writes the counter record inside one store transaction.
type Tx interface {
	// Load returns the stored count, 0 when the record does not exist.
	Load() (int64, error)
	// Save replaces the whole record with {count: n}.
	Save(n int64) error
}

// Store is a document store holding the counter record.
// RunInTransaction may call f more than once; retry on conflict is the store's job.
type Store interface {
	Load(ctx context.Context) (int64, error)
	RunInTransaction(ctx context.Context, f func(tx Tx) error) error
}

var _ Counter = (*PersistentCounter)(nil)

// PersistentCounter keeps the count in a Store. Lost updates are prevented by the
// store's transactions only.
type PersistentCounter struct {
	store Store
}

func NewPersistentCounter(store Store) *PersistentCounter {
	return &PersistentCounter{store: store}
}

func (c *PersistentCounter) Up(ctx context.Context) (int64, error) {
	var n int64
	err := c.store.RunInTransaction(ctx, func(tx Tx) error {
		cur, err := tx.Load()
		if err != nil {
			return err
		}

		n = cur + 1
		return tx.Save(n)
	})
	if err != nil {
		return 0, fmt.Errorf("RunInTransaction: %w", err)
	}
	return n, nil
}

func (c *PersistentCounter) Get(ctx context.Context) (int64, error) {
	n, err := c.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("Load: %w", err)
	}
	return n, nil
}

func checkCount(n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: count=%d", ErrMalformedRecord, n)
	}
	return n, nil
}

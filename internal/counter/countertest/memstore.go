// Package countertest provides an in-memory counter.Store for tests.
package countertest

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/tckz/go-clickcounter/internal/counter"
)

// ErrConflict is returned by RunInTransaction once all attempts lost to other commits.
var ErrConflict = errors.New("too much contention on the counter record")

var _ counter.Store = (*MemStore)(nil)

// MemStore is an optimistic single-record store. A transaction commits only when the
// record version is unchanged since the attempt started, like Datastore and Firestore do.
// Set the exported fields before first use.
type MemStore struct {
	// Unreachable is returned from every call when set.
	Unreachable error
	// ConflictEvery rejects every n-th commit regardless of version.
	ConflictEvery int
	// MaxAttempts defaults to 3.
	MaxAttempts int

	mu       sync.Mutex
	exists   bool
	count    int64
	version  int
	commits  int
	txBodies int
}

// Seed stores n as if it had been written earlier.
func (s *MemStore) Seed(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.count = n
	s.version++
}

// Snapshot returns the committed count and whether the record exists.
func (s *MemStore) Snapshot() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.exists
}

// TxBodies returns how many times transaction functions were started.
func (s *MemStore) TxBodies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txBodies
}

func (s *MemStore) Load(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Unreachable != nil {
		return 0, s.Unreachable
	}
	return s.count, nil
}

func (s *MemStore) RunInTransaction(ctx context.Context, f func(tx counter.Tx) error) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	for i := 0; i < attempts; i++ {
		s.mu.Lock()
		if s.Unreachable != nil {
			s.mu.Unlock()
			return s.Unreachable
		}
		tx := &memTx{count: s.count, version: s.version}
		s.txBodies++
		s.mu.Unlock()

		if err := f(tx); err != nil {
			return err
		}

		// let other goroutines interleave between read and commit
		runtime.Gosched()

		s.mu.Lock()
		s.commits++
		injected := s.ConflictEvery > 0 && s.commits%s.ConflictEvery == 0
		if injected || tx.version != s.version {
			s.mu.Unlock()
			continue
		}
		if tx.saved != nil {
			s.exists = true
			s.count = *tx.saved
			s.version++
		}
		s.mu.Unlock()
		return nil
	}
	return ErrConflict
}

type memTx struct {
	count   int64
	version int
	saved   *int64
}

func (t *memTx) Load() (int64, error) {
	return t.count, nil
}

func (t *memTx) Save(n int64) error {
	t.saved = &n
	return nil
}

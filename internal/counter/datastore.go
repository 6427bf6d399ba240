package counter

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/datastore"
)

type datastoreRecord struct {
	Count int64 `datastore:"count"`
}

// CounterKey returns the key of the click counter record.
func CounterKey(ns string) *datastore.Key {
	key := datastore.NameKey(StatsCollection, CounterName, nil)
	key.Namespace = ns
	return key
}

// loadDatastoreCount decodes the record. Properties other than count are ignored
// and disappear with the next Save.
func loadDatastoreCount(get func(dst interface{}) error) (int64, error) {
	var rec datastoreRecord
	err := get(&rec)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return 0, nil
	}

	var mismatch *datastore.ErrFieldMismatch
	if errors.As(err, &mismatch) {
		if mismatch.FieldName == "count" {
			return 0, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		err = nil
	}
	if err != nil {
		return 0, err
	}

	return checkCount(rec.Count)
}

// entityTx works on the counter entity through get/put funcs, so it serves both
// transactional and plain access.
type entityTx struct {
	key *datastore.Key
	get func(key *datastore.Key, dst interface{}) error
	put func(key *datastore.Key, src interface{}) error
}

func (t *entityTx) Load() (int64, error) {
	return loadDatastoreCount(func(dst interface{}) error {
		return t.get(t.key, dst)
	})
}

func (t *entityTx) Save(n int64) error {
	return t.put(t.key, &datastoreRecord{Count: n})
}

var _ Store = (*DatastoreStore)(nil)

// DatastoreStore keeps the counter in Datastore (or Firestore in Datastore mode).
type DatastoreStore struct {
	Client *datastore.Client
	Key    *datastore.Key
	// MaxAttempts overrides the client's transaction attempt count when > 0.
	MaxAttempts int
}

func (s *DatastoreStore) Load(ctx context.Context) (int64, error) {
	tx := &entityTx{
		key: s.Key,
		get: func(key *datastore.Key, dst interface{}) error {
			return s.Client.Get(ctx, key, dst)
		},
	}
	n, err := tx.Load()
	if err != nil {
		return 0, fmt.Errorf("datastore.Get: key=%v, %w", s.Key, err)
	}
	return n, nil
}

func (s *DatastoreStore) RunInTransaction(ctx context.Context, f func(tx Tx) error) error {
	var opts []datastore.TransactionOption
	if s.MaxAttempts > 0 {
		opts = append(opts, datastore.MaxAttempts(s.MaxAttempts))
	}

	_, err := s.Client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		return f(&entityTx{
			key: s.Key,
			get: tx.Get,
			put: func(key *datastore.Key, src interface{}) error {
				_, err := tx.Put(key, src)
				return err
			},
		})
	}, opts...)
	if err != nil {
		return fmt.Errorf("datastore.RunInTransaction: key=%v, %w", s.Key, err)
	}
	return nil
}

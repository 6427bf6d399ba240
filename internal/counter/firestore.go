package counter

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type firestoreRecord struct {
	Count int64 `firestore:"count"`
}

// firestoreCount decodes the result of a document Get. Fields other than count are ignored.
func firestoreCount(snap *firestore.DocumentSnapshot, err error) (int64, error) {
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !snap.Exists() {
		return 0, nil
	}

	var rec firestoreRecord
	if err := snap.DataTo(&rec); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return checkCount(rec.Count)
}

var _ Store = (*FirestoreStore)(nil)

// FirestoreStore keeps the counter in Firestore (Native mode).
type FirestoreStore struct {
	Client *firestore.Client
	Doc    *firestore.DocumentRef
	// MaxAttempts overrides the client's transaction attempt count when > 0.
	MaxAttempts int
}

func NewFirestoreStore(cl *firestore.Client, maxAttempts int) *FirestoreStore {
	return &FirestoreStore{
		Client:      cl,
		Doc:         cl.Collection(StatsCollection).Doc(CounterName),
		MaxAttempts: maxAttempts,
	}
}

func (s *FirestoreStore) Load(ctx context.Context) (int64, error) {
	n, err := firestoreCount(s.Doc.Get(ctx))
	if err != nil {
		return 0, fmt.Errorf("firestore.Get: doc=%s, %w", s.Doc.Path, err)
	}
	return n, nil
}

func (s *FirestoreStore) RunInTransaction(ctx context.Context, f func(tx Tx) error) error {
	var opts []firestore.TransactionOption
	if s.MaxAttempts > 0 {
		opts = append(opts, firestore.MaxAttempts(s.MaxAttempts))
	}

	err := s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return f(&firestoreTx{tx: tx, doc: s.Doc})
	}, opts...)
	if err != nil {
		return fmt.Errorf("firestore.RunTransaction: doc=%s, %w", s.Doc.Path, err)
	}
	return nil
}

type firestoreTx struct {
	tx  *firestore.Transaction
	doc *firestore.DocumentRef
}

func (t *firestoreTx) Load() (int64, error) {
	return firestoreCount(t.tx.Get(t.doc))
}

func (t *firestoreTx) Save(n int64) error {
	return t.tx.Set(t.doc, firestoreRecord{Count: n})
}

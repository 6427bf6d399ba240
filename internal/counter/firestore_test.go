package counter

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFirestoreCount_Errors(t *testing.T) {
	n, err := firestoreCount(nil, status.Error(codes.NotFound, "no such document"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	unavailable := status.Error(codes.Unavailable, "connection refused")
	_, err = firestoreCount(nil, unavailable)
	assert.ErrorIs(t, err, unavailable)

	boom := errors.New("boom")
	_, err = firestoreCount(nil, boom)
	assert.ErrorIs(t, err, boom)
}

// Runs against the emulator started with `gcloud emulators firestore start`.
func TestFirestoreStore(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST is not set")
	}
	ctx := context.Background()

	cl, err := firestore.NewClient(ctx, "clickcounter-test")
	require.NoError(t, err)
	defer cl.Close()

	store := NewFirestoreStore(cl, 0)
	store.Doc = cl.Collection(StatsCollection).Doc(uuid.NewString())
	defer store.Doc.Delete(context.Background())

	c := NewPersistentCounter(store)

	n, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = store.Doc.Set(ctx, map[string]interface{}{"count": 5, "updatedAt": "x"})
	require.NoError(t, err)

	n, err = c.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	snap, err := store.Doc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"count": int64(6)}, snap.Data())

	_, err = store.Doc.Set(ctx, map[string]interface{}{"count": "six"})
	require.NoError(t, err)
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

package counter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCounter struct {
	LocalCounter
	gets int
	err  error
}

func (c *countingCounter) Get(ctx context.Context) (int64, error) {
	c.gets++
	if c.err != nil {
		return 0, c.err
	}
	return c.LocalCounter.Get(ctx)
}

func TestCachedCounter_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	next := &countingCounter{}
	c := NewCachedCounter(next, time.Minute)

	for i := 0; i < 3; i++ {
		n, err := c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	}
	assert.Equal(t, 1, next.gets)
}

func TestCachedCounter_UpRefreshesCache(t *testing.T) {
	ctx := context.Background()
	next := &countingCounter{}
	c := NewCachedCounter(next, time.Minute)

	_, err := c.Get(ctx)
	require.NoError(t, err)

	n, err := c.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, next.gets)
}

func TestCachedCounter_KeepsNewestValue(t *testing.T) {
	c := NewCachedCounter(&countingCounter{}, time.Minute)

	c.store(7)
	c.store(5)

	n, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestCachedCounter_Expires(t *testing.T) {
	ctx := context.Background()
	next := &countingCounter{}
	c := NewCachedCounter(next, 10*time.Millisecond)

	_, err := c.Get(ctx)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = c.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, next.gets)
}

func TestCachedCounter_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	next := &countingCounter{err: boom}
	c := NewCachedCounter(next, time.Minute)

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, boom)

	next.err = nil
	n, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 2, next.gets)
}

package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestMutex(t *testing.T) (*Mutex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMutex(client, time.Minute), mr
}

func TestMutexAcquireRelease(t *testing.T) {
	m, _ := newTestMutex(t)
	ctx := context.Background()

	release, err := m.Acquire(ctx, CardCloseKey(7))
	require.NoError(t, err)

	_, err = m.Acquire(ctx, CardCloseKey(7))
	require.ErrorIs(t, err, ErrBusy)

	// Different key is independent.
	release2, err := m.Acquire(ctx, PeriodCloseKey(7))
	require.NoError(t, err)
	release2()

	release()
	release3, err := m.Acquire(ctx, CardCloseKey(7))
	require.NoError(t, err)
	release3()
}

func TestMutexExpiry(t *testing.T) {
	m, mr := newTestMutex(t)
	ctx := context.Background()

	release, err := m.Acquire(ctx, CardCloseKey(1))
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	// Holder crashed; TTL frees the section for the next caller.
	release2, err := m.Acquire(ctx, CardCloseKey(1))
	require.NoError(t, err)

	// The stale release must not clobber the new holder's key.
	release()
	_, err = m.Acquire(ctx, CardCloseKey(1))
	require.ErrorIs(t, err, ErrBusy)

	release2()
}

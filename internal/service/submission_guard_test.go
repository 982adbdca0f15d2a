package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemorySubmissionGuardRejectsConcurrentKey(t *testing.T) {
	guard := NewMemorySubmissionGuard()
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "sheet-1")
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, "sheet-1")
	require.ErrorIs(t, err, ErrSubmissionInProgress)

	otherRelease, err := guard.Acquire(ctx, "sheet-2")
	require.NoError(t, err)
	otherRelease()

	release()
	release()

	again, err := guard.Acquire(ctx, "sheet-1")
	require.NoError(t, err)
	again()
}

func TestRedisSubmissionGuard(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	guard := NewRedisSubmissionGuard(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "sheet-1")
	require.NoError(t, err)
	require.True(t, mini.Exists("gema:submission:lock:sheet-1"))

	_, err = guard.Acquire(ctx, "sheet-1")
	require.ErrorIs(t, err, ErrSubmissionInProgress)

	release()
	require.False(t, mini.Exists("gema:submission:lock:sheet-1"))

	next, err := guard.Acquire(ctx, "sheet-1")
	require.NoError(t, err)
	next()
}

func TestRedisSubmissionGuardExpiresStaleLocks(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	guard := NewRedisSubmissionGuard(client, time.Second, zerolog.Nop())
	ctx := context.Background()

	stale, err := guard.Acquire(ctx, "sheet-9")
	require.NoError(t, err)

	mini.FastForward(2 * time.Second)

	fresh, err := guard.Acquire(ctx, "sheet-9")
	require.NoError(t, err)

	// The expired holder must not delete the new holder's lock.
	stale()
	require.True(t, mini.Exists("gema:submission:lock:sheet-9"))
	fresh()
}

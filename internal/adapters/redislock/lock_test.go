package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/darkpool/internal/adapters/redislock"
	"github.com/alejandrodnm/darkpool/internal/domain"
)

// newTestLock levanta un Redis en proceso. El TTL avanza solo con FastForward.
func newTestLock(t *testing.T) (*redislock.Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l := redislock.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { l.Close() })
	return l, mr
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "keeper:0xabc", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:keeper:0xabc"))

	_, err = l.Acquire(ctx, "keeper:0xabc", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	lease.Release()
	lease.Release() // idempotente
	assert.False(t, mr.Exists("lock:keeper:0xabc"))

	lease2, err := l.Acquire(ctx, "keeper:0xabc", 10*time.Second)
	require.NoError(t, err)
	lease2.Release()
}

func TestLock_ExpiresWithTTL(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "keeper:0xabc", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, mr.TTL("lock:keeper:0xabc"))

	mr.FastForward(3 * time.Second)

	lease, err := l.Acquire(ctx, "keeper:0xabc", time.Second)
	require.NoError(t, err)
	lease.Release()
}

func TestLease_ExtendRenewsTTL(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "keeper:0xabc", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(8 * time.Second)
	require.NoError(t, lease.Extend(ctx))
	assert.Equal(t, 10*time.Second, mr.TTL("lock:keeper:0xabc"))

	// sin el Extend ya habría vencido
	mr.FastForward(8 * time.Second)
	_, err = l.Acquire(ctx, "keeper:0xabc", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestLease_ExtendAfterExpiry(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "keeper:0xabc", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	assert.ErrorIs(t, lease.Extend(ctx), domain.ErrLockLost)
	assert.False(t, mr.Exists("lock:keeper:0xabc"), "extend must not recreate the key")
}

func TestLease_OnlyOwnerExtendsOrReleases(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "keeper:0xabc", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	// otra réplica toma el lock vencido
	owner, err := l.Acquire(ctx, "keeper:0xabc", 10*time.Second)
	require.NoError(t, err)
	token, err := mr.Get("lock:keeper:0xabc")
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Extend(ctx), domain.ErrLockLost)
	stale.Release()

	got, err := mr.Get("lock:keeper:0xabc")
	require.NoError(t, err)
	assert.Equal(t, token, got, "stale lease must not touch the new owner's lock")

	require.NoError(t, owner.Extend(ctx))
	owner.Release()
	assert.False(t, mr.Exists("lock:keeper:0xabc"))
}

func TestLock_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	a, err := l.Acquire(ctx, "keeper:0xaaa", 10*time.Second)
	require.NoError(t, err)
	b, err := l.Acquire(ctx, "keeper:0xbbb", 10*time.Second)
	require.NoError(t, err)
	a.Release()
	b.Release()
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := redislock.Dial(ctx, redislock.Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestDial_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	l, err := redislock.Dial(context.Background(), redislock.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}

package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-commute/internal/apperr"
)

var (
	_ Locker = (*KeyedMutex)(nil)
	_ Locker = (*RedisLocker)(nil)
)

func TestKeyedMutex_Exclusive(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "trip-1")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(short, "trip-1")
	assert.ErrorIs(t, err, apperr.ErrInfrastructure)

	other, err := m.Lock(ctx, "trip-2")
	require.NoError(t, err, "different keys do not contend")
	other()

	unlock()
	unlock()

	again, err := m.Lock(ctx, "trip-1")
	require.NoError(t, err)
	again()
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_Serializes(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		guard   sync.Mutex
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "trip")
			if !assert.NoError(t, err) {
				return
			}
			guard.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			guard.Unlock()

			time.Sleep(time.Millisecond)

			guard.Lock()
			inside--
			guard.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, m.size())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "trip-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("fleet:lock:trip-1"))

	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "trip-1")
	assert.ErrorIs(t, err, apperr.ErrInfrastructure)

	unlock()
	assert.False(t, mr.Exists("fleet:lock:trip-1"))

	unlock, err = locker.Lock(ctx, "trip-1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_ExpiredHolderCannotRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "trip-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "trip-1")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("fleet:lock:trip-1"), "the new holder keeps its lease")

	fresh()
	assert.False(t, mr.Exists("fleet:lock:trip-1"))
}

func TestRedisLocker_ServerDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := NewRedisLocker(client, time.Second).Lock(context.Background(), "trip-1")
	assert.ErrorIs(t, err, apperr.ErrInfrastructure)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), addr, "")
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), addr, "")
	assert.Error(t, err)
}

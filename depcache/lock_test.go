package depcache

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/store"
	"github.com/saiset-co/sai-manager/types"
)

func TestIndexLock_AcquireRelease(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "lock:k", time.Second, time.Second, time.Millisecond)

	require.True(t, lock.Acquire(0))
	require.False(t, lock.Acquire(0), "second acquisition while held must fail")

	lock.Release()
	require.True(t, lock.Acquire(0), "released lock must be acquirable again")
}

func TestIndexLock_TTLSelfHeals(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "lock:ttl", 20*time.Millisecond, time.Second, time.Millisecond)

	require.True(t, lock.Acquire(20*time.Millisecond))
	require.False(t, lock.Acquire(20*time.Millisecond))

	time.Sleep(40 * time.Millisecond)
	require.True(t, lock.Acquire(0), "expired lock must be reclaimable without a release")
}

func TestIndexLock_WithLockTimeout(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "lock:busy", time.Minute, 30*time.Millisecond, 5*time.Millisecond)

	require.True(t, lock.Acquire(time.Minute))

	err := lock.WithLock(func() error { return nil })
	require.ErrorIs(t, err, types.ErrLockTimeout)
}

func TestIndexLock_WithLockReleasesOnError(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "lock:err", time.Second, time.Second, time.Millisecond)

	wantErr := types.NewError("boom")
	err := lock.WithLock(func() error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	require.True(t, lock.Acquire(0), "lock must be released even when fn fails")
}

func TestIndexLock_MutualExclusion(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "lock:mx", time.Second, 5*time.Second, time.Millisecond)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(func() error {
				current := counter
				time.Sleep(time.Millisecond)
				counter = current + 1
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 20, counter)
}

func TestIndexLock_MutualExclusionOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	redisStore, err := store.NewRedisStore(context.Background(), zap.NewNop(), &types.StoreConfig{
		Enabled: true,
		Type:    "redis",
		Config: map[string]interface{}{
			"host":       mr.Host(),
			"port":       port,
			"key_prefix": "locktest",
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, redisStore.Start())
	t.Cleanup(func() { _ = redisStore.Stop() })

	lock := NewIndexLock(redisStore, zap.NewNop(), "lock:mx", time.Second, 5*time.Second, time.Millisecond)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(func() error {
				current := counter
				time.Sleep(time.Millisecond)
				counter = current + 1
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 10, counter)
}

package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

func newTestRedisStore(t *testing.T) (types.RecordStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	redisStore, err := NewRedisStore(context.Background(), zap.NewNop(), &types.StoreConfig{
		Enabled: true,
		Type:    "redis",
		Config: map[string]interface{}{
			"host":       mr.Host(),
			"port":       port,
			"key_prefix": "test",
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, redisStore.Start())
	t.Cleanup(func() { _ = redisStore.Stop() })

	return redisStore, mr
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	require.NoError(t, redisStore.Set("greeting", "hello", time.Minute))

	value, exists := redisStore.Get("greeting")
	require.True(t, exists)
	require.Equal(t, "hello", value)

	require.NoError(t, redisStore.Delete("greeting"))

	_, exists = redisStore.Get("greeting")
	require.False(t, exists)
}

func TestRedisStore_GetMissing(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	_, exists := redisStore.Get("nothing-here")
	require.False(t, exists)
}

func TestRedisStore_EmptyKey(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	require.ErrorIs(t, redisStore.Set("", "x", time.Minute), types.ErrStoreKeyEmpty)

	_, err := redisStore.SetNX("", "x", time.Minute)
	require.ErrorIs(t, err, types.ErrStoreKeyEmpty)

	_, exists := redisStore.Get("")
	require.False(t, exists)
}

func TestRedisStore_SetNX(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	acquired, err := redisStore.SetNX("lock", "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = redisStore.SetNX("lock", "owner-2", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, redisStore.Delete("lock"))

	acquired, err = redisStore.SetNX("lock", "owner-2", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	redisStore, mr := newTestRedisStore(t)

	require.NoError(t, redisStore.Set("short", "lived", 30*time.Millisecond))

	_, exists := redisStore.Get("short")
	require.True(t, exists)

	time.Sleep(60 * time.Millisecond)
	mr.FastForward(60 * time.Millisecond)

	_, exists = redisStore.Get("short")
	require.False(t, exists)
}

func TestRedisStore_ComplexValueRoundTrip(t *testing.T) {
	redisStore, _ := newTestRedisStore(t)

	require.NoError(t, redisStore.Set("doc", map[string]interface{}{
		"name":  "widget",
		"count": 3,
	}, time.Minute))

	value, exists := redisStore.Get("doc")
	require.True(t, exists)

	doc, ok := value.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "widget", doc["name"])
}

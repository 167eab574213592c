package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/database"
	"github.com/saiset-co/sai-manager/depcache"
	"github.com/saiset-co/sai-manager/store"
	"github.com/saiset-co/sai-manager/types"
)

type staticConfig struct {
	cfg *types.ServiceConfig
}

func (s *staticConfig) Load() error { return nil }

func (s *staticConfig) GetConfig() *types.ServiceConfig { return s.cfg }

func (s *staticConfig) GetValue(path string, defaultValue interface{}) interface{} {
	return defaultValue
}

func (s *staticConfig) GetAs(path string, target interface{}) error { return nil }

type testEnv struct {
	manager  *DomainManager
	database types.DatabaseManager
	cache    types.CacheManager
}

func newTestEnv(t *testing.T, schema *types.InterfaceSchema) *testEnv {
	t.Helper()

	ctx := context.Background()
	logger := zap.NewNop()

	recordStore, err := store.NewMemoryStore(ctx, logger, &types.StoreConfig{
		Enabled: true,
		Type:    "memory",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, recordStore.Start())
	t.Cleanup(func() { _ = recordStore.Stop() })

	config := &staticConfig{cfg: &types.ServiceConfig{
		Cache: &types.CacheConfig{
			Enabled:           true,
			DefaultTTL:        time.Minute,
			LockTTL:           time.Second,
			LockTimeout:       time.Second,
			LockRetryInterval: time.Millisecond,
		},
	}}

	cache, err := depcache.NewCacheManager(ctx, config, logger, nil, nil, recordStore)
	require.NoError(t, err)
	require.NoError(t, cache.Start())
	t.Cleanup(func() { _ = cache.Stop() })

	db, err := database.NewMemoryDB(ctx, logger, &types.DatabaseConfig{
		Enabled: true,
		Type:    "memory",
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })

	runtime := &types.CapabilityRuntime{
		Logger:   logger,
		Database: db,
		Cache:    cache,
	}

	mgr, err := New(schema, runtime, time.Minute)
	require.NoError(t, err)

	return &testEnv{manager: mgr, database: db, cache: cache}
}

func orderSchema() *types.InterfaceSchema {
	return &types.InterfaceSchema{
		Name:       "orders",
		Collection: "orders",
		Identifier: "order_id",
		Bundles: []types.CapabilityName{
			types.CapabilityCreate,
			types.CapabilityRead,
			types.CapabilityUpdate,
			types.CapabilityDelete,
			types.CapabilityQuery,
		},
	}
}

func (e *testEnv) createOrder(t *testing.T, id, status string, total float64) {
	t.Helper()
	_, err := e.manager.Create(context.Background(), map[string]interface{}{
		"order_id": id,
		"status":   status,
		"total":    total,
	})
	require.NoError(t, err)
}

func (e *testEnv) filterKey(filter map[string]interface{}) string {
	return e.cache.BuildCacheKey("orders", types.OperationFilter, depcache.EncodeDescriptor(filter))
}

func (e *testEnv) identKey(identification map[string]interface{}) string {
	return e.cache.BuildCacheKey("orders", types.OperationIdentification, depcache.EncodeDescriptor(identification))
}

func TestDomainManager_FilterCachesResult(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "A-1", "open", 40)
	env.createOrder(t, "A-2", "closed", 80)

	filter := map[string]interface{}{"status": "open"}
	instances, err := env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	_, cached := env.cache.Get(env.filterKey(filter))
	require.True(t, cached)

	// A write that bypasses the manager cannot invalidate, so the cached
	// result keeps being served.
	_, err = env.database.CreateDocuments(ctx, types.CreateDocumentsRequest{
		Collection: "orders",
		Data: []interface{}{map[string]interface{}{
			"order_id": "A-3", "status": "open", "total": 10.0,
		}},
	})
	require.NoError(t, err)

	instances, err = env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 1)
}

func TestDomainManager_CreateInvalidatesMatchingFilter(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "B-1", "open", 40)

	filter := map[string]interface{}{"status": "open"}
	_, err := env.manager.Filter(ctx, filter)
	require.NoError(t, err)

	key := env.filterKey(filter)
	_, cached := env.cache.Get(key)
	require.True(t, cached)

	env.createOrder(t, "B-2", "closed", 80)
	_, cached = env.cache.Get(key)
	require.True(t, cached, "non-matching create must not invalidate")

	env.createOrder(t, "B-3", "open", 20)
	_, cached = env.cache.Get(key)
	require.False(t, cached, "matching create must invalidate")

	instances, err := env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 2)
}

func TestDomainManager_LookupFilterInvalidation(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "C-1", "open", 150)
	env.createOrder(t, "C-2", "open", 50)

	filter := map[string]interface{}{"total__gt": 100}
	instances, err := env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	id, ok := instances[0].Field("order_id")
	require.True(t, ok)
	require.Equal(t, "C-1", id)

	key := env.filterKey(filter)
	env.createOrder(t, "C-3", "open", 70)
	_, cached := env.cache.Get(key)
	require.True(t, cached, "create below the threshold must not invalidate")

	env.createOrder(t, "C-4", "open", 200)
	_, cached = env.cache.Get(key)
	require.False(t, cached, "create above the threshold must invalidate")

	instances, err = env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 2)
}

func TestDomainManager_GetCachesAndUpdateInvalidates(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "D-1", "open", 40)
	env.createOrder(t, "D-2", "open", 60)

	identification := map[string]interface{}{"order_id": "D-1"}
	instance, err := env.manager.Get(ctx, identification)
	require.NoError(t, err)
	status, _ := instance.Field("status")
	require.Equal(t, "open", status)

	key := env.identKey(identification)
	_, cached := env.cache.Get(key)
	require.True(t, cached)

	// Updating a different entity leaves the cached read alone.
	_, err = env.manager.Update(ctx, map[string]interface{}{"order_id": "D-2"},
		map[string]interface{}{"status": "closed"})
	require.NoError(t, err)
	_, cached = env.cache.Get(key)
	require.True(t, cached)

	_, err = env.manager.Update(ctx, identification,
		map[string]interface{}{"status": "shipped"})
	require.NoError(t, err)
	_, cached = env.cache.Get(key)
	require.False(t, cached)

	instance, err = env.manager.Get(ctx, identification)
	require.NoError(t, err)
	status, _ = instance.Field("status")
	require.Equal(t, "shipped", status)
}

func TestDomainManager_ExcludeInvalidatesOnTransition(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "E-1", "open", 40)
	env.createOrder(t, "E-2", "closed", 80)

	exclude := map[string]interface{}{"status": "open"}
	instances, err := env.manager.Exclude(ctx, exclude)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	key := env.cache.BuildCacheKey("orders", types.OperationExclude, depcache.EncodeDescriptor(exclude))

	// A field the exclusion does not look at changes nothing.
	_, err = env.manager.Update(ctx, map[string]interface{}{"order_id": "E-1"},
		map[string]interface{}{"total": 45.0})
	require.NoError(t, err)
	_, cached := env.cache.Get(key)
	require.True(t, cached)

	// Leaving the excluded set is a transition and must invalidate.
	_, err = env.manager.Update(ctx, map[string]interface{}{"order_id": "E-1"},
		map[string]interface{}{"status": "closed"})
	require.NoError(t, err)
	_, cached = env.cache.Get(key)
	require.False(t, cached)

	instances, err = env.manager.Exclude(ctx, exclude)
	require.NoError(t, err)
	require.Len(t, instances, 2)
}

func TestDomainManager_DeleteInvalidates(t *testing.T) {
	env := newTestEnv(t, orderSchema())
	ctx := context.Background()

	env.createOrder(t, "F-1", "open", 40)
	env.createOrder(t, "F-2", "open", 60)

	filter := map[string]interface{}{"status": "open"}
	instances, err := env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	require.NoError(t, env.manager.Delete(ctx, map[string]interface{}{"order_id": "F-1"}))

	_, cached := env.cache.Get(env.filterKey(filter))
	require.False(t, cached)

	instances, err = env.manager.Filter(ctx, filter)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	_, err = env.manager.Get(ctx, map[string]interface{}{"order_id": "F-1"})
	require.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestDomainManager_ValidationRejectsBeforeWrite(t *testing.T) {
	schema := orderSchema()
	schema.Bundles = append(schema.Bundles, types.CapabilityValidation)
	schema.Attributes = map[string]interface{}{
		"validation_rules": map[string]interface{}{
			"order_id": "required",
			"contact":  "omitempty,email",
		},
	}

	env := newTestEnv(t, schema)
	ctx := context.Background()

	_, err := env.manager.Create(ctx, map[string]interface{}{
		"status": "open",
	})
	require.ErrorIs(t, err, types.ErrValidationFailed)

	_, err = env.manager.Create(ctx, map[string]interface{}{
		"order_id": "G-1",
		"contact":  "not-an-email",
	})
	require.ErrorIs(t, err, types.ErrValidationFailed)

	instances, err := env.manager.Filter(ctx, map[string]interface{}{})
	require.NoError(t, err)
	require.Empty(t, instances)

	_, err = env.manager.Create(ctx, map[string]interface{}{
		"order_id": "G-1",
		"contact":  "buyer@example.com",
	})
	require.NoError(t, err)
}

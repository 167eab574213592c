package depcache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

func newTestEngine(t *testing.T) (*Engine, *IndexStore, types.RecordStore) {
	t.Helper()

	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "eng:lock", 0, 0, 0)
	index := NewIndexStore(recordStore, zap.NewNop(), lock, "eng:index", "eng:val:")

	return NewEngine(index, zap.NewNop()), index, recordStore
}

func cacheValue(t *testing.T, recordStore types.RecordStore, cacheKey string) {
	t.Helper()
	require.NoError(t, recordStore.Set("eng:val:"+cacheKey, "cached", 0))
}

func valueExists(recordStore types.RecordStore, cacheKey string) bool {
	_, exists := recordStore.Get("eng:val:" + cacheKey)
	return exists
}

func orderInstance(data map[string]interface{}) *mapInstance {
	return &mapInstance{manager: "orders", data: data}
}

func invalidate(t *testing.T, engine *Engine, managerName string, instance types.Instance, oldValues map[string]interface{}) int {
	t.Helper()
	count, err := engine.InvalidateOnChange(managerName, instance, oldValues)
	require.NoError(t, err)
	return count
}

func TestEngine_FilterInvalidatesOnNewMatch(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("open-orders", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	cacheValue(t, recordStore, "open-orders")

	created := orderInstance(map[string]interface{}{"status": "open"})
	require.Equal(t, 1, invalidate(t, engine, "orders", created, nil))

	require.False(t, valueExists(recordStore, "open-orders"))
	require.Empty(t, index.GetFullIndex().Filter, "pruned entry must leave the index")
}

func TestEngine_FilterIgnoresNonMatching(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("open-orders", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	cacheValue(t, recordStore, "open-orders")

	created := orderInstance(map[string]interface{}{"status": "closed"})
	require.Equal(t, 0, invalidate(t, engine, "orders", created, nil))

	require.True(t, valueExists(recordStore, "open-orders"))
}

func TestEngine_FilterInvalidatesWhenStillMatching(t *testing.T) {
	// A cached computation may read any field of a matching instance, so a
	// filter entry fires even without a match transition.
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("open-orders", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	cacheValue(t, recordStore, "open-orders")

	updated := orderInstance(map[string]interface{}{"status": "open", "total": 99})
	oldValues := map[string]interface{}{"status": "open"}
	require.Equal(t, 1, invalidate(t, engine, "orders", updated, oldValues))

	require.False(t, valueExists(recordStore, "open-orders"))
}

func TestEngine_ExcludeInvalidatesOnlyOnTransition(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("not-archived", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationExclude, Descriptor: `{"archived": true}`},
	}))
	cacheValue(t, recordStore, "not-archived")

	// Still archived: excluded before and after, the covered set is stable.
	unchanged := orderInstance(map[string]interface{}{"archived": true})
	require.Equal(t, 0, invalidate(t, engine, "orders", unchanged,
		map[string]interface{}{"archived": true}))
	require.True(t, valueExists(recordStore, "not-archived"))

	// Unarchived: the instance entered the covered set.
	restored := orderInstance(map[string]interface{}{"archived": false})
	require.Equal(t, 1, invalidate(t, engine, "orders", restored,
		map[string]interface{}{"archived": true}))
	require.False(t, valueExists(recordStore, "not-archived"))
}

func TestEngine_ExcludeInvalidatesOnEntry(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("not-archived", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationExclude, Descriptor: `{"archived": true}`},
	}))
	cacheValue(t, recordStore, "not-archived")

	archived := orderInstance(map[string]interface{}{"archived": true})
	require.Equal(t, 1, invalidate(t, engine, "orders", archived,
		map[string]interface{}{"archived": false}))
	require.False(t, valueExists(recordStore, "not-archived"))
}

func TestEngine_IdentificationLookup(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("alice", []types.TrackedDependency{
		{Manager: "users", Operation: types.OperationIdentification, Descriptor: `{"email": "alice@example.com"}`},
	}))
	cacheValue(t, recordStore, "alice")

	// A different user does not touch the entry.
	other := &mapInstance{
		manager: "users",
		ident:   map[string]interface{}{"email": "bob@example.com"},
		data:    map[string]interface{}{"email": "bob@example.com"},
	}
	require.Equal(t, 0, invalidate(t, engine, "users", other, nil))
	require.True(t, valueExists(recordStore, "alice"))

	// The identified user does.
	alice := &mapInstance{
		manager: "users",
		ident:   map[string]interface{}{"email": "alice@example.com"},
		data:    map[string]interface{}{"email": "alice@example.com", "name": "Alice"},
	}
	require.Equal(t, 1, invalidate(t, engine, "users", alice, nil))
	require.False(t, valueExists(recordStore, "alice"))
}

func TestEngine_CompositeShieldsMembers(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("big-open", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))
	cacheValue(t, recordStore, "big-open")

	// status matches in isolation, but the conjunction does not hold: the
	// composite shields its members from false-positive selection.
	small := orderInstance(map[string]interface{}{"status": "open", "total": 50})
	require.Equal(t, 0, invalidate(t, engine, "orders", small,
		map[string]interface{}{"status": "closed", "total": 50}))
	require.True(t, valueExists(recordStore, "big-open"))

	big := orderInstance(map[string]interface{}{"status": "open", "total": 150})
	require.Equal(t, 1, invalidate(t, engine, "orders", big,
		map[string]interface{}{"status": "closed", "total": 150}))
	require.False(t, valueExists(recordStore, "big-open"))
}

func TestEngine_CompositeDoesNotShieldStandaloneDependency(t *testing.T) {
	// One key depends on status both standalone and inside a conjunction.
	// The conjunction not holding must not suppress the standalone entry.
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("open-view", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))
	cacheValue(t, recordStore, "open-view")

	reopened := orderInstance(map[string]interface{}{"status": "open", "total": 50})
	count := invalidate(t, engine, "orders", reopened,
		map[string]interface{}{"status": "closed", "total": 50})

	require.Equal(t, 1, count)
	require.False(t, valueExists(recordStore, "open-view"))
}

func TestEngine_CompositeDoesNotShieldOtherKeys(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("big-open", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))
	require.NoError(t, index.RecordDependencies("all-open", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	cacheValue(t, recordStore, "big-open")
	cacheValue(t, recordStore, "all-open")

	small := orderInstance(map[string]interface{}{"status": "open", "total": 50})
	require.Equal(t, 1, invalidate(t, engine, "orders", small, nil))

	require.True(t, valueExists(recordStore, "big-open"), "shielded conjunction survives")
	require.False(t, valueExists(recordStore, "all-open"), "single-field dependant still fires")
}

func TestEngine_OtherManagerUntouched(t *testing.T) {
	engine, index, recordStore := newTestEngine(t)

	require.NoError(t, index.RecordDependencies("open-orders", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	cacheValue(t, recordStore, "open-orders")

	user := &mapInstance{manager: "users", data: map[string]interface{}{"status": "open"}}
	require.Equal(t, 0, invalidate(t, engine, "users", user, nil))

	require.True(t, valueExists(recordStore, "open-orders"))
}

func TestEngine_NilInstanceRejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.InvalidateOnChange("orders", nil, nil)
	require.ErrorIs(t, err, types.ErrInvalidParameter)
}

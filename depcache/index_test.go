package depcache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

func TestIndexStore_EmptyByDefault(t *testing.T) {
	index := newTestIndex(t)

	idx := index.GetFullIndex()
	require.NotNil(t, idx.Filter)
	require.NotNil(t, idx.Exclude)
	require.Empty(t, idx.Filter)
	require.Empty(t, idx.Exclude)
}

func TestIndexStore_CorruptedBlobRecovers(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "l", 0, 0, 0)
	index := NewIndexStore(recordStore, zap.NewNop(), lock, "idx", "val:")

	require.NoError(t, recordStore.Set("idx", "{{{not json", 0))

	idx := index.GetFullIndex()
	require.NotNil(t, idx)
	require.Empty(t, idx.Filter)
}

func TestIndexStore_RecordDependencies(t *testing.T) {
	index := newTestIndex(t)

	err := index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
		{Manager: "orders", Operation: types.OperationExclude, Descriptor: `{"archived": true}`},
	})
	require.NoError(t, err)

	idx := index.GetFullIndex()

	filterKeys := idx.Filter["orders"].Lookups["status"][`'open'`]
	require.True(t, filterKeys.Contains("key1"))

	excludeKeys := idx.Exclude["orders"].Lookups["archived"]["true"]
	require.True(t, excludeKeys.Contains("key1"))
}

func TestIndexStore_RecordDependencies_MergesKeys(t *testing.T) {
	index := newTestIndex(t)

	dep := []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}
	require.NoError(t, index.RecordDependencies("key1", dep))
	require.NoError(t, index.RecordDependencies("key2", dep))

	keys := index.GetFullIndex().Filter["orders"].Lookups["status"][`'open'`]
	require.True(t, keys.Contains("key1"))
	require.True(t, keys.Contains("key2"))
}

func TestIndexStore_IdentificationFoldsIntoFilter(t *testing.T) {
	index := newTestIndex(t)

	err := index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "users", Operation: types.OperationIdentification, Descriptor: `{"email": "a@b.c", "realm": "main"}`},
	})
	require.NoError(t, err)

	idx := index.GetFullIndex()
	require.Empty(t, idx.Exclude)

	// Identification entries live under a single "identification" lookup
	// whose serialized value is the canonical sorted-key JSON descriptor.
	values := idx.Filter["users"].Lookups["identification"]
	require.Len(t, values, 1)
	require.True(t, values[`{"email": "a@b.c", "realm": "main"}`].Contains("key1"))

	// No composite entry is produced for identification descriptors.
	require.Empty(t, idx.Filter["users"].Composites)
}

func TestIndexStore_CompositeDescriptors(t *testing.T) {
	index := newTestIndex(t)

	err := index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	})
	require.NoError(t, err)

	mi := index.GetFullIndex().Filter["orders"]

	// Both member lookups are indexed individually...
	require.True(t, mi.Lookups["status"][`'open'`].Contains("key1"))
	require.True(t, mi.Lookups["total__gt"]["100"].Contains("key1"))

	// ...and the conjunction is recorded once for the cache key.
	require.Len(t, mi.Composites["key1"], 1)
	require.Equal(t, `{"status": "open", "total__gt": 100}`, mi.Composites["key1"][0])
}

func TestIndexStore_LeafProvenance(t *testing.T) {
	index := newTestIndex(t)

	require.NoError(t, index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))

	mi := index.GetFullIndex().Filter["orders"]
	require.False(t, mi.Lookups["status"][`'open'`].Standalone("key1"),
		"composite member must not carry standalone provenance")

	// A standalone record on the same leaf upgrades, and a later composite
	// record must not downgrade it back.
	require.NoError(t, index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))
	require.NoError(t, index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))

	mi = index.GetFullIndex().Filter["orders"]
	require.True(t, mi.Lookups["status"][`'open'`].Standalone("key1"))
}

func TestIndexStore_CompositeDeduplicated(t *testing.T) {
	index := newTestIndex(t)

	dep := []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"a": 1, "b": 2}`},
	}
	require.NoError(t, index.RecordDependencies("key1", dep))
	require.NoError(t, index.RecordDependencies("key1", dep))

	mi := index.GetFullIndex().Filter["orders"]
	require.Len(t, mi.Composites["key1"], 1)
}

func TestIndexStore_UnparseableDescriptorSkipped(t *testing.T) {
	index := newTestIndex(t)

	err := index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `not json`},
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	})
	require.NoError(t, err)

	mi := index.GetFullIndex().Filter["orders"]
	require.Len(t, mi.Lookups, 1)
	require.True(t, mi.Lookups["status"][`'open'`].Contains("key1"))
}

func TestIndexStore_EmptyCacheKeyRejected(t *testing.T) {
	index := newTestIndex(t)
	err := index.RecordDependencies("", nil)
	require.ErrorIs(t, err, types.ErrCacheKeyEmpty)
}

func TestIndexStore_RemoveCacheKeyPrunes(t *testing.T) {
	index := newTestIndex(t)

	require.NoError(t, index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "total__gt": 100}`},
	}))
	require.NoError(t, index.RecordDependencies("key2", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))

	require.NoError(t, index.RemoveCacheKeyFromIndex("key1"))

	mi := index.GetFullIndex().Filter["orders"]
	require.True(t, mi.Lookups["status"][`'open'`].Contains("key2"))
	require.False(t, mi.Lookups["status"][`'open'`].Contains("key1"))
	require.NotContains(t, mi.Lookups, "total__gt", "emptied lookup must be pruned")
	require.Empty(t, mi.Composites)

	// Removing the last key removes the manager entry entirely.
	require.NoError(t, index.RemoveCacheKeyFromIndex("key2"))
	require.Empty(t, index.GetFullIndex().Filter)
}

func TestIndexStore_RemoveCacheKeyIdempotent(t *testing.T) {
	index := newTestIndex(t)
	require.NoError(t, index.RemoveCacheKeyFromIndex("never-recorded"))
}

func TestIndexStore_TrackedFields(t *testing.T) {
	index := newTestIndex(t)

	require.NoError(t, index.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open", "owner__name__contains": "a"}`},
		{Manager: "orders", Operation: types.OperationExclude, Descriptor: `{"total__gt": 10}`},
		{Manager: "users", Operation: types.OperationFilter, Descriptor: `{"email": "x"}`},
	}))

	fields := index.TrackedFields("orders")
	require.ElementsMatch(t, []string{"status", "owner__name", "total"}, fields)

	require.ElementsMatch(t, []string{"email"}, index.TrackedFields("users"))
	require.Empty(t, index.TrackedFields("unknown"))
}

func TestIndexStore_Persistence(t *testing.T) {
	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "l", 0, 0, 0)

	first := NewIndexStore(recordStore, zap.NewNop(), lock, "idx", "val:")
	require.NoError(t, first.RecordDependencies("key1", []types.TrackedDependency{
		{Manager: "orders", Operation: types.OperationFilter, Descriptor: `{"status": "open"}`},
	}))

	// A second store over the same backing record store sees the same index.
	second := NewIndexStore(recordStore, zap.NewNop(), lock, "idx", "val:")
	keys := second.GetFullIndex().Filter["orders"].Lookups["status"][`'open'`]
	require.True(t, keys.Contains("key1"))
}

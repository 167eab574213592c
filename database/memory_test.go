package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

func newTestDB(t *testing.T) types.DatabaseManager {
	t.Helper()

	db, err := NewMemoryDB(context.Background(), zap.NewNop(), &types.DatabaseConfig{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Stop() })

	return db
}

func seedOrders(t *testing.T, db types.DatabaseManager) []string {
	t.Helper()

	ids, err := db.CreateDocuments(context.Background(), types.CreateDocumentsRequest{
		Collection: "orders",
		Data: []interface{}{
			map[string]interface{}{"number": "A-1", "status": "open", "total": 40},
			map[string]interface{}{"number": "A-2", "status": "open", "total": 150},
			map[string]interface{}{"number": "A-3", "status": "closed", "total": 90},
		},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	return ids
}

func TestMemoryDB_CreateAssignsIdentity(t *testing.T) {
	db := newTestDB(t)
	ids := seedOrders(t, db)

	docs, count, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"internal_id": ids[0]},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, "A-1", docs[0]["number"])
	require.NotEmpty(t, docs[0]["cr_time"])
}

func TestMemoryDB_OperatorFilters(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	ctx := context.Background()

	docs, _, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"total": map[string]interface{}{"$gt": 100}},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "A-2", docs[0]["number"])

	_, count, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "orders",
		Filter: map[string]interface{}{
			"status": map[string]interface{}{"$in": []interface{}{"open", "pending"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	_, count, err = db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"status": map[string]interface{}{"$ne": "open"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestMemoryDB_SortSkipLimit(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	docs, count, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "orders",
		Sort:       map[string]int{"total": -1},
		Skip:       1,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.Len(t, docs, 1)
	require.Equal(t, "A-3", docs[0]["number"])
}

func TestMemoryDB_UpdateSetMerges(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	ctx := context.Background()

	updated, err := db.UpdateDocuments(ctx, types.UpdateDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"number": "A-1"},
		Data:       map[string]interface{}{"$set": map[string]interface{}{"status": "closed"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	docs, _, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"number": "A-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "closed", docs[0]["status"])
	require.Equal(t, 40, docs[0]["total"])
}

func TestMemoryDB_UpsertCreatesMissing(t *testing.T) {
	db := newTestDB(t)

	updated, err := db.UpdateDocuments(context.Background(), types.UpdateDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"number": "A-9"},
		Data:       map[string]interface{}{"$set": map[string]interface{}{"number": "A-9", "status": "open"}},
		Upsert:     true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), updated)

	docs, _, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"number": "A-9"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NotEmpty(t, docs[0]["internal_id"])
}

func TestMemoryDB_DeleteByFilter(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	deleted, err := db.DeleteDocuments(context.Background(), types.DeleteDocumentsRequest{
		Collection: "orders",
		Filter:     map[string]interface{}{"status": "open"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	_, count, err := db.ReadDocuments(context.Background(), types.ReadDocumentsRequest{
		Collection: "orders",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestMemoryDB_ReadDoesNotExposeInternalState(t *testing.T) {
	db := newTestDB(t)
	seedOrders(t, db)

	ctx := context.Background()
	filter := map[string]interface{}{"number": "A-1"}

	docs, _, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{Collection: "orders", Filter: filter})
	require.NoError(t, err)

	docs[0]["status"] = "mutated"

	again, _, err := db.ReadDocuments(ctx, types.ReadDocumentsRequest{Collection: "orders", Filter: filter})
	require.NoError(t, err)
	require.Equal(t, "open", again[0]["status"])
}

package depcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/store"
	"github.com/saiset-co/sai-manager/types"
)

type mapInstance struct {
	manager string
	ident   map[string]interface{}
	data    map[string]interface{}
}

func (i *mapInstance) ManagerName() string { return i.manager }

func (i *mapInstance) Identification() map[string]interface{} { return i.ident }

func (i *mapInstance) Field(name string) (interface{}, bool) {
	value, exists := i.data[name]
	return value, exists
}

func newTestStore(t *testing.T) types.RecordStore {
	t.Helper()

	recordStore, err := store.NewMemoryStore(context.Background(), zap.NewNop(), &types.StoreConfig{
		Enabled: true,
		Type:    "memory",
	}, nil)
	require.NoError(t, err)

	return recordStore
}

func newTestIndex(t *testing.T) *IndexStore {
	t.Helper()

	recordStore := newTestStore(t)
	lock := NewIndexLock(recordStore, zap.NewNop(), "test:lock",
		time.Second, time.Second, time.Millisecond)

	return NewIndexStore(recordStore, zap.NewNop(), lock, "test:index", "test:val:")
}

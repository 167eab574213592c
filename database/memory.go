package database

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-manager/types"
)

type memCollection map[string]map[string]interface{}

// MemoryDB keeps collections as maps keyed by internal_id. It backs
// tests and single-process deployments where durability is not needed.
type MemoryDB struct {
	collections map[string]memCollection
	mutex       sync.RWMutex
	logger      types.Logger
	state       atomic.Value
}

func NewMemoryDB(ctx context.Context, logger types.Logger, config *types.DatabaseConfig, metrics types.MetricsManager, health types.HealthManager) (types.DatabaseManager, error) {
	mdb := &MemoryDB{
		collections: make(map[string]memCollection),
		logger:      logger,
	}

	mdb.state.Store(StateStopped)
	return mdb, nil
}

func (m *MemoryDB) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}
	m.setState(StateRunning)

	m.logger.Info("MemoryDB started")
	return nil
}

func (m *MemoryDB) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer m.setState(StateStopped)

	m.mutex.Lock()
	m.collections = make(map[string]memCollection)
	m.mutex.Unlock()

	m.logger.Info("MemoryDB stopped gracefully")
	return nil
}

func (m *MemoryDB) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryDB) CreateCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collectionName]; exists {
		return types.ErrDatabaseCollectionExists
	}

	m.collections[collectionName] = make(memCollection)
	return nil
}

func (m *MemoryDB) DropCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.collections, collectionName)
	return nil
}

func (m *MemoryDB) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection := m.collection(request.Collection)

	ids := make([]string, 0, len(request.Data))
	now := nowNano()

	for i, data := range request.Data {
		dataMap, ok := data.(map[string]interface{})
		if !ok {
			return nil, types.NewError("data must be a map")
		}

		doc := copyDocument(dataMap)
		internalID := stampNew(doc, now, i)

		collection[internalID] = doc
		ids = append(ids, internalID)
	}

	return ids, nil
}

func (m *MemoryDB) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	var matched []map[string]interface{}
	for _, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			matched = append(matched, copyDocument(doc))
		}
	}

	total := int64(len(matched))

	if len(request.Sort) > 0 {
		sortDocuments(matched, request.Sort)
	}

	if request.Skip > 0 {
		if request.Skip >= len(matched) {
			return []map[string]interface{}{}, total, nil
		}
		matched = matched[request.Skip:]
	}

	if request.Limit > 0 && request.Limit < len(matched) {
		matched = matched[:request.Limit]
	}

	return matched, total, nil
}

func (m *MemoryDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		if !request.Upsert {
			return 0, nil
		}
		collection = m.collection(request.Collection)
	}

	var matchingIDs []string
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			matchingIDs = append(matchingIDs, id)
		}
	}

	if len(matchingIDs) == 0 {
		if !request.Upsert {
			return 0, nil
		}

		newDoc := make(map[string]interface{})
		if err := applyUpdate(newDoc, request.Data); err != nil {
			return 0, err
		}
		internalID := stampNew(newDoc, nowNano(), 0)
		collection[internalID] = newDoc
		return 1, nil
	}

	now := nowNano()
	for _, id := range matchingIDs {
		doc := collection[id]
		if err := applyUpdate(doc, request.Data); err != nil {
			continue
		}
		doc["ch_time"] = now
	}

	return int64(len(matchingIDs)), nil
}

func (m *MemoryDB) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return 0, nil
	}

	var toDelete []string
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(collection, id)
	}

	return int64(len(toDelete)), nil
}

// collection returns the named collection, creating it if missing.
// Callers must hold the write lock.
func (m *MemoryDB) collection(name string) memCollection {
	collection, exists := m.collections[name]
	if !exists {
		collection = make(memCollection)
		m.collections[name] = collection
	}
	return collection
}

func copyDocument(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]interface{}); ok {
			dst[k] = copyDocument(nested)
			continue
		}
		dst[k] = v
	}
	return dst
}

func (m *MemoryDB) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryDB) setState(newState State) bool {
	return m.state.CompareAndSwap(m.getState(), newState)
}

func (m *MemoryDB) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

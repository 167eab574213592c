package database

import (
	"context"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

// CloverDB is the embedded persistent backend. An empty path opens an
// in-memory instance, which the tests rely on.
type CloverDB struct {
	db     *clover.DB
	logger types.Logger
	path   string
	state  atomic.Value
}

func NewCloverDB(ctx context.Context, logger types.Logger, config *types.DatabaseConfig, metrics types.MetricsManager, health types.HealthManager) (types.DatabaseManager, error) {
	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	cdb := &CloverDB{
		db:     db,
		logger: logger,
		path:   config.Path,
	}

	cdb.state.Store(StateStopped)
	return cdb, nil
}

func (c *CloverDB) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}
	c.setState(StateRunning)

	c.logger.Info("CloverDB started", zap.String("path", c.path))
	return nil
}

func (c *CloverDB) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer c.setState(StateStopped)

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("CloverDB stopped gracefully")
	return nil
}

func (c *CloverDB) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverDB) CreateCollection(collectionName string) error {
	exists, err := c.db.HasCollection(collectionName)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}
	if exists {
		return types.ErrDatabaseCollectionExists
	}

	if err := c.db.CreateCollection(collectionName); err != nil {
		return types.WrapError(err, "failed to create collection")
	}
	return nil
}

func (c *CloverDB) DropCollection(collectionName string) error {
	if err := c.db.DropCollection(collectionName); err != nil {
		return types.WrapError(err, "failed to drop collection")
	}
	return nil
}

func (c *CloverDB) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	if err := c.ensureCollection(request.Collection); err != nil {
		return nil, err
	}

	docs := make([]*clover.Document, 0, len(request.Data))
	ids := make([]string, 0, len(request.Data))
	now := nowNano()

	for i, data := range request.Data {
		dataMap, ok := data.(map[string]interface{})
		if !ok {
			return nil, types.NewError("data must be a map")
		}

		stamped := copyDocument(dataMap)
		internalID := stampNew(stamped, now, i)

		doc := clover.NewDocument()
		for key, value := range stamped {
			doc.Set(key, value)
		}

		docs = append(docs, doc)
		ids = append(ids, internalID)
	}

	if err := c.db.Insert(request.Collection, docs...); err != nil {
		return nil, types.WrapError(err, "failed to insert documents")
	}

	return ids, nil
}

func (c *CloverDB) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	query := c.filteredQuery(request.Collection, request.Filter)

	for field, order := range request.Sort {
		query = query.Sort(clover.SortOption{Field: field, Direction: order})
	}
	if request.Skip > 0 {
		query = query.Skip(request.Skip)
	}
	if request.Limit > 0 {
		query = query.Limit(request.Limit)
	}

	cloverDocs, err := query.FindAll()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to find documents")
	}

	// The total ignores pagination so callers can page through results.
	totalCount, err := c.filteredQuery(request.Collection, request.Filter).Count()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to count documents")
	}

	results := make([]map[string]interface{}, 0, len(cloverDocs))
	for _, doc := range cloverDocs {
		docMap := make(map[string]interface{})
		if err := doc.Unmarshal(&docMap); err != nil {
			continue
		}
		delete(docMap, "_id")
		results = append(results, docMap)
	}

	return results, int64(totalCount), nil
}

func (c *CloverDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if !request.Upsert {
			return 0, nil
		}
		if err := c.db.CreateCollection(request.Collection); err != nil {
			return 0, types.WrapError(err, "failed to create collection")
		}
	}

	query := c.filteredQuery(request.Collection, request.Filter)

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if count == 0 {
		if !request.Upsert {
			return 0, nil
		}

		newDoc := make(map[string]interface{})
		if err := applyUpdate(newDoc, request.Data); err != nil {
			return 0, err
		}
		stampNew(newDoc, nowNano(), 0)

		doc := clover.NewDocument()
		for key, value := range newDoc {
			doc.Set(key, value)
		}

		if err := c.db.Insert(request.Collection, doc); err != nil {
			return 0, types.WrapError(err, "failed to insert upserted document")
		}
		return 1, nil
	}

	updateMap := make(map[string]interface{})
	if err := applyUpdate(updateMap, request.Data); err != nil {
		return 0, err
	}
	updateMap["ch_time"] = nowNano()

	if err := query.Update(updateMap); err != nil {
		return 0, types.WrapError(err, "failed to update documents")
	}

	return int64(count), nil
}

func (c *CloverDB) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		return 0, nil
	}

	query := c.filteredQuery(request.Collection, request.Filter)

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}
	if count == 0 {
		return 0, nil
	}

	if err := query.Delete(); err != nil {
		return 0, types.WrapError(err, "failed to delete documents")
	}

	return int64(count), nil
}

func (c *CloverDB) ensureCollection(name string) error {
	exists, err := c.db.HasCollection(name)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}
	if !exists {
		if err := c.db.CreateCollection(name); err != nil {
			return types.WrapError(err, "failed to create collection")
		}
	}
	return nil
}

func (c *CloverDB) filteredQuery(collection string, filter map[string]interface{}) *clover.Query {
	query := c.db.Query(collection)
	for key, value := range filter {
		query = c.applyFieldFilter(query, key, value)
	}
	return query
}

func (c *CloverDB) applyFieldFilter(query *clover.Query, key string, value interface{}) *clover.Query {
	operators, ok := value.(map[string]interface{})
	if !ok {
		return query.Where(clover.Field(key).Eq(value))
	}

	for op, opValue := range operators {
		switch op {
		case "$eq":
			query = query.Where(clover.Field(key).Eq(opValue))
		case "$ne":
			query = query.Where(clover.Field(key).Neq(opValue))
		case "$gt":
			query = query.Where(clover.Field(key).Gt(opValue))
		case "$gte":
			query = query.Where(clover.Field(key).GtEq(opValue))
		case "$lt":
			query = query.Where(clover.Field(key).Lt(opValue))
		case "$lte":
			query = query.Where(clover.Field(key).LtEq(opValue))
		case "$in":
			if arr, ok := opValue.([]interface{}); ok {
				query = query.Where(clover.Field(key).In(arr...))
			}
		case "$nin":
			if arr, ok := opValue.([]interface{}); ok {
				query = query.Where(clover.Field(key).In(arr...).Not())
			}
		case "$exists":
			if want, ok := opValue.(bool); ok {
				if want {
					query = query.Where(clover.Field(key).Exists())
				} else {
					query = query.Where(clover.Field(key).NotExists())
				}
			}
		case "$regex":
			if pattern, ok := opValue.(string); ok {
				query = query.Where(clover.Field(key).Like(pattern))
			}
		}
	}

	return query
}

func (c *CloverDB) getState() State {
	return c.state.Load().(State)
}

func (c *CloverDB) setState(newState State) bool {
	return c.state.CompareAndSwap(c.getState(), newState)
}

func (c *CloverDB) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}

package capability

import (
	"context"
	"strings"

	"github.com/saiset-co/sai-manager/depcache"
	"github.com/saiset-co/sai-manager/types"
)

type queryCapability struct {
	ormBase
}

func NewQueryCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	return &queryCapability{ormBase: newOrmBase(schema, runtime)}, nil
}

func (c *queryCapability) Name() types.CapabilityName {
	return types.CapabilityQuery
}

// Query evaluates a filter/exclude pair against the collection. Plain
// equality keys are pushed down to the database; lookup-suffixed keys are
// evaluated locally with the same predicate semantics the invalidation
// engine uses, so a document the query selects today is exactly a document
// whose change invalidates the query tomorrow.
func (c *queryCapability) Query(ctx context.Context, request types.QueryRequest) ([]types.Instance, error) {
	c.trackQuery(ctx, request)

	dbFilter, localFilter := c.splitFilter(request.Filter)

	docs, _, err := c.runtime.Database.ReadDocuments(ctx, types.ReadDocumentsRequest{
		Collection: c.collection,
		Filter:     dbFilter,
		Sort:       request.Sort,
	})
	if err != nil {
		return nil, types.WrapError(err, "failed to read documents")
	}

	instances := make([]types.Instance, 0, len(docs))
	for _, doc := range docs {
		instance := c.instance(doc)
		if !matchesAll(localFilter, instance) {
			continue
		}
		if len(request.Exclude) > 0 && matchesAll(request.Exclude, instance) {
			continue
		}
		instances = append(instances, instance)
	}

	return paginate(instances, request.Skip, request.Limit), nil
}

func (c *queryCapability) trackQuery(ctx context.Context, request types.QueryRequest) {
	if !depcache.TrackingActive(ctx) {
		return
	}

	if len(request.Filter) > 0 {
		depcache.Track(ctx, c.schema.Name, types.OperationFilter,
			depcache.EncodeDescriptor(request.Filter))
	}
	if len(request.Exclude) > 0 {
		depcache.Track(ctx, c.schema.Name, types.OperationExclude,
			depcache.EncodeDescriptor(request.Exclude))
	}
}

// splitFilter separates plain equality keys, which the database evaluates,
// from lookup predicates evaluated locally.
func (c *queryCapability) splitFilter(filter map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	dbFilter := make(map[string]interface{})
	localFilter := make(map[string]interface{})

	for key, value := range filter {
		if strings.Contains(key, "__") {
			localFilter[key] = value
			continue
		}
		dbFilter[key] = value
	}

	return dbFilter, localFilter
}

// matchesAll reports whether every predicate in the descriptor holds for
// the instance. Missing fields never match.
func matchesAll(descriptor map[string]interface{}, instance types.Instance) bool {
	for fieldKey, expected := range descriptor {
		path, lookup := depcache.SplitFieldKey(fieldKey)
		current, present := depcache.ResolvePath(instance, path)
		if !depcache.Matches(lookup, depcache.EncodeValue(expected), current, present) {
			return false
		}
	}
	return true
}

func paginate(instances []types.Instance, skip, limit int) []types.Instance {
	if skip > 0 {
		if skip >= len(instances) {
			return []types.Instance{}
		}
		instances = instances[skip:]
	}
	if limit > 0 && limit < len(instances) {
		instances = instances[:limit]
	}
	return instances
}

var _ types.Querier = (*queryCapability)(nil)

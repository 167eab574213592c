package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-manager/capability"
	"github.com/saiset-co/sai-manager/depcache"
	"github.com/saiset-co/sai-manager/types"
)

// DomainManager is the uniform facade over one interface schema. Reads go
// through the cache with dependency tracking; mutations run the lifecycle
// hooks so every affected cache entry is invalidated and the change is
// journaled and published.
type DomainManager struct {
	schema     *types.InterfaceSchema
	registry   *capability.Registry
	runtime    *types.CapabilityRuntime
	hooks      *depcache.LifecycleHooks
	logger     types.Logger
	identifier string
	cacheTTL   time.Duration
}

func New(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime, cacheTTL time.Duration) (*DomainManager, error) {
	registry, err := capability.NewRegistry(schema, runtime)
	if err != nil {
		return nil, err
	}

	identifier := schema.Identifier
	if identifier == "" {
		identifier = "internal_id"
	}

	return &DomainManager{
		schema:     schema,
		registry:   registry,
		runtime:    runtime,
		hooks:      depcache.NewLifecycleHooks(runtime.Cache, runtime.Events, runtime.Logger),
		logger:     runtime.Logger,
		identifier: identifier,
		cacheTTL:   cacheTTL,
	}, nil
}

func (m *DomainManager) Name() string {
	return m.schema.Name
}

func (m *DomainManager) Registry() *capability.Registry {
	return m.registry
}

func (m *DomainManager) Filter(ctx context.Context, filter map[string]interface{}) ([]types.Instance, error) {
	return m.query(ctx, types.OperationFilter, types.QueryRequest{Filter: filter})
}

func (m *DomainManager) Exclude(ctx context.Context, filter map[string]interface{}) ([]types.Instance, error) {
	return m.query(ctx, types.OperationExclude, types.QueryRequest{Exclude: filter})
}

// query serves a filter or exclude read. On a cache miss the capability
// query runs inside a tracking scope and the collected dependencies are
// recorded against the fresh cache entry before it is returned.
func (m *DomainManager) query(ctx context.Context, operation types.Operation, request types.QueryRequest) ([]types.Instance, error) {
	descriptor := request.Filter
	if operation == types.OperationExclude {
		descriptor = request.Exclude
	}

	cacheKey := ""
	if m.runtime.Cache != nil {
		cacheKey = m.runtime.Cache.BuildCacheKey(m.schema.Name, operation, depcache.EncodeDescriptor(descriptor))
		if cached, hit := m.runtime.Cache.Get(cacheKey); hit {
			if docs, ok := decodeDocs(cached); ok {
				return m.instances(docs), nil
			}
		}
	}

	result, err := capability.Dispatch(m.registry, string(operation), descriptor, func() (interface{}, error) {
		querier, err := capability.Require[types.Querier](m.registry, types.CapabilityQuery)
		if err != nil {
			return nil, err
		}

		queryCtx := ctx
		var scope *depcache.TrackerScope
		if m.runtime.Cache != nil {
			queryCtx, scope = depcache.BeginTracking(ctx)
		}

		instances, err := querier.Query(queryCtx, request)
		if err != nil {
			return nil, err
		}

		if scope != nil && cacheKey != "" {
			deps := scope.End()
			if cacheErr := m.runtime.Cache.Set(cacheKey, encodeDocs(instances), m.cacheTTL); cacheErr != nil {
				m.logger.Warn("failed to cache query result")
			} else if recordErr := m.runtime.Cache.RecordDependencies(cacheKey, deps); recordErr != nil {
				m.logger.Warn("failed to record cache dependencies")
			}
		}

		return instances, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]types.Instance), nil
}

func (m *DomainManager) Get(ctx context.Context, identification map[string]interface{}) (types.Instance, error) {
	descriptor := depcache.EncodeDescriptor(identification)

	cacheKey := ""
	if m.runtime.Cache != nil {
		cacheKey = m.runtime.Cache.BuildCacheKey(m.schema.Name, types.OperationIdentification, descriptor)
		if cached, hit := m.runtime.Cache.Get(cacheKey); hit {
			if doc, ok := decodeDoc(cached); ok {
				return capability.NewDocumentInstance(m.schema.Name, m.identifier, doc), nil
			}
		}
	}

	result, err := capability.Dispatch(m.registry, "get", identification, func() (interface{}, error) {
		reader, err := capability.Require[types.Reader](m.registry, types.CapabilityRead)
		if err != nil {
			return nil, err
		}

		readCtx := ctx
		var scope *depcache.TrackerScope
		if m.runtime.Cache != nil {
			readCtx, scope = depcache.BeginTracking(ctx)
		}

		instance, err := reader.Read(readCtx, identification)
		if err != nil {
			return nil, err
		}

		if scope != nil && cacheKey != "" {
			deps := scope.End()
			if cacheErr := m.runtime.Cache.Set(cacheKey, encodeDoc(instance), m.cacheTTL); cacheErr != nil {
				m.logger.Warn("failed to cache instance")
			} else if recordErr := m.runtime.Cache.RecordDependencies(cacheKey, deps); recordErr != nil {
				m.logger.Warn("failed to record cache dependencies")
			}
		}

		return instance, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(types.Instance), nil
}

func (m *DomainManager) Create(ctx context.Context, payload map[string]interface{}) (types.Instance, error) {
	if err := m.validate(ctx, payload); err != nil {
		return nil, err
	}

	result, err := capability.Dispatch(m.registry, "create", payload, func() (interface{}, error) {
		creator, err := capability.Require[types.Creator](m.registry, types.CapabilityCreate)
		if err != nil {
			return nil, err
		}
		return creator.Create(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	instance := result.(types.Instance)
	m.journal(ctx, instance, types.HistoryActionCreate, nil, payload)
	m.hooks.AfterChange(m.schema.Name, instance, types.HistoryActionCreate, nil)

	return instance, nil
}

func (m *DomainManager) Update(ctx context.Context, identification map[string]interface{}, payload map[string]interface{}) (types.Instance, error) {
	if err := m.validate(ctx, payload); err != nil {
		return nil, err
	}

	previous := m.snapshot(ctx, identification)
	var oldValues map[string]interface{}
	if previous != nil {
		oldValues = m.hooks.CaptureOldValues(m.schema.Name, previous)
	}

	result, err := capability.Dispatch(m.registry, "update", payload, func() (interface{}, error) {
		updater, err := capability.Require[types.Updater](m.registry, types.CapabilityUpdate)
		if err != nil {
			return nil, err
		}
		return updater.Update(ctx, identification, payload)
	})
	if err != nil {
		return nil, err
	}

	instance := result.(types.Instance)
	m.journal(ctx, instance, types.HistoryActionUpdate, encodeDoc(previous), payload)
	m.hooks.AfterChange(m.schema.Name, instance, types.HistoryActionUpdate, oldValues)

	return instance, nil
}

func (m *DomainManager) Delete(ctx context.Context, identification map[string]interface{}) error {
	previous := m.snapshot(ctx, identification)
	var oldValues map[string]interface{}
	if previous != nil {
		oldValues = m.hooks.CaptureOldValues(m.schema.Name, previous)
	}

	_, err := capability.Dispatch(m.registry, "delete", identification, func() (interface{}, error) {
		deleter, err := capability.Require[types.Deleter](m.registry, types.CapabilityDelete)
		if err != nil {
			return nil, err
		}
		return deleter.Delete(ctx, identification)
	})
	if err != nil {
		return err
	}

	if previous != nil {
		m.journal(ctx, previous, types.HistoryActionDelete, encodeDoc(previous), nil)
		m.hooks.AfterChange(m.schema.Name, previous, types.HistoryActionDelete, oldValues)
	}

	return nil
}

func (m *DomainManager) History(ctx context.Context, entityID string) ([]types.HistoryEntry, error) {
	result, err := capability.Dispatch(m.registry, "history", entityID, func() (interface{}, error) {
		historian, err := capability.Require[types.Historian](m.registry, types.CapabilityHistory)
		if err != nil {
			return nil, err
		}
		return historian.History(ctx, entityID)
	})
	if err != nil {
		return nil, err
	}

	return result.([]types.HistoryEntry), nil
}

func (m *DomainManager) validate(ctx context.Context, payload map[string]interface{}) error {
	if !m.registry.Has(types.CapabilityValidation) {
		return nil
	}

	validator, err := capability.Require[types.Validator](m.registry, types.CapabilityValidation)
	if err != nil {
		return err
	}

	return validator.Validate(ctx, payload)
}

// snapshot reads the pre-image of a mutation without dependency tracking.
// An unreadable pre-image degrades invalidation precision, not correctness
// of the write itself.
func (m *DomainManager) snapshot(ctx context.Context, identification map[string]interface{}) types.Instance {
	if !m.registry.Has(types.CapabilityRead) {
		return nil
	}

	reader, err := capability.Require[types.Reader](m.registry, types.CapabilityRead)
	if err != nil {
		return nil
	}

	instance, err := reader.Read(ctx, identification)
	if err != nil {
		return nil
	}

	return instance
}

func (m *DomainManager) journal(ctx context.Context, instance types.Instance, action string, oldValues, newValues map[string]interface{}) {
	if m.runtime.History == nil || !m.registry.Has(types.CapabilityHistory) {
		return
	}

	entityID := ""
	if id, ok := instance.Field(m.identifier); ok {
		if s, isString := id.(string); isString {
			entityID = s
		}
	}
	if entityID == "" {
		if id, ok := instance.Field("internal_id"); ok {
			if s, isString := id.(string); isString {
				entityID = s
			}
		}
	}

	entry := types.HistoryEntry{
		ID:        uuid.New().String(),
		Manager:   m.schema.Name,
		EntityID:  entityID,
		Action:    action,
		OldValues: oldValues,
		NewValues: newValues,
		ChangedAt: time.Now().UTC(),
	}

	if err := m.runtime.History.Append(ctx, entry); err != nil {
		m.logger.Warn("failed to append history entry")
	}
}

var _ types.Manager = (*DomainManager)(nil)

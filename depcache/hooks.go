package depcache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

// LifecycleHooks is the explicit pre/post change glue around mutations.
// The write path calls CaptureOldValues before committing and AfterChange
// after; any mutation path that bypasses these calls will not be correctly
// invalidated, which is a documented precondition of the cache.
type LifecycleHooks struct {
	cache  types.CacheManager
	events types.EventBroker
	logger types.Logger
}

func NewLifecycleHooks(cache types.CacheManager, events types.EventBroker, logger types.Logger) *LifecycleHooks {
	return &LifecycleHooks{
		cache:  cache,
		events: events,
		logger: logger,
	}
}

// CaptureOldValues snapshots exactly the field paths the index currently
// tracks for the manager, keyed the way the index keys them. Fields absent
// on the instance are left out so the engine treats them as non-matching.
func (h *LifecycleHooks) CaptureOldValues(managerName string, instance types.Instance) map[string]interface{} {
	if h.cache == nil || instance == nil {
		return nil
	}

	tracked := h.cache.TrackedFields(managerName)
	if len(tracked) == 0 {
		return nil
	}

	oldValues := make(map[string]interface{}, len(tracked))
	for _, field := range tracked {
		path, _ := SplitFieldKey(field)
		if value, ok := ResolvePath(instance, path); ok {
			oldValues[field] = value
		}
	}

	return oldValues
}

// AfterChange runs the invalidation engine with the captured snapshot and
// publishes the change event. The mutation has already committed: a cache
// or event failure here is logged, never turned into a caller-visible
// failure of the write.
func (h *LifecycleHooks) AfterChange(managerName string, instance types.Instance, action string, oldValues map[string]interface{}) {
	invalidated := 0
	if h.cache != nil && instance != nil {
		count, err := h.cache.InvalidateOnChange(managerName, instance, oldValues)
		if err != nil {
			h.logger.Error("Cache invalidation failed after change",
				zap.String("manager", managerName),
				zap.String("action", action),
				zap.Error(err))
		}
		invalidated = count
	}

	if h.events != nil && invalidated > 0 {
		payload := map[string]interface{}{
			"manager":          managerName,
			"action":           action,
			"invalidated_keys": invalidated,
		}
		if err := h.events.Publish(types.EventCacheInvalidated, payload); err != nil {
			h.logger.Warn("Cache invalidation event publish failed",
				zap.String("manager", managerName),
				zap.Error(err))
		}
	}

	if h.events != nil && instance != nil {
		event := types.ChangeEvent{
			Manager:        managerName,
			Action:         action,
			OldValues:      oldValues,
			Identification: instance.Identification(),
		}
		if id, ok := instance.Field("internal_id"); ok {
			if s, isString := id.(string); isString {
				event.EntityID = s
			}
		}

		eventName := types.EventEntityUpdated
		switch action {
		case types.HistoryActionCreate:
			eventName = types.EventEntityCreated
		case types.HistoryActionDelete:
			eventName = types.EventEntityDeleted
		}

		if err := h.events.Publish(eventName, event); err != nil {
			h.logger.Warn("Change event publish failed",
				zap.String("manager", managerName),
				zap.String("event", eventName),
				zap.Error(err))
		}
	}
}

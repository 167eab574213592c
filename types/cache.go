package types

import (
	"time"
)

// CacheManager is the query-result cache with its reverse dependency index.
// Values are cached under opaque keys; RecordDependencies registers the
// predicates consulted while computing a value, and InvalidateOnChange drops
// every cached entry whose predicate truth value shifted for the changed
// instance.
type CacheManager interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	BuildCacheKey(managerName string, operation Operation, descriptor string) string
	RecordDependencies(cacheKey string, deps []TrackedDependency) error
	RemoveCacheKeyFromIndex(cacheKey string) error
	InvalidateCacheKey(cacheKey string) error
	InvalidateOnChange(managerName string, instance Instance, oldValues map[string]interface{}) (int, error)
	TrackedFields(managerName string) []string
	GetFullIndex() (*DependencyIndex, error)
	CompactIndex() error
}

type CacheManagerCreator func(config interface{}) (CacheManager, error)

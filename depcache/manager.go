package depcache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultIndexKey    = "depcache:index"
	DefaultLockKey     = "depcache:index:lock"
	DefaultValuePrefix = "depcache:val:"
	DefaultValueTTL    = 1 * time.Hour
)

// CacheManager is the query-result cache together with its reverse
// dependency index, layered over the shared record store.
type CacheManager struct {
	ctx        context.Context
	logger     types.Logger
	health     types.HealthManager
	store      types.RecordStore
	index      *IndexStore
	engine     *Engine
	defaultTTL time.Duration
	state      atomic.Value
}

func NewCacheManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager, store types.RecordStore) (types.CacheManager, error) {
	cacheConfig := config.GetConfig().Cache

	if cacheConfig == nil || !cacheConfig.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	indexKey := cacheConfig.IndexKey
	if indexKey == "" {
		indexKey = DefaultIndexKey
	}
	lockKey := cacheConfig.LockKey
	if lockKey == "" {
		lockKey = DefaultLockKey
	}
	defaultTTL := cacheConfig.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultValueTTL
	}

	lock := NewIndexLock(store, logger, lockKey,
		cacheConfig.LockTTL, cacheConfig.LockTimeout, cacheConfig.LockRetryInterval)
	index := NewIndexStore(store, logger, lock, indexKey, DefaultValuePrefix)

	manager := &CacheManager{
		ctx:        ctx,
		logger:     logger,
		health:     health,
		store:      store,
		index:      index,
		engine:     NewEngine(index, logger),
		defaultTTL: defaultTTL,
	}

	manager.state.Store(StateStopped)

	return newInstrumentedCacheManager(logger, metrics, manager), nil
}

func (cm *CacheManager) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}
	return cm.store.Get(DefaultValuePrefix + key)
}

func (cm *CacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = cm.defaultTTL
	}
	return cm.store.Set(DefaultValuePrefix+key, value, ttl)
}

// Delete removes the cached value and prunes the key from the index, so
// the index never accumulates references to values that no longer exist.
func (cm *CacheManager) Delete(key string) error {
	if key == "" {
		return nil
	}
	if err := cm.store.Delete(DefaultValuePrefix + key); err != nil {
		return err
	}
	return cm.index.RemoveCacheKeyFromIndex(key)
}

func (cm *CacheManager) BuildCacheKey(managerName string, operation types.Operation, descriptor string) string {
	return strings.Join([]string{managerName, string(operation), descriptor}, "|")
}

func (cm *CacheManager) RecordDependencies(cacheKey string, deps []types.TrackedDependency) error {
	return cm.index.RecordDependencies(cacheKey, deps)
}

func (cm *CacheManager) RemoveCacheKeyFromIndex(cacheKey string) error {
	return cm.index.RemoveCacheKeyFromIndex(cacheKey)
}

func (cm *CacheManager) InvalidateCacheKey(cacheKey string) error {
	return cm.index.InvalidateCacheKey(cacheKey)
}

func (cm *CacheManager) InvalidateOnChange(managerName string, instance types.Instance, oldValues map[string]interface{}) (int, error) {
	return cm.engine.InvalidateOnChange(managerName, instance, oldValues)
}

func (cm *CacheManager) TrackedFields(managerName string) []string {
	return cm.index.TrackedFields(managerName)
}

func (cm *CacheManager) GetFullIndex() (*types.DependencyIndex, error) {
	return cm.index.GetFullIndex(), nil
}

// CompactIndex drops every cache key whose cached value no longer exists
// in the store, keeping the index bounded when values expire naturally.
func (cm *CacheManager) CompactIndex() error {
	return cm.index.lock.WithLock(func() error {
		idx := cm.index.GetFullIndex()

		referenced := make(map[string]bool)
		for _, section := range []map[string]*types.ManagerIndex{idx.Filter, idx.Exclude} {
			for _, mi := range section {
				for _, values := range mi.Lookups {
					for _, keys := range values {
						for cacheKey := range keys {
							referenced[cacheKey] = true
						}
					}
				}
				for cacheKey := range mi.Composites {
					referenced[cacheKey] = true
				}
			}
		}

		removed := 0
		for cacheKey := range referenced {
			if _, exists := cm.store.Get(DefaultValuePrefix + cacheKey); !exists {
				removeCacheKey(idx, cacheKey)
				removed++
			}
		}

		if removed > 0 {
			cm.logger.Info("Dependency index compacted", zap.Int("removed_keys", removed))
		}

		return cm.index.SetFullIndex(idx)
	})
}

func (cm *CacheManager) Start() error {
	if !cm.transitionState(StateStopped, StateStarting) {
		cm.logger.Warn("Cache manager is already running")
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if cm.getState() == StateStarting {
			cm.setState(StateRunning)
		}
	}()

	cm.logger.Info("Cache manager started")
	return nil
}

func (cm *CacheManager) Stop() error {
	if !cm.transitionState(StateRunning, StateStopping) {
		cm.logger.Warn("Cache manager is not running")
		return types.ErrServerNotRunning
	}

	defer func() {
		cm.setState(StateStopped)
	}()

	cm.logger.Info("Cache manager stopped gracefully")
	return nil
}

func (cm *CacheManager) IsRunning() bool {
	return cm.getState() == StateRunning
}

func (cm *CacheManager) getState() State {
	return cm.state.Load().(State)
}

func (cm *CacheManager) setState(newState State) bool {
	currentState := cm.getState()
	return cm.state.CompareAndSwap(currentState, newState)
}

func (cm *CacheManager) transitionState(from, to State) bool {
	return cm.state.CompareAndSwap(from, to)
}

type instrumentedCacheManager struct {
	impl    types.CacheManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedCacheManager(logger types.Logger, metrics types.MetricsManager, impl types.CacheManager) types.CacheManager {
	return &instrumentedCacheManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (icm *instrumentedCacheManager) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := icm.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get", result, duration)
	return value, exists
}

func (icm *instrumentedCacheManager) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := icm.impl.Set(key, value, ttl)
	icm.recordMetric("set", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Delete(key string) error {
	start := time.Now()
	err := icm.impl.Delete(key)
	icm.recordMetric("delete", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) BuildCacheKey(managerName string, operation types.Operation, descriptor string) string {
	return icm.impl.BuildCacheKey(managerName, operation, descriptor)
}

func (icm *instrumentedCacheManager) RecordDependencies(cacheKey string, deps []types.TrackedDependency) error {
	start := time.Now()
	err := icm.impl.RecordDependencies(cacheKey, deps)
	icm.recordMetric("record_dependencies", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) RemoveCacheKeyFromIndex(cacheKey string) error {
	start := time.Now()
	err := icm.impl.RemoveCacheKeyFromIndex(cacheKey)
	icm.recordMetric("remove_cache_key", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) InvalidateCacheKey(cacheKey string) error {
	start := time.Now()
	err := icm.impl.InvalidateCacheKey(cacheKey)
	icm.recordMetric("invalidate_key", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) InvalidateOnChange(managerName string, instance types.Instance, oldValues map[string]interface{}) (int, error) {
	start := time.Now()
	invalidated, err := icm.impl.InvalidateOnChange(managerName, instance, oldValues)
	icm.recordMetric("invalidate_on_change", resultOf(err), time.Since(start))
	return invalidated, err
}

func (icm *instrumentedCacheManager) TrackedFields(managerName string) []string {
	return icm.impl.TrackedFields(managerName)
}

func (icm *instrumentedCacheManager) GetFullIndex() (*types.DependencyIndex, error) {
	return icm.impl.GetFullIndex()
}

func (icm *instrumentedCacheManager) CompactIndex() error {
	start := time.Now()
	err := icm.impl.CompactIndex()
	icm.recordMetric("compact_index", resultOf(err), time.Since(start))
	return err
}

func (icm *instrumentedCacheManager) Start() error {
	return icm.impl.Start()
}

func (icm *instrumentedCacheManager) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedCacheManager) IsRunning() bool {
	return icm.impl.IsRunning()
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (icm *instrumentedCacheManager) recordMetric(operation, result string, duration time.Duration) {
	if icm.metrics == nil {
		return
	}

	opCounter := icm.metrics.Counter("depcache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := icm.metrics.Histogram("depcache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

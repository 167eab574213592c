package store

import (
	"context"
	"time"

	"github.com/saiset-co/sai-manager/types"
)

var customStoreCreators = make(map[string]types.RecordStoreCreator)

func RegisterRecordStore(storeName string, creator types.RecordStoreCreator) {
	customStoreCreators[storeName] = creator
}

func NewRecordStore(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager) (types.RecordStore, error) {
	storeConfig := config.GetConfig().Store

	if !storeConfig.Enabled {
		return nil, types.ErrStoreIsDisabled
	}

	storeName := storeConfig.Type

	var impl types.RecordStore
	var err error

	switch storeName {
	case "memory":
		impl, err = NewMemoryStore(ctx, logger, storeConfig, health)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, storeConfig, health)
	default:
		if creator, exists := customStoreCreators[storeName]; exists {
			impl, err = creator(storeConfig)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeName)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedRecordStore(logger, metrics, impl), nil
}

type instrumentedRecordStore struct {
	impl    types.RecordStore
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedRecordStore(logger types.Logger, metrics types.MetricsManager, impl types.RecordStore) types.RecordStore {
	instrumented := &instrumentedRecordStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	return instrumented
}

func (irs *instrumentedRecordStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := irs.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	irs.recordMetric("get", result, duration)
	return value, exists
}

func (irs *instrumentedRecordStore) Set(key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := irs.impl.Set(key, value, ttl)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	irs.recordMetric("set", result, duration)
	return err
}

func (irs *instrumentedRecordStore) Delete(key string) error {
	start := time.Now()
	err := irs.impl.Delete(key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	irs.recordMetric("delete", result, duration)
	return err
}

func (irs *instrumentedRecordStore) SetNX(key string, value interface{}, ttl time.Duration) (bool, error) {
	start := time.Now()
	acquired, err := irs.impl.SetNX(key, value, ttl)
	duration := time.Since(start)

	result := "miss"
	if acquired {
		result = "acquired"
	}
	if err != nil {
		result = "error"
	}

	irs.recordMetric("setnx", result, duration)
	return acquired, err
}

func (irs *instrumentedRecordStore) Start() error {
	start := time.Now()
	err := irs.impl.Start()
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	irs.recordMetric("start", result, duration)

	return err
}

func (irs *instrumentedRecordStore) Stop() error {
	return irs.impl.Stop()
}

func (irs *instrumentedRecordStore) IsRunning() bool {
	return irs.impl.IsRunning()
}

func (irs *instrumentedRecordStore) recordMetric(operation, result string, duration time.Duration) {
	if irs.metrics == nil {
		return
	}

	opCounter := irs.metrics.Counter("store_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := irs.metrics.Histogram("store_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

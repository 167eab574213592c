package database

import (
	"context"
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

var customDatabaseCreators = make(map[string]types.DatabaseManagerCreator)

func RegisterDatabaseManager(databaseType string, creator types.DatabaseManagerCreator) {
	customDatabaseCreators[databaseType] = creator
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager, health types.HealthManager) (types.DatabaseManager, error) {
	dbConfig := config.GetConfig().Database

	if !dbConfig.Enabled {
		return nil, types.ErrDatabaseIsDisabled
	}

	databaseType := dbConfig.Type

	var impl types.DatabaseManager
	var err error

	switch databaseType {
	case "clover":
		impl, err = NewCloverDB(ctx, logger, dbConfig, metrics, health)
	case "memory":
		impl, err = NewMemoryDB(ctx, logger, dbConfig, metrics, health)
	default:
		if creator, exists := customDatabaseCreators[databaseType]; exists {
			impl, err = creator(dbConfig)
		} else {
			return nil, types.Errorf(types.ErrDatabaseTypeUnknown, "type: %s", databaseType)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedDatabaseManager(logger, metrics, impl), nil
}

// instrumentedDatabaseManager guards the lifecycle with a state machine
// and records per-collection operation metrics around the implementation.
type instrumentedDatabaseManager struct {
	impl    types.DatabaseManager
	logger  types.Logger
	metrics types.MetricsManager
	state   atomic.Value
}

func newInstrumentedDatabaseManager(logger types.Logger, metrics types.MetricsManager, impl types.DatabaseManager) types.DatabaseManager {
	instrumented := &instrumentedDatabaseManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	instrumented.state.Store(StateStopped)
	return instrumented
}

func (dm *instrumentedDatabaseManager) Start() error {
	if !dm.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := dm.impl.Start(); err != nil {
		dm.setState(StateStopped)
		return err
	}

	dm.setState(StateRunning)
	dm.logger.Info("Database manager started")
	return nil
}

func (dm *instrumentedDatabaseManager) Stop() error {
	if !dm.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer dm.setState(StateStopped)

	if err := dm.impl.Stop(); err != nil {
		dm.logger.Error("Failed to stop database implementation", zap.Error(err))
		return err
	}

	dm.logger.Info("Database manager stopped gracefully")
	return nil
}

func (dm *instrumentedDatabaseManager) IsRunning() bool {
	return dm.getState() == StateRunning
}

func (dm *instrumentedDatabaseManager) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	start := time.Now()
	ids, err := dm.impl.CreateDocuments(ctx, request)
	dm.recordMetric("create", request.Collection, time.Since(start), err)
	return ids, err
}

func (dm *instrumentedDatabaseManager) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	start := time.Now()
	docs, count, err := dm.impl.ReadDocuments(ctx, request)
	dm.recordMetric("read", request.Collection, time.Since(start), err)
	return docs, count, err
}

func (dm *instrumentedDatabaseManager) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	start := time.Now()
	count, err := dm.impl.UpdateDocuments(ctx, request)
	dm.recordMetric("update", request.Collection, time.Since(start), err)
	return count, err
}

func (dm *instrumentedDatabaseManager) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	start := time.Now()
	count, err := dm.impl.DeleteDocuments(ctx, request)
	dm.recordMetric("delete", request.Collection, time.Since(start), err)
	return count, err
}

func (dm *instrumentedDatabaseManager) CreateCollection(collectionName string) error {
	return dm.impl.CreateCollection(collectionName)
}

func (dm *instrumentedDatabaseManager) DropCollection(collectionName string) error {
	return dm.impl.DropCollection(collectionName)
}

func (dm *instrumentedDatabaseManager) recordMetric(operation, collection string, duration time.Duration, err error) {
	if dm.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	opCounter := dm.metrics.Counter("database_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	})
	opCounter.Inc()

	opDuration := dm.metrics.Histogram("database_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func (dm *instrumentedDatabaseManager) getState() State {
	return dm.state.Load().(State)
}

func (dm *instrumentedDatabaseManager) setState(newState State) bool {
	return dm.state.CompareAndSwap(dm.getState(), newState)
}

func (dm *instrumentedDatabaseManager) transitionState(from, to State) bool {
	return dm.state.CompareAndSwap(from, to)
}

package sai

import (
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-manager/capability"
	"github.com/saiset-co/sai-manager/database"
	"github.com/saiset-co/sai-manager/events"
	"github.com/saiset-co/sai-manager/logger"
	"github.com/saiset-co/sai-manager/metrics"
	"github.com/saiset-co/sai-manager/store"
	"github.com/saiset-co/sai-manager/types"
)

type Container struct {
	Config   atomic.Pointer[types.ConfigManager]
	Logger   atomic.Pointer[types.LoggerManager]
	Store    atomic.Pointer[types.RecordStore]
	Cache    atomic.Pointer[types.CacheManager]
	Database atomic.Pointer[types.DatabaseManager]
	History  atomic.Pointer[types.HistoryStore]
	Events   atomic.Pointer[types.EventBroker]
	Cron     atomic.Pointer[types.CronManager]
	Metrics  atomic.Pointer[types.MetricsManager]
	Health   atomic.Pointer[types.HealthManager]

	managersMu sync.RWMutex
	managers   map[string]types.Manager
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{
		managers: make(map[string]types.Manager),
	}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Cache() types.CacheManager {
	if ptr := globalContainer.Cache.Load(); ptr != nil {
		return *ptr
	}
	panic("CacheManager not initialized")
}

func Database() types.DatabaseManager {
	if ptr := globalContainer.Database.Load(); ptr != nil {
		return *ptr
	}
	panic("DatabaseManager not initialized")
}

func Cron() types.CronManager {
	if ptr := globalContainer.Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Events() types.EventBroker {
	if ptr := globalContainer.Events.Load(); ptr != nil {
		return *ptr
	}
	panic("EventBroker not initialized")
}

// Manager resolves a registered domain manager by interface name.
func Manager(name string) (types.Manager, error) {
	globalContainer.managersMu.RLock()
	defer globalContainer.managersMu.RUnlock()

	manager, ok := globalContainer.managers[name]
	if !ok {
		return nil, types.Errorf(types.ErrManagerNotFound, "manager: %s", name)
	}
	return manager, nil
}

func RegisterRecordStore(storeName string, creator types.RecordStoreCreator) {
	store.RegisterRecordStore(storeName, creator)
}

func RegisterEventBroker(brokerType string, creator types.EventBrokerCreator) {
	events.RegisterEventBroker(brokerType, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func RegisterDatabaseManager(databaseType string, creator types.DatabaseManagerCreator) {
	database.RegisterDatabaseManager(databaseType, creator)
}

func RegisterCapability(name types.CapabilityName, creator types.CapabilityCreator) {
	capability.RegisterCapability(name, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetStore(recordStore types.RecordStore) {
	fc.Store.Store(&recordStore)
}

func (fc *Container) SetCache(cache types.CacheManager) {
	fc.Cache.Store(&cache)
}

func (fc *Container) SetDatabase(db types.DatabaseManager) {
	fc.Database.Store(&db)
}

func (fc *Container) SetHistory(history types.HistoryStore) {
	fc.History.Store(&history)
}

func (fc *Container) SetEvents(broker types.EventBroker) {
	fc.Events.Store(&broker)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetManager(name string, manager types.Manager) {
	fc.managersMu.Lock()
	defer fc.managersMu.Unlock()
	fc.managers[name] = manager
}

func (fc *Container) Managers() map[string]types.Manager {
	fc.managersMu.RLock()
	defer fc.managersMu.RUnlock()

	out := make(map[string]types.Manager, len(fc.managers))
	for name, manager := range fc.managers {
		out[name] = manager
	}
	return out
}

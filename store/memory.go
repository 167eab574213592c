package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateStarting
	MemoryStateRunning
	MemoryStateStopping
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 1 * time.Hour
)

type MemoryConfig struct {
	MaxEntries      int    `json:"max_entries"`
	CleanupInterval string `json:"cleanup_interval"`
	EvictionPolicy  string `json:"eviction_policy"`
}

type MemoryStore struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          *MemoryConfig
	logger          types.Logger
	health          types.HealthManager
	data            map[string]*types.StoreEntry
	hits            uint64
	misses          uint64
	evictions       uint64
	mu              sync.RWMutex
	state           atomic.Value
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	entryPool       sync.Pool
	shutdownTimeout time.Duration
}

func NewMemoryStore(ctx context.Context, logger types.Logger, config *types.StoreConfig, health types.HealthManager) (types.RecordStore, error) {
	var memConfig = &MemoryConfig{
		MaxEntries:      10000,
		CleanupInterval: "5m",
		EvictionPolicy:  "fifo",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory store config")
		}
	}

	storeCtx, cancel := context.WithCancel(ctx)

	memStore := &MemoryStore{
		ctx:             storeCtx,
		cancel:          cancel,
		logger:          logger,
		health:          health,
		config:          memConfig,
		data:            make(map[string]*types.StoreEntry),
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		shutdownTimeout: 10 * time.Second,
		entryPool: sync.Pool{
			New: func() interface{} {
				return &types.StoreEntry{
					Metadata: make(map[string]string, 4),
				}
			},
		},
	}

	memStore.state.Store(MemoryStateStopped)

	return memStore, nil
}

func (m *MemoryStore) Get(key string) (interface{}, bool) {
	now := time.Now().UnixNano()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && now > entry.ExpiresAt.UnixNano() {
		m.mu.RUnlock()
		m.mu.Lock()
		if entry, exists := m.data[key]; exists && now > entry.ExpiresAt.UnixNano() {
			delete(m.data, key)
			m.returnEntryToPool(entry)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	value := entry.Value
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)

	return value, true
}

func (m *MemoryStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		m.logger.Error("Attempted to set store entry with empty key")
		return types.ErrStoreKeyEmpty
	}

	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := m.entryPool.Get().(*types.StoreEntry)
	entry.Key = key
	entry.Value = value
	entry.TTL = ttl
	entry.CreatedAt = now
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	} else {
		entry.ExpiresAt = time.Time{}
	}

	for k := range entry.Metadata {
		delete(entry.Metadata, k)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.config.MaxEntries {
			m.evictOneUnsafe()
		}
	}

	if oldEntry, exists := m.data[key]; exists {
		m.returnEntryToPool(oldEntry)
	}

	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.data[key]; exists {
		m.returnEntryToPool(entry)
	}

	delete(m.data, key)
	return nil
}

// SetNX stores the value only when the key is absent or its previous entry
// already expired, mirroring the redis primitive the index lock relies on.
func (m *MemoryStore) SetNX(key string, value interface{}, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.data[key]; exists {
		if entry.ExpiresAt.IsZero() || now.UnixNano() <= entry.ExpiresAt.UnixNano() {
			return false, nil
		}
		delete(m.data, key)
		m.returnEntryToPool(entry)
	}

	entry := m.entryPool.Get().(*types.StoreEntry)
	entry.Key = key
	entry.Value = value
	entry.TTL = ttl
	entry.CreatedAt = now
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	} else {
		entry.ExpiresAt = time.Time{}
	}

	for k := range entry.Metadata {
		delete(entry.Metadata, k)
	}

	m.data[key] = entry
	return true, nil
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(MemoryStateStopped, MemoryStateStarting) {
		m.logger.Warn("Memory store is already running")
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == MemoryStateStarting {
			m.setState(MemoryStateRunning)
		}
	}()

	if m.config.CleanupInterval != "" {
		go m.startCleanupRoutine()
	}

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(MemoryStateRunning, MemoryStateStopping) {
		m.logger.Warn("Memory store is not running")
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(MemoryStateStopped)
	}()

	m.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case m.stopCleanup <- struct{}{}:
		case <-time.After(time.Second):
		}

		select {
		case <-m.cleanupDone:
			m.logger.Debug("Cleanup routine stopped")
		case <-time.After(5 * time.Second):
			m.logger.Warn("Cleanup routine stop timeout")
		}

		return nil
	})

	g.Go(func() error {
		m.mu.Lock()

		entriesCount := len(m.data)

		for _, entry := range m.data {
			m.returnEntryToPool(entry)
		}

		m.data = make(map[string]*types.StoreEntry)

		m.mu.Unlock()

		m.logger.Info("Memory store cleared",
			zap.Int("cleared_entries", entriesCount))
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			m.logger.Warn("Memory store stop timeout, some components may not have stopped gracefully")
		default:
			m.logger.Error("Error during memory store shutdown", zap.Error(err))
		}
	} else {
		m.logger.Info("Memory store stopped gracefully")
	}

	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == MemoryStateRunning
}

func (m *MemoryStore) getState() MemoryState {
	return m.state.Load().(MemoryState)
}

func (m *MemoryStore) setState(newState MemoryState) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryStore) transitionState(from, to MemoryState) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *MemoryStore) returnEntryToPool(entry *types.StoreEntry) {
	if entry == nil {
		return
	}

	entry.Key = ""
	entry.Value = nil
	entry.TTL = 0
	entry.CreatedAt = time.Time{}
	entry.ExpiresAt = time.Time{}

	for k := range entry.Metadata {
		delete(entry.Metadata, k)
	}

	m.entryPool.Put(entry)
}

func (m *MemoryStore) cleanup() {
	now := time.Now().UnixNano()

	m.mu.Lock()

	var expired []string
	for key, entry := range m.data {
		if !entry.ExpiresAt.IsZero() && now > entry.ExpiresAt.UnixNano() {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		if entry := m.data[key]; entry != nil {
			m.returnEntryToPool(entry)
		}
		delete(m.data, key)
	}

	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Debug("Cleanup completed", zap.Int("expired_entries", len(expired)))
	}
}

func (m *MemoryStore) startCleanupRoutine() {
	defer close(m.cleanupDone)

	cleanupInterval, err := time.ParseDuration(m.config.CleanupInterval)
	if err != nil {
		m.logger.Error("Invalid cleanup interval, using default 5m",
			zap.String("interval", m.config.CleanupInterval),
			zap.Error(err))
		cleanupInterval = 5 * time.Minute
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Debug("Cleanup routine stopped by context")
			return
		case <-m.stopCleanup:
			m.logger.Debug("Cleanup routine stopped by signal")
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryStore) evictOneUnsafe() {
	if len(m.data) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		if entry := m.data[oldestKey]; entry != nil {
			m.returnEntryToPool(entry)
		}
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}

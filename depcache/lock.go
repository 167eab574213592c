package depcache

import (
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

const (
	DefaultLockTTL           = 10 * time.Second
	DefaultLockTimeout       = 5 * time.Second
	DefaultLockRetryInterval = 10 * time.Millisecond
)

// IndexLock serializes read-modify-write cycles on the dependency index
// blob. It is a TTL lock over the shared record store: a crashed holder
// self-heals once the TTL lapses.
type IndexLock struct {
	store         types.RecordStore
	logger        types.Logger
	key           string
	ttl           time.Duration
	timeout       time.Duration
	retryInterval time.Duration
}

func NewIndexLock(store types.RecordStore, logger types.Logger, key string, ttl, timeout, retryInterval time.Duration) *IndexLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if retryInterval <= 0 {
		retryInterval = DefaultLockRetryInterval
	}

	return &IndexLock{
		store:         store,
		logger:        logger,
		key:           key,
		ttl:           ttl,
		timeout:       timeout,
		retryInterval: retryInterval,
	}
}

// Acquire attempts to take the lock once, without blocking.
func (l *IndexLock) Acquire(ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = l.ttl
	}

	acquired, err := l.store.SetNX(l.key, true, ttl)
	if err != nil {
		l.logger.Error("Lock acquisition failed", zap.String("key", l.key), zap.Error(err))
		return false
	}

	return acquired
}

// Release deletes the lock key. Safe to call when not held.
func (l *IndexLock) Release() {
	if err := l.store.Delete(l.key); err != nil {
		l.logger.Error("Lock release failed", zap.String("key", l.key), zap.Error(err))
	}
}

// WithLock acquires the lock with bounded retries, runs fn, and releases.
// Index mutations are expected to hold the lock sub-millisecond, so a short
// sleep between attempts is appropriate. Returns ErrLockTimeout when the
// window elapses without acquisition.
func (l *IndexLock) WithLock(fn func() error) error {
	deadline := time.Now().Add(l.timeout)

	for !l.Acquire(l.ttl) {
		if time.Now().After(deadline) {
			return types.Errorf(types.ErrLockTimeout, "key: %s, timeout: %s", l.key, l.timeout)
		}
		time.Sleep(l.retryInterval)
	}

	defer l.Release()
	return fn()
}

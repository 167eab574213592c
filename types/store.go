package types

import (
	"time"
)

// RecordStore is the shared key-value store the cache subsystem runs on.
// SetNX is the atomic "add if absent with TTL" primitive the index lock is
// built from; everything else is assumed atomic at the store level.
type RecordStore interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	SetNX(key string, value interface{}, ttl time.Duration) (bool, error)
}

type RecordStoreCreator func(config interface{}) (RecordStore, error)

type StoreEntry struct {
	Key       string            `json:"key"`
	Value     interface{}       `json:"value"`
	TTL       time.Duration     `json:"ttl"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata"`
}

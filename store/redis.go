package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	KeyPrefix          string        `json:"key_prefix"`
}

type RedisStore struct {
	ctx     context.Context
	logger  types.Logger
	health  types.HealthManager
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StoreConfig, health types.HealthManager) (types.RecordStore, error) {
	var redisConfig = &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		Password:           "",
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "sai-manager",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	redisStore := &RedisStore{
		ctx:     ctx,
		logger:  logger,
		health:  health,
		config:  redisConfig,
		started: 0,
	}

	if err := redisStore.initRedisClient(); err != nil {
		return nil, types.WrapError(err, "failed to initialize redis client")
	}

	if err := redisStore.ping(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return redisStore, nil
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	fullKey := r.buildFullKey(key)

	result, err := r.client.Get(r.ctx, fullKey).Result()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false
		}
		r.logger.Error("failed to get store entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var entry types.StoreEntry
	if err := utils.Unmarshal([]byte(result), &entry); err != nil {
		r.logger.Error("failed to unmarshal store entry", zap.String("key", key), zap.Error(err))
		r.client.Del(r.ctx, fullKey)
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		if err := r.Delete(key); err != nil {
			r.logger.Error("Failed to delete expired store key", zap.Error(err))
		}
		return nil, false
	}

	return entry.Value, true
}

func (r *RedisStore) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrStoreKeyEmpty
	}

	fullKey := r.buildFullKey(key)

	data, err := r.encodeEntry(key, value, ttl)
	if err != nil {
		return fmt.Errorf("failed to marshal store entry: %w", err)
	}

	if setErr := r.client.Set(r.ctx, fullKey, data, ttl).Err(); setErr != nil {
		r.logger.Error("failed to set store entry", zap.String("key", key), zap.Error(setErr))
		return types.WrapError(setErr, "failed to set store entry")
	}

	return nil
}

func (r *RedisStore) Delete(key string) error {
	if key == "" {
		return nil
	}

	fullKey := r.buildFullKey(key)

	err := r.client.Del(r.ctx, fullKey).Err()
	if err != nil {
		r.logger.Error("failed to delete store key", zap.String("key", key), zap.Error(err))
		return types.WrapError(err, "failed to delete store key")
	}

	return nil
}

func (r *RedisStore) SetNX(key string, value interface{}, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, types.ErrStoreKeyEmpty
	}

	fullKey := r.buildFullKey(key)

	data, err := r.encodeEntry(key, value, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to marshal store entry: %w", err)
	}

	acquired, err := r.client.SetNX(r.ctx, fullKey, data, ttl).Result()
	if err != nil {
		r.logger.Error("failed to setnx store entry", zap.String("key", key), zap.Error(err))
		return false, types.WrapError(err, "failed to setnx store entry")
	}

	return acquired, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return nil
	}

	r.logger.Info("Redis store started")

	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return nil
	}

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.Error("Failed to close Redis client", zap.Error(err))
			return types.WrapError(err, "failed to close redis client")
		}
	}

	r.logger.Info("Redis store closed successfully")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) encodeEntry(key string, value interface{}, ttl time.Duration) ([]byte, error) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	entry := &types.StoreEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
		Metadata:  make(map[string]string),
	}

	return utils.Marshal(entry)
}

func (r *RedisStore) initRedisClient() error {
	addr := fmt.Sprintf("%s:%d", r.config.Host, r.config.Port)

	r.client = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     r.config.Password,
		DB:           r.config.DB,
		PoolSize:     r.config.PoolSize,
		MinIdleConns: r.config.MinIdleConnections,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
	})

	return nil
}

func (r *RedisStore) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) buildFullKey(key string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.config.KeyPrefix, key)
	}
	return key
}

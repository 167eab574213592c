package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version" validate:"required"`
	Server   *ServerConfig   `yaml:"server" json:"server"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Store    *StoreConfig    `yaml:"store" json:"store"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Database *DatabaseConfig `yaml:"database" json:"database"`
	History  *HistoryConfig  `yaml:"history" json:"history"`
	Events   *EventsConfig   `yaml:"events" json:"events"`
	Cron     *CronConfig     `yaml:"cron" json:"cron"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health   *HealthConfig   `yaml:"health" json:"health"`
}

type ServerConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type StoreConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	DefaultTTL        time.Duration `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	IndexKey          string        `yaml:"index_key" json:"index_key"`
	LockKey           string        `yaml:"lock_key" json:"lock_key"`
	LockTTL           time.Duration `yaml:"lock_ttl" json:"lock_ttl" validate:"min=0"`
	LockTimeout       time.Duration `yaml:"lock_timeout" json:"lock_timeout" validate:"min=0"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval" json:"lock_retry_interval" validate:"min=0"`
	MaintenanceSpec   string        `yaml:"maintenance_spec" json:"maintenance_spec"`
}

type DatabaseConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Path    string      `yaml:"path" json:"path"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type EventsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type"`
	Config  interface{} `yaml:"config" json:"config"`
}

type CronConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Timezone string `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
}

type MetricsConfig struct {
	Enabled    bool                   `yaml:"enabled" json:"enabled"`
	Type       string                 `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config     interface{}            `yaml:"config" json:"config"`
	Prefix     string                 `yaml:"prefix" json:"prefix"`
	Labels     map[string]string      `yaml:"labels" json:"labels"`
	Collectors MetricsCollectorConfig `yaml:"collectors" json:"collectors"`
}

type MetricsCollectorConfig struct {
	System  bool `yaml:"system" json:"system"`
	Runtime bool `yaml:"runtime" json:"runtime"`
	Cache   bool `yaml:"cache" json:"cache"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
}

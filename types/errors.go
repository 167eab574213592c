package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrStoreKeyEmpty         = errors.New("store key empty")
	ErrStoreConnectionFailed = errors.New("store connection failed")
	ErrStoreTypeUnknown      = errors.New("store type unknown")
	ErrStoreOperationFailed  = errors.New("store operation failed")
	ErrStoreIsDisabled       = errors.New("record store is disabled")
)

var (
	ErrCacheIsDisabled  = errors.New("cache manager is disabled")
	ErrCacheKeyEmpty    = errors.New("cache key empty")
	ErrLockTimeout      = errors.New("dependency index lock timeout")
	ErrIndexUnavailable = errors.New("dependency index unavailable")
)

var (
	ErrCapabilityNotConfigured = errors.New("capability not configured")
	ErrCapabilityWrongType     = errors.New("capability wrong type")
	ErrCapabilityBinding       = errors.New("capability binding failed")
	ErrCapabilityTypeUnknown   = errors.New("capability type unknown")
	ErrSchemaIsNil             = errors.New("interface schema is nil")
	ErrValidationFailed        = errors.New("validation failed")
)

var (
	ErrDatabaseIsDisabled       = errors.New("database manager is disabled")
	ErrDatabaseTypeUnknown      = errors.New("database type unknown")
	ErrDatabaseCollectionExists = errors.New("database collection exists")
	ErrDocumentNotFound         = errors.New("document not found")
)

var (
	ErrHistoryIsDisabled    = errors.New("history store is disabled")
	ErrHistoryWriteFailed   = errors.New("history write failed")
	ErrHistoryTypeUnknown   = errors.New("history type unknown")
	ErrHistoryEntityIDEmpty = errors.New("history entity id is empty")
)

var (
	ErrEventsNotInitialized = errors.New("events not initialized")
	ErrEventsPublishFailed  = errors.New("events publish failed")
	ErrEventsTypeUnknown    = errors.New("events type unknown")
	ErrEventsIsDisabled     = errors.New("event dispatcher is disabled")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobFailed         = errors.New("cron job failed")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobTimeout        = errors.New("cron job timeout")
)

var (
	ErrMetricsTypeUnknown   = errors.New("metrics type unknown")
	ErrMetricsStartFailed   = errors.New("metrics start failed")
	ErrMetricsConfigInvalid = errors.New("metrics config invalid")
	ErrMetricsIsDisabled    = errors.New("metrics manager is disabled")
	ErrMetricsNotRunning    = errors.New("metrics manager is not running")
)

var (
	ErrHealthCheckFailed  = errors.New("health check failed")
	ErrHealthCheckTimeout = errors.New("health check timeout")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrManagerNotFound      = errors.New("manager not found")
	ErrComponentNotFound    = errors.New("component not found")
	ErrComponentStartFailed = errors.New("component start failed")
	ErrComponentStopFailed  = errors.New("component stop failed")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrOperationFailed  = errors.New("operation failed")
	ErrNotImplemented   = errors.New("not implemented")
	ErrPermissionDenied = errors.New("permission denied")
	ErrResourceNotFound = errors.New("resource not found")
	ErrInternalError    = errors.New("internal error")
	ErrContextCancelled = errors.New("context cancelled")
	ErrContextTimeout   = errors.New("context timeout")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotSupported     = errors.New("not supported")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewError(message string) error {
	return errors.New(message)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}

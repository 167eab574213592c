package types

// LifecycleManager is implemented by every component the service
// orchestrator starts and stops.
type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}

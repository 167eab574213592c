package capability

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

// Dispatch runs an operation through the registry's observability wrapper
// when one is configured. OnError sees the failure but the original error
// is always returned unchanged.
func Dispatch(r *Registry, operation string, payload interface{}, fn func() (interface{}, error)) (interface{}, error) {
	observer := r.Observer()
	if observer == nil {
		return fn()
	}

	target := r.schema.Name

	observer.BeforeOperation(operation, target, payload)

	result, err := fn()
	if err != nil {
		observer.OnError(operation, target, payload, err)
		return nil, err
	}

	observer.AfterOperation(operation, target, payload, result)
	return result, nil
}

// loggingObserver is the builtin observability handler: structured logs
// around every dispatched operation.
type loggingObserver struct {
	schema *types.InterfaceSchema
	logger types.Logger
}

func NewObservabilityCapability(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (types.Capability, error) {
	if runtime.Logger == nil {
		return nil, types.Errorf(types.ErrCapabilityBinding,
			"interface: %s, capability: observability, no logger configured", schema.Name)
	}
	return &loggingObserver{
		schema: schema,
		logger: runtime.Logger,
	}, nil
}

func (o *loggingObserver) Name() types.CapabilityName {
	return types.CapabilityObservability
}

func (o *loggingObserver) RequiredAttributes() []string {
	return nil
}

func (o *loggingObserver) BeforeOperation(operation string, target string, payload interface{}) {
	o.logger.Debug("operation started",
		zap.String("operation", operation),
		zap.String("target", target))
}

func (o *loggingObserver) AfterOperation(operation string, target string, payload interface{}, result interface{}) {
	o.logger.Debug("operation completed",
		zap.String("operation", operation),
		zap.String("target", target))
}

func (o *loggingObserver) OnError(operation string, target string, payload interface{}, err error) {
	o.logger.Error("operation failed",
		zap.String("operation", operation),
		zap.String("target", target),
		zap.Error(err))
}

var _ types.Observer = (*loggingObserver)(nil)

package capability

import (
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-manager/types"
)

type RegistryState int32

const (
	StateUninitialized RegistryState = iota
	StateBuilding
	StateReady
)

var builtinCreators = map[types.CapabilityName]types.CapabilityCreator{}

// RegisterCapability installs a builtin constructor for a capability name.
// Schema-level Overrides take precedence over builtins.
func RegisterCapability(name types.CapabilityName, creator types.CapabilityCreator) {
	builtinCreators[name] = creator
}

// Registry owns the capability binding for one interface class. Handlers
// are built once, on first resolution, and frozen afterwards; every
// instance of the owning interface shares them.
type Registry struct {
	schema   *types.InterfaceSchema
	runtime  *types.CapabilityRuntime
	mu       sync.Mutex
	state    atomic.Value
	handlers map[types.CapabilityName]types.Capability
}

func NewRegistry(schema *types.InterfaceSchema, runtime *types.CapabilityRuntime) (*Registry, error) {
	if schema == nil {
		return nil, types.ErrSchemaIsNil
	}
	if runtime == nil {
		runtime = &types.CapabilityRuntime{}
	}

	registry := &Registry{
		schema:  schema,
		runtime: runtime,
	}
	registry.state.Store(StateUninitialized)

	return registry, nil
}

func (r *Registry) Schema() *types.InterfaceSchema {
	return r.schema
}

// Capabilities resolves the binding and lists the configured names.
func (r *Registry) Capabilities() ([]types.CapabilityName, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}

	names := make([]types.CapabilityName, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names, nil
}

// Has reports whether the capability is configured, building first if
// needed. Build failures surface as "not configured".
func (r *Registry) Has(name types.CapabilityName) bool {
	if err := r.ensureReady(); err != nil {
		return false
	}
	_, exists := r.handlers[name]
	return exists
}

// Require resolves a configured capability handler. An interface that
// never declared the capability yields ErrCapabilityNotConfigured.
func (r *Registry) Require(name types.CapabilityName) (types.Capability, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}

	handler, exists := r.handlers[name]
	if !exists {
		return nil, types.Errorf(types.ErrCapabilityNotConfigured,
			"interface: %s, capability: %s", r.schema.Name, name)
	}

	return handler, nil
}

// Observer resolves the optional observability capability; absence is not
// an error.
func (r *Registry) Observer() types.Observer {
	if err := r.ensureReady(); err != nil {
		return nil
	}
	if handler, exists := r.handlers[types.CapabilityObservability]; exists {
		if observer, ok := handler.(types.Observer); ok {
			return observer
		}
	}
	return nil
}

// Require resolves a capability and asserts its concrete contract,
// defending against capability-name collisions across differently-shaped
// interfaces.
func Require[T types.Capability](r *Registry, name types.CapabilityName) (T, error) {
	var zero T

	handler, err := r.Require(name)
	if err != nil {
		return zero, err
	}

	typed, ok := handler.(T)
	if !ok {
		return zero, types.Errorf(types.ErrCapabilityWrongType,
			"interface: %s, capability: %s, handler: %T", r.schema.Name, name, handler)
	}

	return typed, nil
}

// ensureReady drives the UNINITIALIZED -> BUILDING -> READY transition.
// Once READY, resolution is a pure map lookup.
func (r *Registry) ensureReady() error {
	if r.state.Load().(RegistryState) == StateReady {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Load().(RegistryState) == StateReady {
		return nil
	}

	r.state.Store(StateBuilding)

	handlers, err := r.build()
	if err != nil {
		r.state.Store(StateUninitialized)
		return err
	}

	r.handlers = handlers
	r.state.Store(StateReady)
	return nil
}

func (r *Registry) build() (map[types.CapabilityName]types.Capability, error) {
	handlers := make(map[types.CapabilityName]types.Capability, len(r.schema.Bundles))

	for _, name := range r.schema.Bundles {
		creator := builtinCreators[name]
		if override, exists := r.schema.Overrides[name]; exists {
			creator = override
		}
		if creator == nil {
			return nil, types.Errorf(types.ErrCapabilityTypeUnknown,
				"interface: %s, capability: %s", r.schema.Name, name)
		}

		handler, err := creator(r.schema, r.runtime)
		if err != nil {
			return nil, types.WrapError(err, "failed to create capability "+string(name))
		}

		if err := validateBinding(r.schema, handler); err != nil {
			return nil, err
		}

		handlers[name] = handler
	}

	return handlers, nil
}

// validateBinding checks the handler's required attributes against the
// schema, failing fast at binding time rather than at first call.
func validateBinding(schema *types.InterfaceSchema, handler types.Capability) error {
	var missing []string
	for _, attr := range handler.RequiredAttributes() {
		if _, present := schema.Attribute(attr); !present {
			missing = append(missing, attr)
		}
	}

	if len(missing) > 0 {
		return types.Errorf(types.ErrCapabilityBinding,
			"interface: %s, capability: %s, missing attributes: %v",
			schema.Name, handler.Name(), missing)
	}

	return nil
}

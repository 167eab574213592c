package types

import (
	"context"
)

type CapabilityName string

const (
	CapabilityCreate        CapabilityName = "create"
	CapabilityRead          CapabilityName = "read"
	CapabilityUpdate        CapabilityName = "update"
	CapabilityDelete        CapabilityName = "delete"
	CapabilityQuery         CapabilityName = "query"
	CapabilityHistory       CapabilityName = "history"
	CapabilityValidation    CapabilityName = "validation"
	CapabilityObservability CapabilityName = "observability"
)

// InterfaceSchema describes one interface class at definition time: the
// manager name it is published under, the collection backing it, which
// capability bundles it declares, the duck-typed attributes capability
// handlers may require, and per-capability constructor overrides.
type InterfaceSchema struct {
	Name       string
	Collection string
	Identifier string
	Bundles    []CapabilityName
	Attributes map[string]interface{}
	Overrides  map[CapabilityName]CapabilityCreator
}

// Attribute returns a named schema attribute, falling back to the
// well-known built-ins so handlers can require "collection" or
// "identifier" without every schema spelling them out twice.
func (s *InterfaceSchema) Attribute(name string) (interface{}, bool) {
	if s.Attributes != nil {
		if value, exists := s.Attributes[name]; exists {
			return value, value != nil
		}
	}
	switch name {
	case "collection":
		return s.Collection, s.Collection != ""
	case "identifier":
		return s.Identifier, s.Identifier != ""
	case "name":
		return s.Name, s.Name != ""
	}
	return nil, false
}

// Capability is one named operation contract an interface class supports
// via a pluggable handler. Handlers hold configuration only, never
// per-request state, so a single instance is shared across all instances
// of the owning interface class.
type Capability interface {
	Name() CapabilityName
	RequiredAttributes() []string
}

// CapabilityRuntime carries the shared collaborators capability handlers
// are built against.
type CapabilityRuntime struct {
	Logger   Logger
	Database DatabaseManager
	Cache    CacheManager
	History  HistoryStore
	Events   EventBroker
}

type CapabilityCreator func(schema *InterfaceSchema, runtime *CapabilityRuntime) (Capability, error)

type Creator interface {
	Capability
	Create(ctx context.Context, payload map[string]interface{}) (Instance, error)
}

type Reader interface {
	Capability
	Read(ctx context.Context, identification map[string]interface{}) (Instance, error)
}

type Updater interface {
	Capability
	Update(ctx context.Context, identification map[string]interface{}, payload map[string]interface{}) (Instance, error)
}

type Deleter interface {
	Capability
	Delete(ctx context.Context, identification map[string]interface{}) (int64, error)
}

type QueryRequest struct {
	Filter  map[string]interface{} `json:"filter"`
	Exclude map[string]interface{} `json:"exclude"`
	Sort    map[string]int         `json:"sort"`
	Skip    int                    `json:"skip"`
	Limit   int                    `json:"limit"`
}

type Querier interface {
	Capability
	Query(ctx context.Context, request QueryRequest) ([]Instance, error)
}

type Historian interface {
	Capability
	History(ctx context.Context, entityID string) ([]HistoryEntry, error)
}

type Validator interface {
	Capability
	Validate(ctx context.Context, payload map[string]interface{}) error
}

// Observer wraps every dispatched operation. OnError never swallows the
// original error; dispatch re-raises it unchanged.
type Observer interface {
	Capability
	BeforeOperation(operation string, target string, payload interface{})
	AfterOperation(operation string, target string, payload interface{}, result interface{})
	OnError(operation string, target string, payload interface{}, err error)
}

package types

import (
	"context"
)

// Instance is the accessor protocol every domain object must satisfy to
// flow through the predicate matcher and the invalidation engine. Field
// resolves one path segment; nested segments are resolved by the caller
// walking maps and structs.
type Instance interface {
	ManagerName() string
	Identification() map[string]interface{}
	Field(name string) (interface{}, bool)
}

// Manager is the uniform domain facade over an interface schema: filtering,
// direct reads, mutations and history, all routed through the capability
// registry with caching and dependency tracking applied.
type Manager interface {
	Name() string
	Filter(ctx context.Context, filter map[string]interface{}) ([]Instance, error)
	Exclude(ctx context.Context, filter map[string]interface{}) ([]Instance, error)
	Get(ctx context.Context, identification map[string]interface{}) (Instance, error)
	Create(ctx context.Context, payload map[string]interface{}) (Instance, error)
	Update(ctx context.Context, identification map[string]interface{}, payload map[string]interface{}) (Instance, error)
	Delete(ctx context.Context, identification map[string]interface{}) error
	History(ctx context.Context, entityID string) ([]HistoryEntry, error)
}

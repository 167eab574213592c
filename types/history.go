package types

import (
	"context"
	"time"
)

const (
	HistoryActionCreate = "create"
	HistoryActionUpdate = "update"
	HistoryActionDelete = "delete"
)

type HistoryEntry struct {
	ID        string                 `json:"id"`
	Manager   string                 `json:"manager"`
	EntityID  string                 `json:"entity_id"`
	Action    string                 `json:"action"`
	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`
	ChangedAt time.Time              `json:"changed_at"`
}

// HistoryStore is the append-only change log behind the history capability.
type HistoryStore interface {
	LifecycleManager
	Append(ctx context.Context, entry HistoryEntry) error
	List(ctx context.Context, manager string, entityID string) ([]HistoryEntry, error)
}

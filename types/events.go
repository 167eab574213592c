package types

import (
	"time"
)

const (
	EventEntityCreated    = "entity.created"
	EventEntityUpdated    = "entity.updated"
	EventEntityDeleted    = "entity.deleted"
	EventCacheInvalidated = "cache.invalidated"
)

// EventBroker fans change notifications out to subscribers. Publishing is
// best-effort: a failed delivery never rolls back the mutation that caused
// the event.
type EventBroker interface {
	LifecycleManager
	Publish(event string, payload interface{}) error
	Subscribe(event string, handler EventHandler) error
	Unsubscribe(event string) error
}

type EventHandler func(message *EventMessage) error
type EventBrokerCreator func(config interface{}) (EventBroker, error)

type EventMessage struct {
	Event     string            `json:"event"`
	Payload   interface{}       `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata"`
	MessageID string            `json:"message_id"`
}

// ChangeEvent is the payload published on entity mutations, carrying the
// same old-value snapshot the invalidation engine consumed.
type ChangeEvent struct {
	Manager        string                 `json:"manager"`
	EntityID       string                 `json:"entity_id"`
	Action         string                 `json:"action"`
	OldValues      map[string]interface{} `json:"old_values,omitempty"`
	Identification map[string]interface{} `json:"identification,omitempty"`
}

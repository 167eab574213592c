package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

func newTestBroker(t *testing.T) types.EventBroker {
	t.Helper()

	broker := NewMemoryBroker(zap.NewNop())
	require.NoError(t, broker.Start())
	t.Cleanup(func() { _ = broker.Stop() })

	return broker
}

func TestMemoryBroker_PublishBeforeStart(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop())

	err := broker.Publish("entity.created", nil)
	require.ErrorIs(t, err, types.ErrEventsNotInitialized)
}

func TestMemoryBroker_PublishReachesSubscribers(t *testing.T) {
	broker := newTestBroker(t)

	var mu sync.Mutex
	var received []*types.EventMessage
	handler := func(message *types.EventMessage) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, message)
		return nil
	}

	require.NoError(t, broker.Subscribe("entity.created", handler))
	require.NoError(t, broker.Subscribe("entity.created", handler))

	require.NoError(t, broker.Publish("entity.created", map[string]interface{}{"id": "1"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	require.Equal(t, "entity.created", received[0].Event)
	require.NotEmpty(t, received[0].MessageID)
}

func TestMemoryBroker_PublishWithoutSubscribers(t *testing.T) {
	broker := newTestBroker(t)

	require.NoError(t, broker.Publish("entity.deleted", nil))
}

func TestMemoryBroker_EventIsolation(t *testing.T) {
	broker := newTestBroker(t)

	var created, deleted int32
	require.NoError(t, broker.Subscribe("entity.created", func(*types.EventMessage) error {
		atomic.AddInt32(&created, 1)
		return nil
	}))
	require.NoError(t, broker.Subscribe("entity.deleted", func(*types.EventMessage) error {
		atomic.AddInt32(&deleted, 1)
		return nil
	}))

	require.NoError(t, broker.Publish("entity.created", nil))

	require.Equal(t, int32(1), atomic.LoadInt32(&created))
	require.Equal(t, int32(0), atomic.LoadInt32(&deleted))
}

func TestMemoryBroker_HandlerErrorSurfaces(t *testing.T) {
	broker := newTestBroker(t)

	require.NoError(t, broker.Subscribe("entity.updated", func(*types.EventMessage) error {
		return errors.New("handler exploded")
	}))

	err := broker.Publish("entity.updated", nil)
	require.ErrorIs(t, err, types.ErrEventsPublishFailed)
}

func TestMemoryBroker_Unsubscribe(t *testing.T) {
	broker := newTestBroker(t)

	var calls int32
	require.NoError(t, broker.Subscribe("entity.created", func(*types.EventMessage) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, broker.Publish("entity.created", nil))
	require.NoError(t, broker.Unsubscribe("entity.created"))
	require.NoError(t, broker.Publish("entity.created", nil))

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMemoryBroker_SubscribeInvalidParams(t *testing.T) {
	broker := newTestBroker(t)

	require.ErrorIs(t, broker.Subscribe("", func(*types.EventMessage) error { return nil }),
		types.ErrInvalidParameter)
	require.ErrorIs(t, broker.Subscribe("entity.created", nil), types.ErrInvalidParameter)
}

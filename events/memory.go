package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-manager/types"
)

// MemoryBroker is the in-process event broker: synchronous fan-out to
// local subscribers, no external transport.
type MemoryBroker struct {
	logger        types.Logger
	subscriptions map[string][]types.EventHandler
	subsMu        sync.RWMutex
	running       int32
	messageIDGen  int64
}

func NewMemoryBroker(logger types.Logger) types.EventBroker {
	return &MemoryBroker{
		logger:        logger,
		subscriptions: make(map[string][]types.EventHandler),
	}
}

func (b *MemoryBroker) Start() error {
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	b.logger.Info("Memory event broker started")
	return nil
}

func (b *MemoryBroker) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	b.logger.Info("Memory event broker stopped")
	return nil
}

func (b *MemoryBroker) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

func (b *MemoryBroker) Publish(event string, payload interface{}) error {
	if !b.IsRunning() {
		return types.ErrEventsNotInitialized
	}

	message := &types.EventMessage{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
		Source:    "memory-broker",
		MessageID: b.generateMessageID(),
	}

	b.subsMu.RLock()
	handlers := make([]types.EventHandler, len(b.subscriptions[event]))
	copy(handlers, b.subscriptions[event])
	b.subsMu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, handler := range handlers {
		h := handler
		g.Go(func() error {
			return h(message)
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Error("Event handler failed",
			zap.String("event", event),
			zap.Error(err))
		return types.Errorf(types.ErrEventsPublishFailed, "event: %s", event)
	}

	return nil
}

func (b *MemoryBroker) Subscribe(event string, handler types.EventHandler) error {
	if event == "" || handler == nil {
		return types.ErrInvalidParameter
	}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	b.subscriptions[event] = append(b.subscriptions[event], handler)
	return nil
}

func (b *MemoryBroker) Unsubscribe(event string) error {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	delete(b.subscriptions, event)
	return nil
}

func (b *MemoryBroker) generateMessageID() string {
	id := atomic.AddInt64(&b.messageIDGen, 1)
	return fmt.Sprintf("mem-%d-%d", time.Now().Unix(), id)
}

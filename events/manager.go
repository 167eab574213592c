package events

import (
	"context"
	"time"

	"github.com/saiset-co/sai-manager/types"
)

var customBrokerCreators = make(map[string]types.EventBrokerCreator)

func RegisterEventBroker(brokerType string, creator types.EventBrokerCreator) {
	customBrokerCreators[brokerType] = creator
}

// NewEventBroker builds the configured broker wrapped with metrics
// instrumentation.
func NewEventBroker(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.EventBroker, error) {
	eventsConfig := config.GetConfig().Events

	if eventsConfig == nil || !eventsConfig.Enabled {
		return nil, types.ErrEventsIsDisabled
	}

	var broker types.EventBroker
	var err error

	switch eventsConfig.Type {
	case "", "memory":
		broker = NewMemoryBroker(logger)
	case "websocket":
		broker, err = NewWebSocketBroker(ctx, logger, metrics, eventsConfig)
	default:
		if creator, exists := customBrokerCreators[eventsConfig.Type]; exists {
			broker, err = creator(eventsConfig.Config)
		} else {
			return nil, types.Errorf(types.ErrEventsTypeUnknown, "type: %s", eventsConfig.Type)
		}
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to create event broker")
	}

	return newInstrumentedEventBroker(broker, metrics), nil
}

type instrumentedEventBroker struct {
	impl    types.EventBroker
	metrics types.MetricsManager
}

func newInstrumentedEventBroker(impl types.EventBroker, metrics types.MetricsManager) types.EventBroker {
	return &instrumentedEventBroker{
		impl:    impl,
		metrics: metrics,
	}
}

func (ieb *instrumentedEventBroker) Publish(event string, payload interface{}) error {
	start := time.Now()
	err := ieb.impl.Publish(event, payload)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ieb.recordMetric("publish", result, event, duration)
	return err
}

func (ieb *instrumentedEventBroker) Subscribe(event string, handler types.EventHandler) error {
	start := time.Now()
	err := ieb.impl.Subscribe(event, handler)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ieb.recordMetric("subscribe", result, event, duration)
	return err
}

func (ieb *instrumentedEventBroker) Unsubscribe(event string) error {
	start := time.Now()
	err := ieb.impl.Unsubscribe(event)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	ieb.recordMetric("unsubscribe", result, event, duration)
	return err
}

func (ieb *instrumentedEventBroker) Start() error {
	return ieb.impl.Start()
}

func (ieb *instrumentedEventBroker) Stop() error {
	return ieb.impl.Stop()
}

func (ieb *instrumentedEventBroker) IsRunning() bool {
	return ieb.impl.IsRunning()
}

func (ieb *instrumentedEventBroker) recordMetric(operation, result, event string, duration time.Duration) {
	if ieb.metrics == nil {
		return
	}

	counter := ieb.metrics.Counter("event_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
		"event":     event,
	})
	counter.Inc()

	histogram := ieb.metrics.Histogram("event_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 5.0},
		map[string]string{"operation": operation, "event": event},
	)
	histogram.Observe(duration.Seconds())
}

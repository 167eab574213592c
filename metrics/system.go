package metrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-manager/types"
)

type SystemState int32

const (
	SystemStateStopped SystemState = iota
	SystemStateStarting
	SystemStateRunning
	SystemStateStopping
)

const (
	memStatsInterval = 15 * time.Second
	runtimeInterval  = 5 * time.Second
)

// SystemMetricsCollector samples the Go runtime on two cadences: the
// cheap counters every few seconds and ReadMemStats, which stops the
// world, less often.
type SystemMetricsCollector struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	metrics     types.MetricsManager
	state       atomic.Value
	startTime   time.Time
	lastGCCount uint32
	lastGCPause uint64
	stopChan    chan struct{}
}

func NewSystemMetricsCollector(ctx context.Context, logger types.Logger, metricsManager types.MetricsManager) *SystemMetricsCollector {
	systemCtx, cancel := context.WithCancel(ctx)

	collector := &SystemMetricsCollector{
		ctx:      systemCtx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metricsManager,
		stopChan: make(chan struct{}),
	}

	collector.state.Store(SystemStateStopped)

	return collector
}

func (smc *SystemMetricsCollector) Start() error {
	if !smc.transitionState(SystemStateStopped, SystemStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	smc.startTime = time.Now()
	smc.setState(SystemStateRunning)

	smc.publishStaticInfo()
	go smc.collectLoop()

	smc.logger.Info("System metrics collection started")
	return nil
}

func (smc *SystemMetricsCollector) Stop() error {
	if !smc.transitionState(SystemStateRunning, SystemStateStopping) {
		return types.ErrServerNotRunning
	}

	close(smc.stopChan)
	smc.cancel()
	smc.setState(SystemStateStopped)

	smc.logger.Info("System metrics collection stopped gracefully")
	return nil
}

func (smc *SystemMetricsCollector) IsRunning() bool {
	return smc.getState() == SystemStateRunning
}

func (smc *SystemMetricsCollector) collectLoop() {
	memTicker := time.NewTicker(memStatsInterval)
	runtimeTicker := time.NewTicker(runtimeInterval)
	defer memTicker.Stop()
	defer runtimeTicker.Stop()

	smc.collectMemStats()
	smc.collectRuntime()

	for {
		select {
		case <-memTicker.C:
			if !smc.IsRunning() {
				return
			}
			smc.collectMemStats()

		case <-runtimeTicker.C:
			if !smc.IsRunning() {
				return
			}
			smc.collectRuntime()

		case <-smc.stopChan:
			return
		case <-smc.ctx.Done():
			return
		}
	}
}

func (smc *SystemMetricsCollector) collectMemStats() {
	if smc.metrics == nil {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	gauges := []struct {
		name   string
		labels map[string]string
		value  float64
	}{
		{"system_memory_usage_bytes", map[string]string{"type": "heap_inuse"}, float64(m.HeapInuse)},
		{"system_memory_usage_bytes", map[string]string{"type": "heap_alloc"}, float64(m.HeapAlloc)},
		{"system_memory_usage_bytes", map[string]string{"type": "sys"}, float64(m.Sys)},
		{"system_memory_usage_bytes", map[string]string{"type": "stack_inuse"}, float64(m.StackInuse)},
		{"system_heap_objects_count", nil, float64(m.HeapObjects)},
		{"system_next_gc_bytes", nil, float64(m.NextGC)},
		{"system_mallocs_total", nil, float64(m.Mallocs)},
		{"system_frees_total", nil, float64(m.Frees)},
	}

	for _, gauge := range gauges {
		smc.metrics.Gauge(gauge.name, gauge.labels).Set(gauge.value)
	}

	smc.collectGC(&m)
}

func (smc *SystemMetricsCollector) collectGC(m *runtime.MemStats) {
	if m.NumGC == smc.lastGCCount {
		return
	}

	smc.metrics.Gauge("system_gc_cycles_total", nil).Set(float64(m.NumGC))
	smc.metrics.Gauge("system_gc_cpu_percent", nil).Set(m.GCCPUFraction * 100)
	smc.metrics.Gauge("system_last_gc_timestamp", nil).Set(float64(m.LastGC) / 1e9)
	smc.lastGCCount = m.NumGC

	// PauseNs is a circular buffer indexed by cycle count.
	lastPause := m.PauseNs[(m.NumGC+255)%256]
	if lastPause > 0 && lastPause != smc.lastGCPause {
		smc.metrics.Histogram("system_gc_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 1.0},
			nil,
		).Observe(float64(lastPause) / 1e9)
		smc.lastGCPause = lastPause
	}
}

func (smc *SystemMetricsCollector) collectRuntime() {
	if smc.metrics == nil {
		return
	}

	smc.metrics.Gauge("system_goroutines_count", nil).Set(float64(runtime.NumGoroutine()))
	smc.metrics.Gauge("system_uptime_seconds", nil).Set(time.Since(smc.startTime).Seconds())
}

func (smc *SystemMetricsCollector) publishStaticInfo() {
	if smc.metrics == nil {
		return
	}

	smc.metrics.Gauge("system_max_procs", nil).Set(float64(runtime.GOMAXPROCS(0)))
	smc.metrics.Gauge("system_go_version", map[string]string{
		"version": runtime.Version(),
	}).Set(1)
}

func (smc *SystemMetricsCollector) getState() SystemState {
	return smc.state.Load().(SystemState)
}

func (smc *SystemMetricsCollector) setState(newState SystemState) bool {
	return smc.state.CompareAndSwap(smc.getState(), newState)
}

func (smc *SystemMetricsCollector) transitionState(from, to SystemState) bool {
	return smc.state.CompareAndSwap(from, to)
}

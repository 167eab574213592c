package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-manager/types"
	"github.com/saiset-co/sai-manager/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// OpsServer is the operational HTTP surface: health, version, metrics and
// a read-only view of the dependency index. Domain traffic does not go
// through it; managers are a library API.
type OpsServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.Logger
	metrics         types.MetricsManager
	healthMgr       types.HealthManager
	cache           types.CacheManager
	server          *fasthttp.Server
	listener        net.Listener
	serverConfig    *types.ServerConfig
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewOpsServer(ctx context.Context, config types.ConfigManager, logger types.Logger, metricsMgr types.MetricsManager, healthMgr types.HealthManager, cache types.CacheManager) (*OpsServer, error) {
	serverConfig := config.GetConfig().Server
	if serverConfig == nil || !serverConfig.Enabled {
		return nil, types.ErrServerNotRunning
	}

	serverCtx, cancel := context.WithCancel(ctx)

	shutdownTimeout := 5 * time.Second
	if serverConfig.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(serverConfig.ShutdownTimeout) * time.Second
	}

	server := &OpsServer{
		ctx:             serverCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		metrics:         metricsMgr,
		healthMgr:       healthMgr,
		cache:           cache,
		serverConfig:    serverConfig,
		shutdownTimeout: shutdownTimeout,
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (s *OpsServer) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.server = &fasthttp.Server{
		Handler:      s.handler(),
		ReadTimeout:  time.Duration(s.serverConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.serverConfig.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.serverConfig.IdleTimeout) * time.Second,
		TCPKeepalive: true,
	}

	addr := fmt.Sprintf("%s:%d", s.serverConfig.Host, s.serverConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.setState(StateStopped)
		return types.Errorf(types.ErrServerStartFailed, "addr: %s, error: %v", addr, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(s.listener); err != nil {
			s.logger.Error("Ops server failed", zap.Error(err))
			s.setState(StateStopped)
		}
	}()

	s.logger.Info("Ops server started", zap.String("address", addr))
	return nil
}

func (s *OpsServer) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if s.server != nil {
			if s.listener != nil {
				if err := s.listener.Close(); err != nil {
					s.logger.Error("Failed to close listener", zap.Error(err))
				}
			}
			return s.server.ShutdownWithContext(ctx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			s.logger.Warn("Ops server stop timeout")
		default:
			s.logger.Error("Error during ops server shutdown", zap.Error(err))
		}
	} else {
		s.logger.Info("Ops server stopped gracefully")
	}

	return nil
}

func (s *OpsServer) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *OpsServer) getState() State {
	return s.state.Load().(State)
}

func (s *OpsServer) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *OpsServer) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *OpsServer) handler() fasthttp.RequestHandler {
	var promHandler fasthttp.RequestHandler
	if exporter, ok := s.metrics.(interface {
		ExpositionHandler() fasthttp.RequestHandler
	}); ok {
		promHandler = exporter.ExpositionHandler()
	}

	return func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsGet() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}

		switch string(ctx.Path()) {
		case "/health":
			s.handleHealth(ctx)
		case "/version":
			s.handleVersion(ctx)
		case "/metrics":
			if promHandler != nil {
				promHandler(ctx)
				return
			}
			s.handleMetrics(ctx)
		case "/stats":
			s.handleStats(ctx)
		case "/cache/index":
			s.handleCacheIndex(ctx)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

func (s *OpsServer) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.healthMgr == nil || !s.healthMgr.IsRunning() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	report := s.healthMgr.Check(ctx)

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	s.writeJSON(ctx, status, report)
}

func (s *OpsServer) handleVersion(ctx *fasthttp.RequestCtx) {
	config := s.config.GetConfig()

	info := types.VersionInfo{
		Version: config.Version,
	}
	if builder, ok := s.healthMgr.(interface{ BuildSummary() string }); ok {
		info.BuildInfo = builder.BuildSummary()
	}

	s.writeJSON(ctx, fasthttp.StatusOK, info)
}

func (s *OpsServer) handleMetrics(ctx *fasthttp.RequestCtx) {
	if s.metrics == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	data, err := s.metrics.GetMetrics()
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	if _, err := ctx.Write(data); err != nil {
		s.logger.Error("Failed to write metrics", zap.Error(err))
	}
}

func (s *OpsServer) handleStats(ctx *fasthttp.RequestCtx) {
	if s.metrics == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	data, err := s.metrics.GetStats()
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	if _, err := ctx.Write(data); err != nil {
		s.logger.Error("Failed to write stats", zap.Error(err))
	}
}

func (s *OpsServer) handleCacheIndex(ctx *fasthttp.RequestCtx) {
	if s.cache == nil {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	index, err := s.cache.GetFullIndex()
	if err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, index)
}

func (s *OpsServer) writeJSON(ctx *fasthttp.RequestCtx, status int, value interface{}) {
	data, err := utils.Marshal(value)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if _, err := ctx.Write(data); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

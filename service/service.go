package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-manager/config"
	"github.com/saiset-co/sai-manager/cron"
	"github.com/saiset-co/sai-manager/database"
	"github.com/saiset-co/sai-manager/depcache"
	"github.com/saiset-co/sai-manager/events"
	"github.com/saiset-co/sai-manager/health"
	"github.com/saiset-co/sai-manager/history"
	"github.com/saiset-co/sai-manager/logger"
	"github.com/saiset-co/sai-manager/manager"
	"github.com/saiset-co/sai-manager/metrics"
	"github.com/saiset-co/sai-manager/sai"
	"github.com/saiset-co/sai-manager/server"
	"github.com/saiset-co/sai-manager/store"
	"github.com/saiset-co/sai-manager/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
	opsServer       *server.OpsServer
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	_, err := os.Stat(configPath)
	if err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := service.registerProviders(ctx); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

// RegisterInterface binds an interface schema to the shared runtime and
// publishes the resulting domain manager under the schema name. Must be
// called after NewService so the runtime collaborators exist.
func (s *Service) RegisterInterface(schema *types.InterfaceSchema) (types.Manager, error) {
	if schema == nil {
		return nil, types.ErrSchemaIsNil
	}

	runtime := &types.CapabilityRuntime{
		Logger: sai.Logger(),
	}

	if ptr := s.container.Database.Load(); ptr != nil {
		runtime.Database = *ptr
	}
	if ptr := s.container.Cache.Load(); ptr != nil {
		runtime.Cache = *ptr
	}
	if ptr := s.container.History.Load(); ptr != nil {
		runtime.History = *ptr
	}
	if ptr := s.container.Events.Load(); ptr != nil {
		runtime.Events = *ptr
	}

	cacheTTL := time.Duration(0)
	if cacheConfig := sai.Config().GetConfig().Cache; cacheConfig != nil {
		cacheTTL = cacheConfig.DefaultTTL
	}

	domainManager, err := manager.New(schema, runtime, cacheTTL)
	if err != nil {
		return nil, types.WrapError(err, "failed to build domain manager")
	}

	s.container.SetManager(schema.Name, domainManager)
	return domainManager, nil
}

func (s *Service) Manager(name string) (types.Manager, error) {
	return sai.Manager(name)
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		sai.Logger().Warn("Service is already running")
		return types.ErrServiceIsRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", logger.ErrField(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		sai.Logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Cancel() {
	s.cancel()
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents(ctx context.Context) error {
	_config := sai.Config().GetConfig()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Config.Load(); ptr != nil {
			manager := (*ptr).(types.LifecycleManager)
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start config manager")
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if ptr := s.container.Logger.Load(); ptr != nil {
			manager := (*ptr).(types.LifecycleManager)
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start logger")
			}
		}
	}

	if _config.Health != nil && _config.Health.Enabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if ptr := s.container.Health.Load(); ptr != nil {
				if err := (*ptr).Start(); err != nil {
					sai.Logger().Error("Failed to start health manager", zap.Error(err))
				}
			}
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if _config.Metrics != nil && _config.Metrics.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Metrics.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						sai.Logger().Error("Failed to start metrics manager", zap.Error(err))
					}
				}
				return nil
			}
		})
	}

	if _config.Store != nil && _config.Store.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Store.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						return types.WrapError(err, "failed to start record store")
					}
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if _config.Cache != nil && _config.Cache.Enabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if ptr := s.container.Cache.Load(); ptr != nil {
				if err := (*ptr).Start(); err != nil {
					return types.WrapError(err, "failed to start cache manager")
				}
			}
		}
	}

	g, gCtx = errgroup.WithContext(ctx)

	if _config.Database != nil && _config.Database.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Database.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						return types.WrapError(err, "failed to start database manager")
					}
				}
				return nil
			}
		})
	}

	if _config.History != nil && _config.History.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.History.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						return types.WrapError(err, "failed to start history store")
					}
				}
				return nil
			}
		})
	}

	if _config.Events != nil && _config.Events.Enabled {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if ptr := s.container.Events.Load(); ptr != nil {
					if err := (*ptr).Start(); err != nil {
						sai.Logger().Error("Failed to start event broker", zap.Error(err))
					}
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if s.opsServer != nil {
		if err := s.opsServer.Start(); err != nil {
			sai.Logger().Error("Failed to start ops server", zap.Error(err))
		}
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if ptr := s.container.Cron.Load(); ptr != nil {
				if err := (*ptr).Start(); err != nil {
					sai.Logger().Error("Failed to start cron manager", zap.Error(err))
				}
			}
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errors []error

	sai.Logger().Info("Stopping service components...")

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop cron manager", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if s.opsServer != nil {
		if err := s.opsServer.Stop(); err != nil {
			sai.Logger().Error("Failed to stop ops server", zap.Error(err))
			errors = append(errors, err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Events.Load(); ptr != nil {
		broker := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := broker.Stop(); err != nil {
					sai.Logger().Error("Failed to stop event broker", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.History.Load(); ptr != nil {
		historyStore := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := historyStore.Stop(); err != nil {
					sai.Logger().Error("Failed to stop history store", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.Database.Load(); ptr != nil {
		db := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := db.Stop(); err != nil {
					sai.Logger().Error("Failed to stop database manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop cache manager", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Store.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop record store", zap.Error(err))
			errors = append(errors, err)
		}
	}

	g, _ = errgroup.WithContext(context.Background())

	if ptr := s.container.Metrics.Load(); ptr != nil {
		metricsManager := *ptr
		g.Go(func() error {
			if err := metricsManager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		healthManager := *ptr
		g.Go(func() error {
			if err := healthManager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errors = append(errors, err)
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		if err := (*ptr).(types.LifecycleManager).Stop(); err != nil {
			sai.Logger().Error("Failed to stop config manager", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errors)
	}

	sai.Logger().Info("All components stopped successfully")

	if ptr := s.container.Logger.Load(); ptr != nil {
		if syncer, ok := (*ptr).(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
	}

	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}

func (s *Service) registerProviders(ctx context.Context) error {
	var metricsManager types.MetricsManager
	var healthManager types.HealthManager
	var recordStore types.RecordStore
	var cacheManager types.CacheManager
	var cronManager types.CronManager

	configManager, err := config.NewConfigurationManager(ctx, s.configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	s.container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	s.container.SetLogger(loggerManager)

	if _config.Health != nil && _config.Health.Enabled {
		healthManager, err = health.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		s.container.SetHealth(healthManager)
	}

	if _config.Metrics != nil && _config.Metrics.Enabled {
		metricsManager, err = metrics.NewManager(ctx, configManager, loggerManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register metrics manager")
		}
		s.container.SetMetrics(metricsManager)
	}

	if _config.Store != nil && _config.Store.Enabled {
		recordStore, err = store.NewRecordStore(ctx, configManager, loggerManager, metricsManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register record store")
		}
		s.container.SetStore(recordStore)
	}

	if _config.Cache != nil && _config.Cache.Enabled {
		cacheManager, err = depcache.NewCacheManager(ctx, configManager, loggerManager, metricsManager, healthManager, recordStore)
		if err != nil {
			return types.WrapError(err, "failed to register cache manager")
		}
		s.container.SetCache(cacheManager)
	}

	if _config.Database != nil && _config.Database.Enabled {
		databaseManager, err := database.NewManager(ctx, configManager, loggerManager, metricsManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register database manager")
		}
		s.container.SetDatabase(databaseManager)
	}

	if _config.History != nil && _config.History.Enabled {
		historyStore, err := history.NewSqliteStore(ctx, loggerManager, _config.History)
		if err != nil {
			return types.WrapError(err, "failed to register history store")
		}
		s.container.SetHistory(historyStore)
	}

	if _config.Events != nil && _config.Events.Enabled {
		eventBroker, err := events.NewEventBroker(ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register event broker")
		}
		s.container.SetEvents(eventBroker)
	}

	if _config.Cron != nil && _config.Cron.Enabled {
		cronManager, err = cron.NewManager(ctx, configManager, loggerManager, metricsManager, healthManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}
		s.container.SetCron(cronManager)

		if cacheManager != nil {
			if err := depcache.RegisterMaintenance(cronManager, cacheManager, loggerManager, _config.Cache.MaintenanceSpec); err != nil {
				return types.WrapError(err, "failed to register cache maintenance job")
			}
		}
	}

	if _config.Server != nil && _config.Server.Enabled {
		opsServer, err := server.NewOpsServer(ctx, configManager, loggerManager, metricsManager, healthManager, cacheManager)
		if err != nil {
			return types.WrapError(err, "failed to register ops server")
		}
		s.opsServer = opsServer
	}

	return nil
}

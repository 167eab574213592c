package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-manager/types"
)

type cronConfig struct{}

func (c *cronConfig) Load() error { return nil }

func (c *cronConfig) GetConfig() *types.ServiceConfig {
	return &types.ServiceConfig{
		Cron: &types.CronConfig{Enabled: true, Timezone: "UTC"},
	}
}

func (c *cronConfig) GetValue(path string, defaultValue interface{}) interface{} {
	return defaultValue
}

func (c *cronConfig) GetAs(path string, target interface{}) error { return nil }

func newTestManager(t *testing.T) types.CronManager {
	t.Helper()

	manager, err := NewManager(context.Background(), &cronConfig{}, zap.NewNop(), nil, nil)
	require.NoError(t, err)

	return manager
}

func TestManager_AddValidation(t *testing.T) {
	manager := newTestManager(t)

	require.ErrorIs(t, manager.Add("", "* * * * * *", func() {}), types.ErrCronJobNameIsEmpty)
	require.ErrorIs(t, manager.Add("job", "", func() {}), types.ErrCronExpressionInvalid)
	require.ErrorIs(t, manager.Add("job", "* * * * * *", nil), types.ErrCronJobIsNil)
}

func TestManager_AddRejectsDuplicate(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Add("job", "* * * * * *", func() {}))
	require.ErrorIs(t, manager.Add("job", "* * * * * *", func() {}), types.ErrCronJobExists)
}

func TestManager_AddRejectsBadSpec(t *testing.T) {
	manager := newTestManager(t)

	require.Error(t, manager.Add("job", "not a cron spec", func() {}))
}

func TestManager_RunsScheduledJob(t *testing.T) {
	manager := newTestManager(t)

	ran := make(chan struct{}, 1)
	require.NoError(t, manager.Add("tick", "* * * * * *", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	require.NoError(t, manager.Start())
	defer func() { _ = manager.Stop() }()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

func TestManager_Lifecycle(t *testing.T) {
	manager := newTestManager(t)

	require.False(t, manager.IsRunning())
	require.NoError(t, manager.Start())
	require.True(t, manager.IsRunning())
	require.Error(t, manager.Start())

	require.NoError(t, manager.Stop())
	require.False(t, manager.IsRunning())
	require.Error(t, manager.Stop())
}

func TestManager_AddAfterStop(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.Start())
	require.NoError(t, manager.Stop())

	require.ErrorIs(t, manager.Add("late", "* * * * * *", func() {}),
		types.ErrCronSchedulerStopped)
}

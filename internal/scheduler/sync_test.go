package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
)

type stubRunner struct {
	mu       sync.Mutex
	calls    int
	triggers []entities.RunTrigger
	types    [][]registry.EntityType
	deadline bool
	block    chan struct{}
	started  chan struct{}
	err      error
}

func (r *stubRunner) RunSync(ctx context.Context, types []registry.EntityType) (*engine.Report, error) {
	r.mu.Lock()
	r.calls++
	r.triggers = append(r.triggers, engine.TriggerFromContext(ctx))
	r.types = append(r.types, types)
	_, r.deadline = ctx.Deadline()
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return &engine.Report{CycleID: "c1", Status: engine.StateCompleted, Success: true}, nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, ValidateCronSchedule("*/30 * * * *"))
	assert.NoError(t, ValidateCronSchedule("0 0 * * *"))
	assert.Error(t, ValidateCronSchedule("* * * * * *"))
	assert.Error(t, ValidateCronSchedule("not a schedule"))
}

func TestGetCronDescription(t *testing.T) {
	assert.Equal(t, "Every 30 minutes", GetCronDescription("*/30 * * * *"))
	assert.Equal(t, "Custom schedule: 5 4 * * 1", GetCronDescription("5 4 * * 1"))
}

func TestGetNextRunTime(t *testing.T) {
	from := time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)
	next, err := GetNextRunTime("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), *next)

	_, err = GetNextRunTime("bogus", from)
	assert.Error(t, err)
}

func TestStart_DisabledDoesNothing(t *testing.T) {
	s := NewSyncScheduler(&stubRunner{}, config.Sync{Enabled: false, Schedule: "*/5 * * * *"}, nil, logger.Discard())

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewSyncScheduler(&stubRunner{}, config.Sync{Enabled: true, Schedule: "every hour"}, nil, logger.Discard())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron schedule")
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	s := NewSyncScheduler(&stubRunner{}, config.Sync{Enabled: true, Schedule: "0 0 * * *"}, nil, logger.Discard())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())

	// second stop is a no-op
	s.Stop()
}

func TestStop_OnContextCancel(t *testing.T) {
	s := NewSyncScheduler(&stubRunner{}, config.Sync{Enabled: true, Schedule: "0 0 * * *"}, nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestRunSync_UsesScheduleTriggerAndTimeout(t *testing.T) {
	runner := &stubRunner{}
	types := []registry.EntityType{registry.Locations, registry.Payments}
	s := NewSyncScheduler(runner, config.Sync{CycleTimeout: time.Minute}, types, logger.Discard())

	s.runSync()

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, entities.RunTriggerSchedule, runner.triggers[0])
	assert.Equal(t, types, runner.types[0])
	assert.True(t, runner.deadline)

	report, err := s.LastResult()
	require.NoError(t, err)
	assert.Equal(t, "c1", report.CycleID)
	assert.False(t, s.IsSyncing())
}

func TestRunSync_SkipsWhileSyncing(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewSyncScheduler(runner, config.Sync{}, nil, logger.Discard())

	s.RunNow()
	<-runner.started
	assert.True(t, s.IsSyncing())

	s.runSync()
	assert.Equal(t, 1, runner.callCount())

	close(runner.block)
	assert.Eventually(t, func() bool { return !s.IsSyncing() }, time.Second, 10*time.Millisecond)
}

func TestRunSync_CycleInProgressElsewhere(t *testing.T) {
	runner := &stubRunner{err: engine.ErrCycleInProgress}
	s := NewSyncScheduler(runner, config.Sync{}, nil, logger.Discard())

	s.runSync()

	report, err := s.LastResult()
	assert.Nil(t, report)
	assert.ErrorIs(t, err, engine.ErrCycleInProgress)
}

func TestAddMaintenance(t *testing.T) {
	s := NewSyncScheduler(&stubRunner{}, config.Sync{Enabled: false}, nil, logger.Discard())

	assert.Error(t, s.AddMaintenance("cleanup", "hourly", func(context.Context) {}))
	require.NoError(t, s.AddMaintenance("cleanup", "0 * * * *", func(context.Context) {}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.True(t, s.IsRunning(), "maintenance keeps the cron running without scheduled sync")
	assert.Nil(t, s.GetNextRunTime(), "no sync entry when scheduled sync is disabled")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCronLogger(t *testing.T) {
	var buf lockedBuffer
	l := cronLogger{log: logger.New(&buf, slog.LevelInfo, "text")}

	l.Info("wake", "now", time.Now())
	assert.Empty(t, buf.String(), "tick chatter stays at debug")

	l.Error(errors.New("boom"), "panic", "stack", "...")
	assert.Contains(t, buf.String(), "panic")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestScheduler_RecoversPanickingJob(t *testing.T) {
	var buf lockedBuffer
	s := NewSyncScheduler(&stubRunner{}, config.Sync{}, nil, logger.New(&buf, slog.LevelInfo, "text"))

	s.cron.Schedule(cron.Every(time.Second), cron.FuncJob(func() { panic("maintenance exploded") }))
	s.cron.Start()
	defer s.cron.Stop()

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "maintenance exploded")
	}, 3*time.Second, 50*time.Millisecond)
}

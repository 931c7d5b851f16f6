package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/pkg/logger"
)

// countingRunner records scheduled runs and returns a fixed error
type countingRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	block chan struct{}
}

func (r *countingRunner) Run(ctx context.Context, opts RunOptions) error {
	r.mu.Lock()
	r.runs++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestUpdateScheduler_StartAndStop(t *testing.T) {
	runner := &countingRunner{}
	scheduler := NewUpdateScheduler(runner, &domain.SchedulerConfig{Enabled: true, Interval: 10 * time.Millisecond}, nil)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.True(t, scheduler.IsRunning())
	assert.Error(t, scheduler.Start(context.Background()), "already running")

	require.Eventually(t, func() bool { return runner.count() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())
	assert.Error(t, scheduler.Stop(), "not running")

	last, err := scheduler.LastRun()
	assert.False(t, last.IsZero())
	assert.NoError(t, err)
}

func TestUpdateScheduler_RequiresInterval(t *testing.T) {
	scheduler := NewUpdateScheduler(&countingRunner{}, &domain.SchedulerConfig{Enabled: true}, nil)
	assert.Error(t, scheduler.Start(context.Background()))
	assert.False(t, scheduler.IsRunning())
}

func TestUpdateScheduler_StopCancelsRunInProgress(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	scheduler := NewUpdateScheduler(runner, &domain.SchedulerConfig{Interval: 5 * time.Millisecond}, nil)

	require.NoError(t, scheduler.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, scheduler.Stop())
	_, err := scheduler.LastRun()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateScheduler_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewUpdateScheduler(&countingRunner{}, &domain.SchedulerConfig{Interval: time.Hour}, nil)

	require.NoError(t, scheduler.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !scheduler.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestUpdateScheduler_LogsRunOutcome(t *testing.T) {
	logsDir := t.TempDir()
	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: logsDir})
	require.NoError(t, err)
	defer ml.Close()

	runner := &countingRunner{err: domain.ErrRunInProgress}
	scheduler := NewUpdateScheduler(runner, &domain.SchedulerConfig{Interval: 5 * time.Millisecond}, ml)
	require.NoError(t, scheduler.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.count() >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, scheduler.Stop())
	ml.Sync()

	reader := logger.NewLogReader(logsDir)
	data, err := os.ReadFile(reader.GetLogPath(logger.CategoryUpdate, time.Now()))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "scheduler_started"))
	assert.True(t, strings.Contains(content, "scheduled_run_skipped"))
	assert.True(t, strings.Contains(content, "scheduler_stopped"))

	errorLog := filepath.Join(logsDir, "error-"+time.Now().Format("20060102")+".log")
	data, err = os.ReadFile(errorLog)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(data)), "skipped runs are not errors")
}

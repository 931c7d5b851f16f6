package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/pkg/logger"
)

// UpdateRunner is the part of the orchestrator the scheduler drives
type UpdateRunner interface {
	Run(ctx context.Context, opts RunOptions) error
}

// UpdateScheduler triggers an update run at a fixed interval
type UpdateScheduler struct {
	runner      UpdateRunner
	config      *domain.SchedulerConfig
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
	lastRun     time.Time
	lastErr     error
}

// NewUpdateScheduler creates a stopped scheduler
func NewUpdateScheduler(runner UpdateRunner, config *domain.SchedulerConfig, multiLogger *logger.MultiLogger) *UpdateScheduler {
	return &UpdateScheduler{
		runner:      runner,
		config:      config,
		multiLogger: multiLogger,
	}
}

// Start runs the scheduler loop until Stop or ctx cancellation
func (s *UpdateScheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("update scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logEvent("scheduler_started", zap.Duration("interval", s.config.Interval))

	s.workerWg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop stops the loop and waits for an in-progress run to return
func (s *UpdateScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("update scheduler not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.workerWg.Wait()
	s.logEvent("scheduler_stopped", zap.String("reason", "stop_signal"))
	return nil
}

// IsRunning returns whether the scheduler loop is active
func (s *UpdateScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LastRun returns when the scheduler last triggered a run and its outcome
func (s *UpdateScheduler) LastRun() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastErr
}

func (s *UpdateScheduler) loop(ctx context.Context) {
	defer s.workerWg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.logEvent("scheduler_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *UpdateScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.logEvent("scheduled_run_started")
	err := s.runner.Run(runCtx, RunOptions{})

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case err == nil:
		s.logEvent("scheduled_run_completed")
	case errors.Is(err, domain.ErrRunInProgress):
		s.logEvent("scheduled_run_skipped", zap.String("reason", "run_in_progress"))
	default:
		s.logEvent("scheduled_run_failed", zap.Error(err))
		if s.multiLogger != nil {
			s.multiLogger.LogAppError("Scheduled update run failed", zap.Error(err))
		}
	}
}

func (s *UpdateScheduler) logEvent(event string, fields ...zap.Field) {
	if s.multiLogger != nil {
		s.multiLogger.LogUpdateEvent(event, fields...)
	}
}

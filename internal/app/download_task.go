package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/hotsync-go/internal/domain"
)

const defaultMaxRetryDelay = 30 * time.Second

// TaskOptions bounds how a download task transfers its files
type TaskOptions struct {
	MaxConcurrent int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func (o TaskOptions) normalized() TaskOptions {
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = defaultMaxRetryDelay
	}
	return o
}

// retryAfterError is implemented by transport errors that carry a server-requested delay
type retryAfterError interface {
	RetryDelay() time.Duration
}

// DownloadTask transfers a frozen set of bundles into a package cache.
// The file set and totals are fixed at creation and never change.
type DownloadTask struct {
	id         string
	pkg        string
	selection  domain.Selection
	files      []domain.BundleEntry
	totalBytes int64
	opts       TaskOptions
	backend    domain.PackageBackend
	notifier   domain.Notifier
	logger     *zap.Logger
	events     *EventBus

	// emitMu orders counter updates with their progress events
	emitMu sync.Mutex

	mu           sync.Mutex
	cond         *sync.Cond
	state        domain.TaskState
	next         int
	currentCount int
	currentBytes int64
	failErr      error
	failedFiles  []string
	createdAt    time.Time
	startedAt    time.Time
	finishedAt   time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// TaskSnapshot is a point-in-time view of a task
type TaskSnapshot struct {
	ID          string           `json:"id"`
	Package     string           `json:"package"`
	Selection   string           `json:"selection"`
	State       domain.TaskState `json:"state"`
	Progress    domain.Progress  `json:"progress"`
	Ratio       float64          `json:"ratio"`
	FailedFiles []string         `json:"failed_files,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

func newDownloadTask(
	pkg string,
	selection domain.Selection,
	files []domain.BundleEntry,
	opts TaskOptions,
	backend domain.PackageBackend,
	notifier domain.Notifier,
	logger *zap.Logger,
) *DownloadTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &DownloadTask{
		id:        uuid.New().String(),
		pkg:       pkg,
		selection: selection,
		files:     files,
		opts:      opts.normalized(),
		backend:   backend,
		notifier:  notifier,
		logger:    logger,
		events:    NewEventBus(),
		state:     domain.TaskCreated,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	for _, f := range files {
		t.totalBytes += f.Size
	}
	return t
}

// ID returns the task identifier
func (t *DownloadTask) ID() string {
	return t.id
}

// Package returns the name of the package the task downloads for
func (t *DownloadTask) Package() string {
	return t.pkg
}

// TotalCount returns the number of files frozen at creation
func (t *DownloadTask) TotalCount() int {
	return len(t.files)
}

// TotalBytes returns the summed size of the frozen files
func (t *DownloadTask) TotalBytes() int64 {
	return t.totalBytes
}

// Files returns a copy of the frozen file set
func (t *DownloadTask) Files() []domain.BundleEntry {
	files := make([]domain.BundleEntry, len(t.files))
	copy(files, t.files)
	return files
}

// Subscribe registers a handler for this task's events only
func (t *DownloadTask) Subscribe(handler EventHandler) (unsubscribe func()) {
	return t.events.Subscribe(handler)
}

// State returns the current task state
func (t *DownloadTask) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the current counters
func (t *DownloadTask) Progress() domain.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

// Err returns the failure cause of a failed task
func (t *DownloadTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != domain.TaskFailed {
		return nil
	}
	return t.failErr
}

// Snapshot returns a copy of the task's externally visible fields
func (t *DownloadTask) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.progressLocked()
	snap := TaskSnapshot{
		ID:        t.id,
		Package:   t.pkg,
		Selection: t.selection.String(),
		State:     t.state,
		Progress:  p,
		Ratio:     p.Ratio(),
		CreatedAt: t.createdAt,
	}
	if len(t.failedFiles) > 0 {
		snap.FailedFiles = append([]string(nil), t.failedFiles...)
	}
	if t.state == domain.TaskFailed && t.failErr != nil {
		snap.Error = t.failErr.Error()
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		snap.StartedAt = &started
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

func (t *DownloadTask) progressLocked() domain.Progress {
	return domain.Progress{
		TotalCount:   len(t.files),
		CurrentCount: t.currentCount,
		TotalBytes:   t.totalBytes,
		CurrentBytes: t.currentBytes,
	}
}

// Begin starts the transfers. Cancelling ctx cancels the task.
func (t *DownloadTask) Begin(ctx context.Context) error {
	t.mu.Lock()
	if t.state != domain.TaskCreated {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot begin task in state %s", domain.ErrInvalidTransition, state)
	}
	t.startedAt = time.Now()

	if len(t.files) == 0 {
		t.state = domain.TaskSucceeded
		t.finishedAt = t.startedAt
		p := t.progressLocked()
		t.mu.Unlock()

		t.publishState(domain.TaskSucceeded)
		t.events.Publish(Event{Type: EventComplete, TaskID: t.id, Package: t.pkg, Progress: &p})
		t.closeDone()
		return nil
	}

	t.state = domain.TaskRunning
	t.mu.Unlock()

	t.logger.Info("Download task started",
		zap.String("task_id", t.id),
		zap.String("package", t.pkg),
		zap.String("selection", t.selection.String()),
		zap.Int("files", len(t.files)),
		zap.Int64("bytes", t.totalBytes),
		zap.Int("max_concurrent", t.opts.MaxConcurrent))
	t.publishState(domain.TaskRunning)

	go t.run(ctx)
	return nil
}

// Pause stops dispatching new transfers. In-flight transfers finish.
func (t *DownloadTask) Pause() error {
	t.mu.Lock()
	if t.state != domain.TaskRunning {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot pause task in state %s", domain.ErrInvalidTransition, state)
	}
	t.state = domain.TaskPaused
	t.mu.Unlock()

	t.logger.Info("Download task paused", zap.String("task_id", t.id))
	t.publishState(domain.TaskPaused)
	return nil
}

// Resume continues dispatching after Pause
func (t *DownloadTask) Resume() error {
	t.mu.Lock()
	if t.state != domain.TaskPaused {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot resume task in state %s", domain.ErrInvalidTransition, state)
	}
	t.state = domain.TaskRunning
	t.cond.Broadcast()
	t.mu.Unlock()

	t.logger.Info("Download task resumed", zap.String("task_id", t.id))
	t.publishState(domain.TaskRunning)
	return nil
}

// Cancel marks the task cancelled. Once Cancel returns no further transfer is dispatched;
// transfers already in flight may still complete.
func (t *DownloadTask) Cancel() error {
	t.mu.Lock()
	switch t.state {
	case domain.TaskCancelled:
		t.mu.Unlock()
		return nil
	case domain.TaskSucceeded, domain.TaskFailed:
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel task in state %s", domain.ErrInvalidTransition, state)
	}

	notStarted := t.state == domain.TaskCreated
	t.state = domain.TaskCancelled
	if notStarted {
		t.finishedAt = time.Now()
	}
	t.cond.Broadcast()
	t.mu.Unlock()

	t.logger.Info("Download task cancelled", zap.String("task_id", t.id))
	t.publishState(domain.TaskCancelled)
	if notStarted {
		t.closeDone()
	}
	return nil
}

// Done is closed once the task reached a terminal state and every transfer settled
func (t *DownloadTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles and returns its outcome
func (t *DownloadTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case domain.TaskSucceeded:
		return nil
	case domain.TaskFailed:
		return t.failErr
	default:
		return fmt.Errorf("%w: %s", domain.ErrTaskCancelled, t.id)
	}
}

func (t *DownloadTask) run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		t.Cancel()
	})
	defer stop()

	unlock, err := t.backend.Cache().LockShared(ctx)
	if err != nil {
		t.mu.Lock()
		if t.failErr == nil && ctx.Err() == nil {
			t.failErr = fmt.Errorf("%w: %v", domain.ErrPartialDownload, err)
		}
		t.mu.Unlock()
		t.finalize()
		return
	}

	sem := semaphore.NewWeighted(int64(t.opts.MaxConcurrent))
	var wg sync.WaitGroup
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		bundle, ok := t.nextFile()
		if !ok {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(b domain.BundleEntry) {
			defer wg.Done()
			defer sem.Release(1)
			t.transfer(ctx, b)
		}(bundle)
	}
	wg.Wait()

	unlock()
	t.finalize()
}

// nextFile hands out the next undispatched file, blocking while paused
func (t *DownloadTask) nextFile() (domain.BundleEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.next < len(t.files) && t.state == domain.TaskPaused && t.failErr == nil {
		t.cond.Wait()
	}
	if t.next >= len(t.files) || t.state != domain.TaskRunning || t.failErr != nil {
		return domain.BundleEntry{}, false
	}
	b := t.files[t.next]
	t.next++
	return b, true
}

// proceed waits out a pause and reports whether an attempt may start.
// Only cancellation stops a dispatched file; once another file has failed,
// in-flight files still use their full retry budget.
func (t *DownloadTask) proceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == domain.TaskPaused && t.failErr == nil {
		t.cond.Wait()
	}
	return t.state != domain.TaskCancelled
}

func (t *DownloadTask) transfer(ctx context.Context, bundle domain.BundleEntry) {
	var lastErr error
	attempts := t.opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := t.backoff(attempt, lastErr)
			t.logger.Info("Retrying bundle",
				zap.String("task_id", t.id),
				zap.String("file", bundle.FileName),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		if !t.proceed() {
			return
		}

		err := t.fetch(ctx, bundle)
		if err == nil {
			t.complete(bundle)
			return
		}
		if ctx.Err() != nil {
			return
		}

		lastErr = err
		t.logger.Warn("Bundle download attempt failed",
			zap.String("task_id", t.id),
			zap.String("file", bundle.FileName),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < attempts-1 {
			t.events.Publish(Event{
				Type:    EventError,
				TaskID:  t.id,
				Package: t.pkg,
				File:    bundle.FileName,
				Message: err.Error(),
			})
		}
	}

	t.fail(bundle, lastErr)
}

func (t *DownloadTask) fetch(ctx context.Context, bundle domain.BundleEntry) error {
	r, err := t.backend.OpenBundle(ctx, bundle)
	if err != nil {
		return err
	}
	defer r.Close()
	return t.backend.Cache().Write(ctx, bundle, r)
}

// backoff doubles the retry delay per attempt and honors a longer server-requested delay
func (t *DownloadTask) backoff(attempt int, err error) time.Duration {
	delay := t.opts.RetryDelay
	for i := 1; i < attempt && delay < t.opts.MaxRetryDelay; i++ {
		delay *= 2
	}

	var ra retryAfterError
	if errors.As(err, &ra) {
		if d := ra.RetryDelay(); d > delay {
			delay = d
		}
	}
	if delay > t.opts.MaxRetryDelay {
		delay = t.opts.MaxRetryDelay
	}
	return delay
}

func (t *DownloadTask) complete(bundle domain.BundleEntry) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.currentCount++
	t.currentBytes += bundle.Size
	p := t.progressLocked()
	t.mu.Unlock()

	t.logger.Debug("Bundle downloaded",
		zap.String("task_id", t.id),
		zap.String("file", bundle.FileName),
		zap.Int("current", p.CurrentCount),
		zap.Int("total", p.TotalCount))
	t.events.Publish(Event{Type: EventProgress, TaskID: t.id, Package: t.pkg, File: bundle.FileName, Progress: &p})
}

// fail reports the final error for a file, then stops dispatching
func (t *DownloadTask) fail(bundle domain.BundleEntry, err error) {
	t.logger.Error("Bundle download failed after retries",
		zap.String("task_id", t.id),
		zap.String("file", bundle.FileName),
		zap.Int("attempts", t.opts.MaxRetries+1),
		zap.Error(err))
	t.events.Publish(Event{
		Type:    EventError,
		TaskID:  t.id,
		Package: t.pkg,
		File:    bundle.FileName,
		Message: err.Error(),
		State:   string(domain.TaskFailed),
	})
	if t.notifier != nil {
		t.notifier.NotifyDownloadFailed(t.pkg, bundle.FileName, err)
	}

	t.mu.Lock()
	if t.failErr == nil {
		t.failErr = fmt.Errorf("%w: %s: %v", domain.ErrPartialDownload, bundle.FileName, err)
	}
	t.failedFiles = append(t.failedFiles, bundle.FileName)
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *DownloadTask) finalize() {
	t.mu.Lock()
	prev := t.state
	switch {
	case t.state == domain.TaskCancelled:
	case t.failErr != nil:
		t.state = domain.TaskFailed
	case t.currentCount == len(t.files):
		t.state = domain.TaskSucceeded
	default:
		t.state = domain.TaskCancelled
	}
	t.finishedAt = time.Now()
	state := t.state
	p := t.progressLocked()
	err := t.failErr
	t.mu.Unlock()

	fields := []zap.Field{
		zap.String("task_id", t.id),
		zap.String("package", t.pkg),
		zap.String("state", string(state)),
		zap.Int("current", p.CurrentCount),
		zap.Int("total", p.TotalCount),
	}
	if state == domain.TaskFailed {
		t.logger.Error("Download task failed", append(fields, zap.Error(err))...)
	} else {
		t.logger.Info("Download task finished", fields...)
	}

	if state != prev {
		t.publishState(state)
	}
	if state == domain.TaskSucceeded {
		t.events.Publish(Event{Type: EventComplete, TaskID: t.id, Package: t.pkg, Progress: &p})
	}
	t.closeDone()
}

func (t *DownloadTask) publishState(state domain.TaskState) {
	t.events.Publish(Event{Type: EventState, TaskID: t.id, Package: t.pkg, State: string(state)})
}

func (t *DownloadTask) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

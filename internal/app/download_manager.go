package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// maxFinishedTasks bounds how many terminal tasks are kept for lookup
const maxFinishedTasks = 64

// DownloadManager creates and tracks the download tasks of one package
type DownloadManager struct {
	pkg      *domain.Package
	backend  domain.PackageBackend
	defaults TaskOptions
	hub      *EventBus
	notifier domain.Notifier
	logger   *zap.Logger

	mu    sync.RWMutex
	tasks map[string]*DownloadTask
	order []string
}

// NewDownloadManager creates a download manager for an initialized package
func NewDownloadManager(
	pkg *domain.Package,
	backend domain.PackageBackend,
	defaults TaskOptions,
	hub *EventBus,
	notifier domain.Notifier,
	logger *zap.Logger,
) *DownloadManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadManager{
		pkg:      pkg,
		backend:  backend,
		defaults: defaults.normalized(),
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		tasks:    make(map[string]*DownloadTask),
	}
}

// Defaults returns the task options used when a caller passes zero limits
func (dm *DownloadManager) Defaults() TaskOptions {
	return dm.defaults
}

// Create freezes the bundles of the selection that are not cached yet into a new task.
// Non-positive limits fall back to the manager defaults.
func (dm *DownloadManager) Create(selection domain.Selection, maxConcurrent, maxRetries int) (*DownloadTask, error) {
	opts := dm.defaults
	if maxConcurrent > 0 {
		opts.MaxConcurrent = maxConcurrent
	}
	if maxRetries >= 0 {
		opts.MaxRetries = maxRetries
	}

	task, err := dm.newTask(selection, opts)
	if err != nil {
		return nil, err
	}

	if dm.hub != nil {
		task.Subscribe(dm.hub.Publish)
	}

	dm.mu.Lock()
	dm.tasks[task.ID()] = task
	dm.order = append(dm.order, task.ID())
	dm.pruneLocked()
	dm.mu.Unlock()

	dm.logger.Info("Download task created",
		zap.String("task_id", task.ID()),
		zap.String("package", dm.pkg.Name()),
		zap.String("selection", selection.String()),
		zap.Int("files", task.TotalCount()),
		zap.Int64("bytes", task.TotalBytes()))
	return task, nil
}

// newTask computes the pending file set without registering a task
func (dm *DownloadManager) newTask(selection domain.Selection, opts TaskOptions) (*DownloadTask, error) {
	if selection == nil {
		selection = domain.ByTag{}
	}
	if !dm.pkg.IsReady() {
		return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotReady, dm.pkg.Name())
	}
	manifest := dm.pkg.Manifest()
	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest of %s not loaded", domain.ErrPackageNotReady, dm.pkg.Name())
	}

	bundles, err := manifest.Select(selection)
	if err != nil {
		return nil, err
	}

	cache := dm.backend.Cache()
	pending := make([]domain.BundleEntry, 0, len(bundles))
	for _, b := range bundles {
		if !cache.Has(b) {
			pending = append(pending, b)
		}
	}

	return newDownloadTask(dm.pkg.Name(), selection, pending, opts, dm.backend, dm.notifier, dm.logger), nil
}

// DownloadSize reports how many files and bytes the selection still needs
func (dm *DownloadManager) DownloadSize(selection domain.Selection) (domain.Progress, error) {
	task, err := dm.newTask(selection, TaskOptions{MaxConcurrent: 1, MaxRetries: 1})
	if err != nil {
		return domain.Progress{}, err
	}
	return task.Progress(), nil
}

// NeedDownload reports whether any bundle of the selection is missing from the cache
func (dm *DownloadManager) NeedDownload(selection domain.Selection) (bool, error) {
	size, err := dm.DownloadSize(selection)
	if err != nil {
		return false, err
	}
	return size.TotalCount > 0, nil
}

// Download creates a task with the default limits, begins it and waits for it
func (dm *DownloadManager) Download(ctx context.Context, selection domain.Selection) (*DownloadTask, error) {
	task, err := dm.Create(selection, 0, -1)
	if err != nil {
		return nil, err
	}
	if err := task.Begin(ctx); err != nil {
		return task, err
	}
	return task, task.Wait(ctx)
}

// Task looks up a task by ID
func (dm *DownloadManager) Task(id string) (*DownloadTask, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	task, ok := dm.tasks[id]
	return task, ok
}

// Tasks returns the tracked tasks, oldest first
func (dm *DownloadManager) Tasks() []*DownloadTask {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	tasks := make([]*DownloadTask, 0, len(dm.order))
	for _, id := range dm.order {
		tasks = append(tasks, dm.tasks[id])
	}
	return tasks
}

// PauseAll pauses every running task
func (dm *DownloadManager) PauseAll() {
	for _, task := range dm.Tasks() {
		if task.State() == domain.TaskRunning {
			task.Pause()
		}
	}
}

// ResumeAll resumes every paused task
func (dm *DownloadManager) ResumeAll() {
	for _, task := range dm.Tasks() {
		if task.State() == domain.TaskPaused {
			task.Resume()
		}
	}
}

// CancelAll cancels every task that has not finished
func (dm *DownloadManager) CancelAll() {
	for _, task := range dm.Tasks() {
		if !task.State().IsTerminal() {
			task.Cancel()
		}
	}
}

// HasActiveDownloads reports whether a task is running or paused
func (dm *DownloadManager) HasActiveDownloads() bool {
	for _, task := range dm.Tasks() {
		switch task.State() {
		case domain.TaskRunning, domain.TaskPaused:
			return true
		}
	}
	return false
}

// pruneLocked drops the oldest terminal tasks beyond maxFinishedTasks
func (dm *DownloadManager) pruneLocked() {
	var finished []string
	for _, id := range dm.order {
		if dm.tasks[id].State().IsTerminal() {
			finished = append(finished, id)
		}
	}
	if len(finished) <= maxFinishedTasks {
		return
	}

	drop := make(map[string]bool)
	for _, id := range finished[:len(finished)-maxFinishedTasks] {
		drop[id] = true
		delete(dm.tasks, id)
	}
	kept := dm.order[:0]
	for _, id := range dm.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	dm.order = kept
}

// sortTasksByCreation orders snapshots from several managers
func sortTasksByCreation(snaps []TaskSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// RunOptions customizes one update run
type RunOptions struct {
	// Tags overrides every package's auto_download_tags when non-empty
	Tags []string
}

// UpdateStatus is a snapshot of the orchestrator
type UpdateStatus struct {
	State          domain.UpdateState `json:"state"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	CurrentPackage string             `json:"current_package,omitempty"`
	TaskID         string             `json:"task_id,omitempty"`
	Running        bool               `json:"running"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
}

// HotUpdateOrchestrator runs init, version, manifest and download over every
// configured package, stopping at the first failure.
type HotUpdateOrchestrator struct {
	service  *PackageService
	notifier domain.Notifier
	logger   *zap.Logger

	mu             sync.RWMutex
	state          domain.UpdateState
	errorMessage   string
	currentPackage string
	taskID         string
	running        bool
	startedAt      time.Time
	finishedAt     time.Time
}

// NewHotUpdateOrchestrator creates an idle orchestrator
func NewHotUpdateOrchestrator(service *PackageService, notifier domain.Notifier, logger *zap.Logger) *HotUpdateOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotUpdateOrchestrator{
		service:  service,
		notifier: notifier,
		logger:   logger,
		state:    domain.UpdateIdle,
	}
}

// State returns the current stage
func (o *HotUpdateOrchestrator) State() domain.UpdateState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// ErrorMessage returns the failure message of the last run
func (o *HotUpdateOrchestrator) ErrorMessage() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.errorMessage
}

// IsRunning reports whether a run is in progress
func (o *HotUpdateOrchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Status returns a snapshot of the orchestrator
func (o *HotUpdateOrchestrator) Status() UpdateStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := UpdateStatus{
		State:          o.state,
		ErrorMessage:   o.errorMessage,
		CurrentPackage: o.currentPackage,
		TaskID:         o.taskID,
		Running:        o.running,
	}
	if !o.startedAt.IsZero() {
		started := o.startedAt
		status.StartedAt = &started
	}
	if !o.finishedAt.IsZero() {
		finished := o.finishedAt
		status.FinishedAt = &finished
	}
	return status
}

// Run executes one update pass. Only one run may be in progress at a time.
func (o *HotUpdateOrchestrator) Run(ctx context.Context, opts RunOptions) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return domain.ErrRunInProgress
	}
	o.running = true
	o.state = domain.UpdateIdle
	o.errorMessage = ""
	o.currentPackage = ""
	o.taskID = ""
	o.startedAt = time.Now()
	o.finishedAt = time.Time{}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.finishedAt = time.Now()
		o.mu.Unlock()
	}()

	names := o.service.Registry().Names()
	o.logger.Info("Update run started",
		zap.Strings("packages", names),
		zap.String("play_mode", string(o.service.PlayMode())),
		zap.Strings("tags", opts.Tags))

	for _, name := range names {
		o.setStage(domain.UpdateInitPackage, name, "")
		if err := o.service.InitPackage(ctx, name); err != nil {
			return o.fail(err)
		}
	}

	if o.service.PlayMode().IsRemote() {
		for _, name := range names {
			o.setStage(domain.UpdateVersion, name, "")
			if _, err := o.service.RequestVersion(ctx, name); err != nil {
				return o.fail(err)
			}
		}

		for _, name := range names {
			o.setStage(domain.UpdateManifest, name, "")
			if err := o.service.UpdateManifest(ctx, name, ""); err != nil {
				return o.fail(err)
			}
		}

		for _, name := range names {
			if err := o.download(ctx, name, opts); err != nil {
				return o.fail(err)
			}
		}
	}

	o.setStage(domain.UpdateDone, "", "")
	o.logger.Info("Update run completed", zap.Strings("packages", names))
	if o.notifier != nil {
		o.notifier.NotifyUpdateCompleted(names)
	}
	return nil
}

func (o *HotUpdateOrchestrator) download(ctx context.Context, name string, opts RunOptions) error {
	pc, err := o.service.Profile().Package(name)
	if err != nil {
		return err
	}
	tags := opts.Tags
	if len(tags) == 0 {
		tags = pc.AutoDownloadTags
	}
	if len(tags) == 0 {
		return nil
	}

	o.setStage(domain.UpdateCreateDownloader, name, "")
	dm, err := o.service.Downloads(name)
	if err != nil {
		return err
	}
	task, err := dm.Create(domain.ByTag{Tags: tags}, 0, -1)
	if err != nil {
		return err
	}

	o.setStage(domain.UpdateDownloading, name, task.ID())
	if err := task.Begin(ctx); err != nil {
		return err
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	return nil
}

func (o *HotUpdateOrchestrator) setStage(state domain.UpdateState, pkg, taskID string) {
	o.mu.Lock()
	o.state = state
	o.currentPackage = pkg
	o.taskID = taskID
	o.mu.Unlock()

	o.logger.Info("Update stage",
		zap.String("state", string(state)),
		zap.String("package", pkg),
		zap.String("task_id", taskID))
	o.service.Events().Publish(Event{Type: EventState, Package: pkg, TaskID: taskID, State: string(state)})
}

func (o *HotUpdateOrchestrator) fail(err error) error {
	o.mu.Lock()
	o.state = domain.UpdateFailed
	if o.errorMessage == "" {
		o.errorMessage = err.Error()
	}
	pkg := o.currentPackage
	o.mu.Unlock()

	o.logger.Error("Update run failed",
		zap.String("package", pkg),
		zap.Error(err))
	o.service.Events().Publish(Event{
		Type:    EventState,
		Package: pkg,
		State:   string(domain.UpdateFailed),
		Message: err.Error(),
	})
	if o.notifier != nil {
		o.notifier.NotifyUpdateFailed(err.Error())
	}
	return err
}

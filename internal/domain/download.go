package domain

import "strings"

// TaskState represents the state of a download task
type TaskState string

const (
	TaskCreated   TaskState = "created"
	TaskRunning   TaskState = "running"
	TaskPaused    TaskState = "paused"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// IsTerminal returns true if a task in this state can never run again
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// Selection picks the bundles a download task covers: ByTag or ByPath.
type Selection interface {
	selection()
	String() string
}

// ByTag selects every bundle carrying at least one of Tags. No tags selects all bundles.
type ByTag struct {
	Tags []string
}

// ByPath selects the bundles (and dependencies) of the given asset locations, in order.
type ByPath struct {
	Paths []string
}

func (ByTag) selection()  {}
func (ByPath) selection() {}

func (s ByTag) String() string  { return "tags:" + strings.Join(s.Tags, ",") }
func (s ByPath) String() string { return "paths:" + strings.Join(s.Paths, ",") }

// Progress is a snapshot of a task's counters
type Progress struct {
	TotalCount   int   `json:"total_count"`
	CurrentCount int   `json:"current_count"`
	TotalBytes   int64 `json:"total_bytes"`
	CurrentBytes int64 `json:"current_bytes"`
}

// Ratio returns completed bytes over total bytes, 1 for empty tasks
func (p Progress) Ratio() float64 {
	if p.TotalBytes <= 0 {
		if p.TotalCount == 0 || p.CurrentCount >= p.TotalCount {
			return 1
		}
		return 0
	}
	return float64(p.CurrentBytes) / float64(p.TotalBytes)
}

// UpdateState is the hot update orchestrator's stage
type UpdateState string

const (
	UpdateIdle             UpdateState = "idle"
	UpdateInitPackage      UpdateState = "init_package"
	UpdateVersion          UpdateState = "update_version"
	UpdateManifest         UpdateState = "update_manifest"
	UpdateCreateDownloader UpdateState = "create_downloader"
	UpdateDownloading      UpdateState = "downloading"
	UpdateDone             UpdateState = "done"
	UpdateFailed           UpdateState = "failed"
)

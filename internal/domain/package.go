package domain

import (
	"fmt"
	"sync"
	"time"
)

// InitStatus represents a package's initialization state
type InitStatus string

const (
	InitUninitialized InitStatus = "uninitialized"
	InitInitializing  InitStatus = "initializing"
	InitReady         InitStatus = "ready"
	InitFailed        InitStatus = "failed"
)

// SimulateVersion is reported by packages read from a local build output
const SimulateVersion = "simulate"

// Package is the runtime handle of one named content set.
// manifestLoaded implies version is set, which implies status is ready.
// version always names the active manifest; a resolved version that is
// not loaded yet waits in pending.
type Package struct {
	name     string
	priority int

	mu       sync.RWMutex
	status   InitStatus
	version  string
	pending  string
	manifest *Manifest
	initErr  error
	initDone chan struct{}
	readyAt  time.Time
}

// PackageSnapshot is a read-only copy of a package's state
type PackageSnapshot struct {
	Name           string     `json:"name"`
	Priority       int        `json:"priority"`
	Status         InitStatus `json:"status"`
	Version        string     `json:"version,omitempty"`
	PendingVersion string     `json:"pending_version,omitempty"`
	ManifestLoaded bool       `json:"manifest_loaded"`
	BundleCount    int        `json:"bundle_count"`
	Error          string     `json:"error,omitempty"`
	ReadyAt        *time.Time `json:"ready_at,omitempty"`
}

// NewPackage creates an uninitialized package
func NewPackage(name string, priority int) *Package {
	return &Package{
		name:     name,
		priority: priority,
		status:   InitUninitialized,
	}
}

// Name returns the package name
func (p *Package) Name() string { return p.name }

// Priority returns the search priority, lower first
func (p *Package) Priority() int { return p.priority }

// Status returns the current init status
func (p *Package) Status() InitStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// IsReady returns true once initialization has succeeded
func (p *Package) IsReady() bool {
	return p.Status() == InitReady
}

// Version returns the version of the active manifest, empty if none
func (p *Package) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// PendingVersion returns a resolved version whose manifest is not active yet
func (p *Package) PendingVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending
}

// ManifestLoaded reports whether a manifest is active
func (p *Package) ManifestLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.manifest != nil
}

// Manifest returns the active manifest or nil
func (p *Package) Manifest() *Manifest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.manifest
}

// BeginInit claims the initialization of the package.
// If the package is already ready, ready is true and nothing changes.
// If another caller is initializing, wait is a channel closed when it finishes.
// Otherwise the caller owns the init and must call FinishInit.
func (p *Package) BeginInit() (ready bool, wait <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.status {
	case InitReady:
		return true, nil
	case InitInitializing:
		return false, p.initDone
	}

	p.status = InitInitializing
	p.initErr = nil
	p.initDone = make(chan struct{})
	return false, nil
}

// FinishInit records the init result and wakes waiters.
// A non-nil manifest is activated together with its version.
func (p *Package) FinishInit(manifest *Manifest, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != InitInitializing {
		return fmt.Errorf("%w: finish init from %s", ErrInvalidTransition, p.status)
	}
	defer close(p.initDone)

	if err != nil {
		p.status = InitFailed
		p.initErr = err
		return nil
	}

	p.status = InitReady
	p.readyAt = time.Now()
	if manifest != nil {
		if manifest.Version == "" {
			manifest.Version = SimulateVersion
		}
		manifest.indexes()
		p.version = manifest.Version
		p.pending = ""
		p.manifest = manifest
	}
	return nil
}

// InitErr returns the error of the last failed init
func (p *Package) InitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initErr
}

// SetVersion records a resolved remote version. The package must be ready.
// The active manifest and Version stay unchanged until SetManifest loads it.
func (p *Package) SetVersion(version string) error {
	if version == "" {
		return fmt.Errorf("empty version for package %s", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != InitReady {
		return fmt.Errorf("%w: %s is %s", ErrPackageNotReady, p.name, p.status)
	}
	if p.manifest != nil && version == p.version {
		p.pending = ""
	} else {
		p.pending = version
	}
	return nil
}

// SetManifest activates a manifest. Its version must match the pending
// version, or the active one when nothing is pending.
func (p *Package) SetManifest(manifest *Manifest) error {
	if manifest == nil {
		return fmt.Errorf("nil manifest for package %s", p.name)
	}
	if err := manifest.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != InitReady {
		return fmt.Errorf("%w: %s is %s", ErrPackageNotReady, p.name, p.status)
	}
	resolved := p.pending
	if resolved == "" {
		resolved = p.version
	}
	if resolved == "" || manifest.Version != resolved {
		return fmt.Errorf("%w: package %s resolved %q, manifest is %q",
			ErrVersionMismatch, p.name, resolved, manifest.Version)
	}
	p.version = manifest.Version
	p.pending = ""
	p.manifest = manifest
	return nil
}

// Snapshot returns a copy of the package state
func (p *Package) Snapshot() PackageSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := PackageSnapshot{
		Name:           p.name,
		Priority:       p.priority,
		Status:         p.status,
		Version:        p.version,
		PendingVersion: p.pending,
		ManifestLoaded: p.manifest != nil,
	}
	if p.manifest != nil {
		s.BundleCount = len(p.manifest.Bundles)
	}
	if p.initErr != nil {
		s.Error = p.initErr.Error()
	}
	if !p.readyAt.IsZero() {
		t := p.readyAt
		s.ReadyAt = &t
	}
	return s
}

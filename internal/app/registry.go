package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// PackageRegistry maps package names to their package, backend and download manager.
// Packages are registered once from configuration and never removed.
type PackageRegistry struct {
	mu          sync.RWMutex
	entries     map[string]*registryEntry
	order       []string
	defaultName string
}

type registryEntry struct {
	pkg    *domain.Package
	config domain.PackageConfig

	mu        sync.Mutex
	backend   domain.PackageBackend
	downloads *DownloadManager
}

// NewPackageRegistry creates an empty registry
func NewPackageRegistry() *PackageRegistry {
	return &PackageRegistry{entries: make(map[string]*registryEntry)}
}

// Register adds a package, returning the existing one if the name is taken.
// The first registered package becomes the default.
func (r *PackageRegistry) Register(config domain.PackageConfig) *domain.Package {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[config.Name]; ok {
		return e.pkg
	}
	e := &registryEntry{
		pkg:    domain.NewPackage(config.Name, config.Priority),
		config: config,
	}
	r.entries[config.Name] = e
	r.order = append(r.order, config.Name)
	if r.defaultName == "" {
		r.defaultName = config.Name
	}
	return e.pkg
}

// SetDefault changes the package used when a caller names none
func (r *PackageRegistry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrPackageNotFound, name)
	}
	r.defaultName = name
	return nil
}

// DefaultPackageName returns the default package name
func (r *PackageRegistry) DefaultPackageName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Package returns a package by name. An empty name selects the default package.
func (r *PackageRegistry) Package(name string) (*domain.Package, error) {
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return e.pkg, nil
}

// Names returns the package names in registration order
func (r *PackageRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Packages returns the packages in registration order
func (r *PackageRegistry) Packages() []*domain.Package {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkgs := make([]*domain.Package, 0, len(r.order))
	for _, name := range r.order {
		pkgs = append(pkgs, r.entries[name].pkg)
	}
	return pkgs
}

// ByPriority returns the packages ordered by priority value, lowest first, ties in registration order
func (r *PackageRegistry) ByPriority() []*domain.Package {
	pkgs := r.Packages()
	sort.SliceStable(pkgs, func(i, j int) bool {
		return pkgs[i].Priority() < pkgs[j].Priority()
	})
	return pkgs
}

// IsPackageInitialized reports whether the named package is ready
func (r *PackageRegistry) IsPackageInitialized(name string) bool {
	pkg, err := r.Package(name)
	return err == nil && pkg.IsReady()
}

// Snapshots returns a view of every package in registration order
func (r *PackageRegistry) Snapshots() []domain.PackageSnapshot {
	pkgs := r.Packages()
	snaps := make([]domain.PackageSnapshot, 0, len(pkgs))
	for _, p := range pkgs {
		snaps = append(snaps, p.Snapshot())
	}
	return snaps
}

// Close releases every opened backend
func (r *PackageRegistry) Close() error {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}
	r.mu.RUnlock()

	var result error
	for _, e := range entries {
		e.mu.Lock()
		if e.downloads != nil {
			e.downloads.CancelAll()
		}
		if e.backend != nil {
			if err := e.backend.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("package %s: %w", e.pkg.Name(), err))
			}
		}
		e.mu.Unlock()
	}
	return result
}

func (r *PackageRegistry) entry(name string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrPackageNotFound, name)
	}
	return e, nil
}

func (e *registryEntry) currentBackend() domain.PackageBackend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend
}

// replaceBackend installs a freshly initialized backend, closing the previous one
func (e *registryEntry) replaceBackend(backend domain.PackageBackend) {
	e.mu.Lock()
	old := e.backend
	e.backend = backend
	e.downloads = nil
	e.mu.Unlock()

	if old != nil && old != backend {
		old.Close()
	}
}

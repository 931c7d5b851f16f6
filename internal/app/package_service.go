package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/internal/infrastructure"
)

// BackendOpener opens the content backend of a package for a play mode
type BackendOpener interface {
	Open(ctx context.Context, pkg string, params domain.InitParameters) (domain.PackageBackend, error)
}

// PackageService drives the package lifecycle: init, version and manifest
type PackageService struct {
	config   *domain.Config
	profile  *domain.ProfileConfig
	mode     domain.PlayMode
	registry *PackageRegistry
	locator  infrastructure.RemoteLocator
	backends BackendOpener
	hub      *EventBus
	notifier domain.Notifier
	logger   *zap.Logger
}

// NewPackageService registers every package of the active profile
func NewPackageService(
	config *domain.Config,
	registry *PackageRegistry,
	backends BackendOpener,
	hub *EventBus,
	notifier domain.Notifier,
	logger *zap.Logger,
) (*PackageService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewEventBus()
	}

	profile, err := config.Profile()
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParsePlayMode(string(profile.PlayMode))
	if err != nil {
		return nil, err
	}
	if len(profile.Packages) == 0 {
		return nil, fmt.Errorf("%w: profile %q has no packages", domain.ErrConfiguration, profile.Name)
	}

	for _, pc := range profile.Packages {
		registry.Register(pc)
	}

	return &PackageService{
		config:   config,
		profile:  profile,
		mode:     mode,
		registry: registry,
		locator:  infrastructure.NewRemoteLocator(config.Project),
		backends: backends,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// PlayMode returns the play mode of the active profile
func (s *PackageService) PlayMode() domain.PlayMode {
	return s.mode
}

// Profile returns the active profile
func (s *PackageService) Profile() *domain.ProfileConfig {
	return s.profile
}

// Registry returns the package registry
func (s *PackageService) Registry() *PackageRegistry {
	return s.registry
}

// Events returns the service-wide event hub
func (s *PackageService) Events() *EventBus {
	return s.hub
}

// TaskDefaults returns the download limits of the active profile
func (s *PackageService) TaskDefaults() TaskOptions {
	return TaskOptions{
		MaxConcurrent: s.profile.MaxConcurrentDownloads,
		MaxRetries:    s.profile.MaxRetries,
		RetryDelay:    s.profile.RetryDelay,
	}
}

// InitParameters builds the play-mode parameters of a package
func (s *PackageService) InitParameters(name string) (domain.InitParameters, error) {
	e, err := s.registry.entry(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return s.initParameters(&e.config)
}

func (s *PackageService) initParameters(pc *domain.PackageConfig) (domain.InitParameters, error) {
	storage := s.config.Storage

	switch s.mode {
	case domain.PlayModeLocalSimulated:
		return domain.LocalSimulatedParameters{
			BuildOutputDir: filepath.Join(storage.SimulateDir, pc.Name),
		}, nil

	case domain.PlayModeOffline:
		if storage.BuildinURL == "" {
			return nil, fmt.Errorf("%w: storage.buildin_url is required in offline mode", domain.ErrConfiguration)
		}
		return domain.OfflineParameters{BuildinURL: storage.BuildinURL}, nil

	case domain.PlayModeHostRemote:
		endpoints, err := s.locator.Resolve(s.profile.HostServerURLFor(pc), s.profile.FallbackHostServerURLFor(pc), pc.Name)
		if err != nil {
			return nil, err
		}
		if storage.CacheDir == "" {
			return nil, fmt.Errorf("%w: storage.cache_dir is required in host-remote mode", domain.ErrConfiguration)
		}
		return domain.HostRemoteParameters{Remote: endpoints, CacheDir: storage.CacheDir}, nil

	case domain.PlayModeWebRemote:
		endpoints, err := s.locator.Resolve(s.profile.HostServerURLFor(pc), s.profile.FallbackHostServerURLFor(pc), pc.Name)
		if err != nil {
			return nil, err
		}
		return domain.WebRemoteParameters{Remote: endpoints}, nil
	}

	return nil, fmt.Errorf("%w: unsupported play mode %q", domain.ErrConfiguration, s.mode)
}

// InitPackage initializes a package once. Concurrent callers wait for the same
// initialization; a ready package returns immediately without any I/O.
func (s *PackageService) InitPackage(ctx context.Context, name string) error {
	e, err := s.registry.entry(name)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	pkg := e.pkg

	ready, wait := pkg.BeginInit()
	if ready {
		return nil
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		if pkg.IsReady() {
			return nil
		}
		return fmt.Errorf("failed to initialize package %s: %w", pkg.Name(), pkg.InitErr())
	}

	s.logger.Info("Initializing package",
		zap.String("package", pkg.Name()),
		zap.String("play_mode", string(s.mode)))

	manifest, backend, err := s.openBackend(ctx, &e.config)
	if err != nil {
		pkg.FinishInit(nil, err)
		s.logger.Error("Package initialization failed",
			zap.String("package", pkg.Name()),
			zap.Error(err))
		return fmt.Errorf("failed to initialize package %s: %w", pkg.Name(), err)
	}

	e.replaceBackend(backend)
	if err := pkg.FinishInit(manifest, nil); err != nil {
		return err
	}

	s.logger.Info("Package initialized",
		zap.String("package", pkg.Name()),
		zap.String("version", pkg.Version()),
		zap.Bool("manifest_loaded", pkg.ManifestLoaded()))
	return nil
}

func (s *PackageService) openBackend(ctx context.Context, pc *domain.PackageConfig) (*domain.Manifest, domain.PackageBackend, error) {
	params, err := s.initParameters(pc)
	if err != nil {
		return nil, nil, err
	}
	if s.backends == nil {
		return nil, nil, fmt.Errorf("%w: no backend opener configured", domain.ErrConfiguration)
	}

	backend, err := s.backends.Open(ctx, pc.Name, params)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := backend.Initialize(ctx)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return manifest, backend, nil
}

// IsPackageInitialized reports whether the named package is ready
func (s *PackageService) IsPackageInitialized(name string) bool {
	return s.registry.IsPackageInitialized(name)
}

// Package returns the named package, or the default package for an empty name
func (s *PackageService) Package(name string) (*domain.Package, error) {
	return s.registry.Package(name)
}

// RequestVersion asks the backend for the latest version and records it on the package
func (s *PackageService) RequestVersion(ctx context.Context, name string) (string, error) {
	e, backend, err := s.readyEntry(name)
	if err != nil {
		return "", err
	}

	version, err := backend.RequestVersion(ctx)
	if err != nil {
		s.logger.Warn("Version request failed",
			zap.String("package", e.pkg.Name()),
			zap.Error(err))
		return "", fmt.Errorf("failed to request version of %s: %w", e.pkg.Name(), err)
	}
	if err := e.pkg.SetVersion(version); err != nil {
		return "", err
	}

	s.logger.Info("Package version updated",
		zap.String("package", e.pkg.Name()),
		zap.String("version", version))
	return version, nil
}

// UpdateManifest loads the manifest of a version. An empty version uses the
// pending version, then the active one, requesting one first if none is known.
func (s *PackageService) UpdateManifest(ctx context.Context, name, version string) error {
	e, backend, err := s.readyEntry(name)
	if err != nil {
		return err
	}
	pkg := e.pkg

	if version == "" {
		version = pkg.PendingVersion()
	}
	if version == "" {
		version = pkg.Version()
	}
	if version == "" {
		if version, err = s.RequestVersion(ctx, pkg.Name()); err != nil {
			return err
		}
	}

	manifest, err := backend.FetchManifest(ctx, version)
	if err != nil {
		s.logger.Warn("Manifest update failed",
			zap.String("package", pkg.Name()),
			zap.String("version", version),
			zap.Error(err))
		return fmt.Errorf("failed to update manifest of %s: %w", pkg.Name(), err)
	}

	if manifest.Version != version {
		return fmt.Errorf("%w: requested %s of %s, manifest is %s",
			domain.ErrVersionMismatch, version, pkg.Name(), manifest.Version)
	}
	if err := pkg.SetVersion(version); err != nil {
		return err
	}
	if err := pkg.SetManifest(manifest); err != nil {
		return err
	}

	s.logger.Info("Package manifest updated",
		zap.String("package", pkg.Name()),
		zap.String("version", version),
		zap.Int("bundles", len(manifest.Bundles)))
	return nil
}

// Downloads returns the download manager of an initialized package
func (s *PackageService) Downloads(name string) (*DownloadManager, error) {
	e, err := s.registry.entry(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil || !e.pkg.IsReady() {
		return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotReady, e.pkg.Name())
	}
	if e.downloads == nil {
		e.downloads = NewDownloadManager(e.pkg, e.backend, s.TaskDefaults(), s.hub, s.notifier, s.logger)
	}
	return e.downloads, nil
}

// Cache returns the cache store of an initialized package
func (s *PackageService) Cache(name string) (domain.CacheStore, error) {
	_, backend, err := s.readyEntry(name)
	if err != nil {
		return nil, err
	}
	return backend.Cache(), nil
}

// FindTask looks a task up across every package
func (s *PackageService) FindTask(id string) (*DownloadTask, error) {
	for _, name := range s.registry.Names() {
		dm, err := s.Downloads(name)
		if err != nil {
			continue
		}
		if task, ok := dm.Task(id); ok {
			return task, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
}

// TaskSnapshots lists the tasks of every initialized package, oldest first
func (s *PackageService) TaskSnapshots() []TaskSnapshot {
	var snaps []TaskSnapshot
	for _, name := range s.registry.Names() {
		dm, err := s.Downloads(name)
		if err != nil {
			continue
		}
		for _, task := range dm.Tasks() {
			snaps = append(snaps, task.Snapshot())
		}
	}
	sortTasksByCreation(snaps)
	return snaps
}

// HasActiveDownloads reports whether any package has a running or paused task
func (s *PackageService) HasActiveDownloads() bool {
	for _, name := range s.registry.Names() {
		if dm, err := s.Downloads(name); err == nil && dm.HasActiveDownloads() {
			return true
		}
	}
	return false
}

// Close cancels outstanding tasks and releases every backend
func (s *PackageService) Close() error {
	return s.registry.Close()
}

func (s *PackageService) readyEntry(name string) (*registryEntry, domain.PackageBackend, error) {
	e, err := s.registry.entry(name)
	if err != nil {
		return nil, nil, err
	}
	backend := e.currentBackend()
	if backend == nil || !e.pkg.IsReady() {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrPackageNotReady, e.pkg.Name())
	}
	return e, backend, nil
}

package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// ContentHandle refers to a loadable asset whose bundles are all cached
type ContentHandle struct {
	Package      string               `json:"package"`
	Key          string               `json:"key"`
	Version      string               `json:"version"`
	Bundle       domain.BundleEntry   `json:"bundle"`
	Dependencies []domain.BundleEntry `json:"dependencies,omitempty"`

	cache domain.CacheStore
}

// Open reads the bundle holding the asset
func (h *ContentHandle) Open() (io.ReadCloser, error) {
	return h.cache.Open(h.Bundle)
}

// ContentLoader resolves asset keys against package manifests and caches
type ContentLoader struct {
	service *PackageService
	logger  *zap.Logger
}

// NewContentLoader creates a loader over the service's packages
func NewContentLoader(service *PackageService, logger *zap.Logger) *ContentLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentLoader{service: service, logger: logger}
}

// CheckExists reports whether a key is part of a manifest. It never touches the cache.
// An empty package name searches every queryable package by priority.
func (l *ContentLoader) CheckExists(key, packageName string) (bool, error) {
	pkgs, err := l.candidates(packageName)
	if err != nil {
		return false, err
	}
	for _, pkg := range pkgs {
		if pkg.Manifest().HasLocation(key) {
			return true, nil
		}
	}
	return false, nil
}

// LoadByKey returns a handle to a cached asset. Missing bundles are downloaded
// first when auto_download_on_load is enabled, otherwise ErrNotCached is returned.
func (l *ContentLoader) LoadByKey(ctx context.Context, key, packageName string) (*ContentHandle, error) {
	pkgs, err := l.candidates(packageName)
	if err != nil {
		return nil, err
	}

	var pkg *domain.Package
	for _, p := range pkgs {
		if p.Manifest().HasLocation(key) {
			pkg = p
			break
		}
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, key)
	}

	manifest := pkg.Manifest()
	bundles, err := manifest.BundlesForLocation(key)
	if err != nil {
		return nil, err
	}
	cache, err := l.service.Cache(pkg.Name())
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, b := range bundles {
		if !cache.Has(b) {
			missing = append(missing, b.FileName)
		}
	}

	if len(missing) > 0 {
		if !l.service.Profile().AutoDownloadOnLoad {
			return nil, fmt.Errorf("%w: %s needs %v", domain.ErrNotCached, key, missing)
		}

		l.logger.Info("Downloading missing bundles for asset",
			zap.String("package", pkg.Name()),
			zap.String("key", key),
			zap.Strings("files", missing))
		dm, err := l.service.Downloads(pkg.Name())
		if err != nil {
			return nil, err
		}
		if _, err := dm.Download(ctx, domain.ByPath{Paths: []string{key}}); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", key, err)
		}
	}

	return &ContentHandle{
		Package:      pkg.Name(),
		Key:          key,
		Version:      manifest.Version,
		Bundle:       bundles[0],
		Dependencies: bundles[1:],
		cache:        cache,
	}, nil
}

// candidates returns the packages a key is looked up in, all with a loaded manifest
func (l *ContentLoader) candidates(packageName string) ([]*domain.Package, error) {
	if packageName != "" {
		pkg, err := l.service.Package(packageName)
		if err != nil {
			return nil, err
		}
		if !pkg.ManifestLoaded() {
			return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotReady, pkg.Name())
		}
		return []*domain.Package{pkg}, nil
	}

	var pkgs []*domain.Package
	for _, pkg := range l.service.Registry().ByPriority() {
		if pkg.ManifestLoaded() {
			pkgs = append(pkgs, pkg)
		}
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("%w: no package has a loaded manifest", domain.ErrPackageNotReady)
	}
	return pkgs, nil
}

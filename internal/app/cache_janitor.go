package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// CacheJanitor removes cached bundles. Cleanup holds the cache's exclusive
// lock, so it never overlaps a running download of the same package.
type CacheJanitor struct {
	service *PackageService
	logger  *zap.Logger
}

// NewCacheJanitor creates a janitor over the service's packages
func NewCacheJanitor(service *PackageService, logger *zap.Logger) *CacheJanitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheJanitor{service: service, logger: logger}
}

// ClearUnused removes cached files the current manifest does not list.
// An empty name selects the default package.
func (j *CacheJanitor) ClearUnused(ctx context.Context, name string) (removed []string, err error) {
	pkg, err := j.service.Package(name)
	if err != nil {
		return nil, err
	}
	manifest := pkg.Manifest()
	if manifest == nil {
		return nil, fmt.Errorf("%w: manifest of %s not loaded", domain.ErrPackageNotReady, pkg.Name())
	}
	cache, err := j.service.Cache(pkg.Name())
	if err != nil {
		return nil, err
	}
	if cache.ReadOnly() {
		return nil, nil
	}

	unlock, err := cache.LockExclusive(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	names, err := cache.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache of %s: %w", pkg.Name(), err)
	}

	keep := manifest.FileNames()
	var result error
	for _, f := range names {
		if keep[f] {
			continue
		}
		if err := cache.Remove(f); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", f, err))
			continue
		}
		removed = append(removed, f)
	}

	j.logger.Info("Unused cache cleared",
		zap.String("package", pkg.Name()),
		zap.Int("removed", len(removed)),
		zap.Int("kept", len(names)-len(removed)))
	return removed, result
}

// ClearAll removes every cached file of a package. An empty name selects the default package.
func (j *CacheJanitor) ClearAll(ctx context.Context, name string) error {
	pkg, err := j.service.Package(name)
	if err != nil {
		return err
	}
	cache, err := j.service.Cache(pkg.Name())
	if err != nil {
		return err
	}
	if cache.ReadOnly() {
		return nil
	}

	unlock, err := cache.LockExclusive(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := cache.RemoveAll(); err != nil {
		return fmt.Errorf("failed to clear cache of %s: %w", pkg.Name(), err)
	}
	j.logger.Info("Cache cleared", zap.String("package", pkg.Name()))
	return nil
}

// CacheInfo reports the number and total size of a package's cached files
func (j *CacheJanitor) CacheInfo(name string) (*domain.CacheInfo, error) {
	pkg, err := j.service.Package(name)
	if err != nil {
		return nil, err
	}
	cache, err := j.service.Cache(pkg.Name())
	if err != nil {
		return nil, err
	}
	info, err := cache.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache info of %s: %w", pkg.Name(), err)
	}
	info.Package = pkg.Name()
	return info, nil
}

package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yourusername/hotsync-go/internal/domain"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BuildReportFileName is the YAML report written next to a package's build output
func BuildReportFileName(pkg string) string {
	return fmt.Sprintf("BuildReport_%s.yaml", pkg)
}

// localBackend serves a package entirely from a bucket: no network, no downloads
type localBackend struct {
	pkg      string
	store    *BucketStore
	manifest *domain.Manifest
	load     func(ctx context.Context) (*domain.Manifest, error)
}

func (b *localBackend) Initialize(ctx context.Context) (*domain.Manifest, error) {
	manifest, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	b.manifest = manifest
	return manifest, nil
}

// RequestVersion returns the local manifest version without any round trip
func (b *localBackend) RequestVersion(ctx context.Context) (string, error) {
	if b.manifest == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrPackageNotReady, b.pkg)
	}
	return b.manifest.Version, nil
}

func (b *localBackend) FetchManifest(ctx context.Context, version string) (*domain.Manifest, error) {
	if b.manifest == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPackageNotReady, b.pkg)
	}
	if version != b.manifest.Version {
		return nil, fmt.Errorf("%w: local content is %q, requested %q",
			domain.ErrVersionMismatch, b.manifest.Version, version)
	}
	return b.manifest, nil
}

func (b *localBackend) OpenBundle(ctx context.Context, bundle domain.BundleEntry) (io.ReadCloser, error) {
	return b.store.Open(bundle)
}

func (b *localBackend) Cache() domain.CacheStore {
	return b.store
}

func (b *localBackend) Close() error {
	return b.store.Close()
}

// NewOfflineBackend serves a package from a pre-bundled bucket.
// A missing or corrupt version/manifest pair fails initialization.
func NewOfflineBackend(pkg string, bucket *blob.Bucket) domain.PackageBackend {
	b := &localBackend{pkg: pkg, store: NewBucketStore(bucket)}
	b.load = func(ctx context.Context) (*domain.Manifest, error) {
		data, ok, err := readBucketFile(ctx, bucket, VersionFileName(pkg))
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in version: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: built-in version file missing for %s", domain.ErrCorruptManifest, pkg)
		}
		version := strings.TrimSpace(string(data))

		data, ok, err = readBucketFile(ctx, bucket, ManifestFileName(pkg, version))
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in manifest: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: built-in manifest missing for %s %s", domain.ErrCorruptManifest, pkg, version)
		}

		var manifest domain.Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptManifest, err)
		}
		if err := checkManifest(&manifest, pkg, version); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCorruptManifest, err)
		}
		return &manifest, nil
	}
	return b
}

// NewSimulateBackend serves a package straight from its build output directory.
// A missing directory or unreadable build report leaves the package empty instead of failing.
func NewSimulateBackend(pkg, dir string, logger *zap.Logger) (domain.PackageBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var bucket *blob.Bucket
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		bucket, err = fileblob.OpenBucket(dir, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open build output: %w", err)
		}
	} else {
		logger.Warn("Build output not found, package will be empty",
			zap.String("package", pkg),
			zap.String("dir", dir))
		bucket = memblob.OpenBucket(nil)
	}

	b := &localBackend{pkg: pkg, store: NewBucketStore(bucket)}
	b.load = func(ctx context.Context) (*domain.Manifest, error) {
		empty := &domain.Manifest{Package: pkg, Version: domain.SimulateVersion}
		if err := empty.Validate(); err != nil {
			return nil, err
		}

		data, ok, err := readBucketFile(ctx, bucket, BuildReportFileName(pkg))
		if err != nil || !ok {
			logger.Warn("Build report unavailable, nothing to initialize",
				zap.String("package", pkg),
				zap.Error(err))
			return empty, nil
		}

		var manifest domain.Manifest
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			logger.Warn("Malformed build report, nothing to initialize",
				zap.String("package", pkg),
				zap.Error(err))
			return empty, nil
		}
		if manifest.Version == "" {
			manifest.Version = domain.SimulateVersion
		}
		manifest.Package = pkg
		if err := manifest.Validate(); err != nil {
			logger.Warn("Inconsistent build report, nothing to initialize",
				zap.String("package", pkg),
				zap.Error(err))
			return empty, nil
		}
		return &manifest, nil
	}
	return b, nil
}

package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/yourusername/hotsync-go/internal/domain"
	"go.uber.org/zap"
)

// remoteBackend syncs a package from a content server into a cache store
type remoteBackend struct {
	remote *HTTPRemote
	cache  domain.CacheStore
}

// NewRemoteBackend combines an HTTP remote with a cache store
func NewRemoteBackend(remote *HTTPRemote, cache domain.CacheStore) domain.PackageBackend {
	return &remoteBackend{remote: remote, cache: cache}
}

// Initialize does no network work; the version and manifest stages follow
func (b *remoteBackend) Initialize(ctx context.Context) (*domain.Manifest, error) {
	return nil, nil
}

func (b *remoteBackend) RequestVersion(ctx context.Context) (string, error) {
	return b.remote.RequestVersion(ctx)
}

func (b *remoteBackend) FetchManifest(ctx context.Context, version string) (*domain.Manifest, error) {
	return b.remote.FetchManifest(ctx, version)
}

func (b *remoteBackend) OpenBundle(ctx context.Context, bundle domain.BundleEntry) (io.ReadCloser, error) {
	return b.remote.OpenBundle(ctx, bundle)
}

func (b *remoteBackend) Cache() domain.CacheStore {
	return b.cache
}

func (b *remoteBackend) Close() error {
	return nil
}

// BackendFactory opens the backend matching a package's init parameters
type BackendFactory struct {
	index  domain.CacheIndexRepository
	client *http.Client
	logger *zap.Logger
}

// NewBackendFactory creates a factory. index backs host-remote disk caches.
func NewBackendFactory(index domain.CacheIndexRepository, client *http.Client, logger *zap.Logger) *BackendFactory {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackendFactory{index: index, client: client, logger: logger}
}

// Open builds the backend for one package
func (f *BackendFactory) Open(ctx context.Context, pkg string, params domain.InitParameters) (domain.PackageBackend, error) {
	log := f.logger.With(zap.String("package", pkg), zap.String("mode", string(params.Mode())))

	switch p := params.(type) {
	case domain.LocalSimulatedParameters:
		return NewSimulateBackend(pkg, p.BuildOutputDir, log)

	case domain.OfflineParameters:
		bucket, err := OpenBucket(ctx, p.BuildinURL, pkg)
		if err != nil {
			return nil, err
		}
		return NewOfflineBackend(pkg, bucket), nil

	case domain.HostRemoteParameters:
		if f.index == nil {
			return nil, fmt.Errorf("%w: host-remote mode needs a cache index", domain.ErrConfiguration)
		}
		cache, err := NewDiskCache(filepath.Clean(p.CacheDir), pkg, f.index, log)
		if err != nil {
			return nil, err
		}
		remote := NewHTTPRemote(pkg, p.Remote, log, WithHTTPClient(f.client))
		return NewRemoteBackend(remote, cache), nil

	case domain.WebRemoteParameters:
		remote := NewHTTPRemote(pkg, p.Remote, log,
			WithHTTPClient(f.client),
			WithHeader("Cache-Control", "no-cache"))
		return NewRemoteBackend(remote, NewMemoryCache()), nil

	default:
		return nil, fmt.Errorf("%w: unsupported init parameters %T", domain.ErrConfiguration, params)
	}
}

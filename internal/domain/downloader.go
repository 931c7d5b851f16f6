package domain

import (
	"context"
	"io"
)

// PackageBackend is the play-mode specific source of a package's content
type PackageBackend interface {
	// Initialize prepares the backend. Local modes return their manifest,
	// remote modes return nil and wait for the manifest stage.
	Initialize(ctx context.Context) (*Manifest, error)

	// RequestVersion performs one round trip for the latest version
	RequestVersion(ctx context.Context) (string, error)

	// FetchManifest loads the manifest of a specific version
	FetchManifest(ctx context.Context, version string) (*Manifest, error)

	// OpenBundle streams a bundle from its source
	OpenBundle(ctx context.Context, bundle BundleEntry) (io.ReadCloser, error)

	// Cache returns where downloaded bundles are kept
	Cache() CacheStore

	Close() error
}

// CacheStore holds the bundle files of one package
type CacheStore interface {
	// Has reports whether the bundle is cached with the expected size and hash
	Has(bundle BundleEntry) bool
	// Write stores a bundle, verifying size and hash, and commits atomically
	Write(ctx context.Context, bundle BundleEntry, r io.Reader) error
	Open(bundle BundleEntry) (io.ReadCloser, error)
	// List returns the cached file names
	List() ([]string, error)
	Remove(fileName string) error
	RemoveAll() error
	// ReadOnly stores are pre-bundled content that is never written or cleared
	ReadOnly() bool
	Info() (*CacheInfo, error)

	// LockShared is held by running downloads, LockExclusive by cache cleanup
	LockShared(ctx context.Context) (unlock func(), err error)
	LockExclusive(ctx context.Context) (unlock func(), err error)
}

// Notifier is told about finished update runs
type Notifier interface {
	NotifyUpdateCompleted(packages []string)
	NotifyUpdateFailed(message string)
	NotifyDownloadFailed(pkg, file string, err error)
}

package infrastructure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"github.com/yourusername/hotsync-go/internal/domain"
	"go.uber.org/zap"
)

const (
	lockFileName  = ".lock"
	tempSuffix    = ".part"
	lockRetryWait = 50 * time.Millisecond
)

// DiskCache stores a package's bundles under one directory and records them in the cache index
type DiskCache struct {
	pkg    string
	dir    string
	index  domain.CacheIndexRepository
	logger *zap.Logger
}

// NewDiskCache creates the package cache directory
func NewDiskCache(baseDir, pkg string, index domain.CacheIndexRepository, logger *zap.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Join(baseDir, pkg)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{pkg: pkg, dir: dir, index: index, logger: logger}, nil
}

// Dir returns the cache directory
func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) path(fileName string) string {
	return filepath.Join(c.dir, cacheName(fileName))
}

// cacheName flattens a bundle file name into one directory entry.
// Separators are escaped, so "ui/panel.bundle" and "hud/panel.bundle" stay
// apart, and a leading dot is escaped so cached files never look like the
// lock or temp files.
func cacheName(fileName string) string {
	name := url.PathEscape(fileName)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

// fileNameOf reverses cacheName
func fileNameOf(name string) (string, bool) {
	fileName, err := url.PathUnescape(name)
	return fileName, err == nil
}

// Has checks the index record and the file on disk
func (c *DiskCache) Has(bundle domain.BundleEntry) bool {
	record, err := c.index.Find(c.pkg, bundle.FileName)
	if err != nil || record == nil {
		return false
	}
	if record.Size != bundle.Size || (bundle.Hash != "" && !strings.EqualFold(record.Hash, bundle.Hash)) {
		return false
	}
	info, err := os.Stat(c.path(bundle.FileName))
	return err == nil && info.Size() == bundle.Size
}

// Write streams into a temp file, verifies it and renames it into place
func (c *DiskCache) Write(ctx context.Context, bundle domain.BundleEntry, r io.Reader) error {
	target := c.path(bundle.FileName)
	tmp, err := os.CreateTemp(c.dir, "."+cacheName(bundle.FileName)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), &contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", bundle.FileName, err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if err := verifyBundle(bundle, n, sum); err != nil {
		return err
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to commit %s: %w", bundle.FileName, err)
	}
	committed = true

	if err := c.index.Upsert(&domain.CacheRecord{
		Package:  c.pkg,
		FileName: bundle.FileName,
		Hash:     sum,
		Size:     n,
	}); err != nil {
		return fmt.Errorf("failed to index %s: %w", bundle.FileName, err)
	}
	return nil
}

// Open opens a cached bundle for reading
func (c *DiskCache) Open(bundle domain.BundleEntry) (io.ReadCloser, error) {
	f, err := os.Open(c.path(bundle.FileName))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotCached, bundle.FileName)
	}
	return f, err
}

// List returns the bundle file names present in the directory
func (c *DiskCache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		fileName, ok := fileNameOf(name)
		if !ok {
			c.logger.Debug("Skipping foreign file in cache",
				zap.String("package", c.pkg),
				zap.String("file", name))
			continue
		}
		names = append(names, fileName)
	}
	return names, nil
}

// Remove deletes one cached file and its index record
func (c *DiskCache) Remove(fileName string) error {
	var result error
	if err := os.Remove(c.path(fileName)); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	if err := c.index.Delete(c.pkg, fileName); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// RemoveAll deletes every cached file of the package, including leftovers of interrupted writes
func (c *DiskCache) RemoveAll() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	var result error
	for _, e := range entries {
		if e.Name() == lockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := c.index.DeleteAll(c.pkg); err != nil {
		result = multierror.Append(result, err)
	}

	c.logger.Info("Cache cleared",
		zap.String("package", c.pkg),
		zap.Int("entries", len(entries)))
	return result
}

// ReadOnly returns false, downloads land here
func (c *DiskCache) ReadOnly() bool {
	return false
}

// Info reports the indexed file count and size
func (c *DiskCache) Info() (*domain.CacheInfo, error) {
	return c.index.Info(c.pkg)
}

// LockShared takes a shared file lock on the cache directory
func (c *DiskCache) LockShared(ctx context.Context) (func(), error) {
	return c.lock(ctx, false)
}

// LockExclusive takes an exclusive file lock on the cache directory
func (c *DiskCache) LockExclusive(ctx context.Context) (func(), error) {
	return c.lock(ctx, true)
}

func (c *DiskCache) lock(ctx context.Context, exclusive bool) (func(), error) {
	fl := flock.New(filepath.Join(c.dir, lockFileName))

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryWait)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryWait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache %s: %w", c.pkg, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock cache %s", c.pkg)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			c.logger.Warn("Failed to unlock cache", zap.String("package", c.pkg), zap.Error(err))
		}
	}, nil
}

// verifyBundle compares a written file against the manifest entry
func verifyBundle(bundle domain.BundleEntry, size int64, sum string) error {
	if size != bundle.Size {
		return fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", bundle.FileName, bundle.Size, size)
	}
	if bundle.Hash != "" && !strings.EqualFold(sum, bundle.Hash) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", bundle.FileName, bundle.Hash, sum)
	}
	return nil
}

// contextReader stops a copy once the context is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

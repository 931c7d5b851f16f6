package infrastructure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// MemoryCache keeps bundles in process memory. Used by web-remote packages.
type MemoryCache struct {
	mu    sync.RWMutex
	files map[string]memoryFile

	gate sync.RWMutex // shared by downloads, exclusive for cleanup
}

type memoryFile struct {
	data []byte
	hash string
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{files: make(map[string]memoryFile)}
}

// Has reports whether the bundle is held with matching size and hash
func (c *MemoryCache) Has(bundle domain.BundleEntry) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[bundle.FileName]
	if !ok || int64(len(f.data)) != bundle.Size {
		return false
	}
	return bundle.Hash == "" || strings.EqualFold(f.hash, bundle.Hash)
}

// Write reads the whole bundle, verifies it and stores it
func (c *MemoryCache) Write(ctx context.Context, bundle domain.BundleEntry, r io.Reader) error {
	data, err := io.ReadAll(&contextReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", bundle.FileName, err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := verifyBundle(bundle, int64(len(data)), hash); err != nil {
		return err
	}

	c.mu.Lock()
	c.files[bundle.FileName] = memoryFile{data: data, hash: hash}
	c.mu.Unlock()
	return nil
}

// Open returns a reader over a stored bundle
func (c *MemoryCache) Open(bundle domain.BundleEntry) (io.ReadCloser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[bundle.FileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotCached, bundle.FileName)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// List returns stored file names, sorted
func (c *MemoryCache) List() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Remove drops one file
func (c *MemoryCache) Remove(fileName string) error {
	c.mu.Lock()
	delete(c.files, fileName)
	c.mu.Unlock()
	return nil
}

// RemoveAll drops every file
func (c *MemoryCache) RemoveAll() error {
	c.mu.Lock()
	c.files = make(map[string]memoryFile)
	c.mu.Unlock()
	return nil
}

// ReadOnly returns false
func (c *MemoryCache) ReadOnly() bool {
	return false
}

// Info reports the number and total size of held files
func (c *MemoryCache) Info() (*domain.CacheInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := &domain.CacheInfo{FileCount: int64(len(c.files))}
	for _, f := range c.files {
		info.TotalSize += int64(len(f.data))
	}
	return info, nil
}

// LockShared takes the cache gate for reading
func (c *MemoryCache) LockShared(ctx context.Context) (func(), error) {
	return c.acquire(ctx, c.gate.RLock, c.gate.RUnlock)
}

// LockExclusive takes the cache gate for writing
func (c *MemoryCache) LockExclusive(ctx context.Context) (func(), error) {
	return c.acquire(ctx, c.gate.Lock, c.gate.Unlock)
}

func (c *MemoryCache) acquire(ctx context.Context, lock, unlock func()) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return unlock, nil
	case <-ctx.Done():
		// release once the pending acquisition lands
		go func() {
			<-acquired
			unlock()
		}()
		return nil, ctx.Err()
	}
}

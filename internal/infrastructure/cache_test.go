package infrastructure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/hotsync-go/internal/domain"
)

func bundleFor(name, content string) domain.BundleEntry {
	sum := sha256.Sum256([]byte(content))
	return domain.BundleEntry{
		Name:     name,
		FileName: name + ".bundle",
		Size:     int64(len(content)),
		Hash:     hex.EncodeToString(sum[:]),
	}
}

func setupDiskCache(t *testing.T) *DiskCache {
	t.Helper()
	index, cleanup := setupTestIndex(t)
	t.Cleanup(cleanup)

	cache, err := NewDiskCache(t.TempDir(), "Main", index, nil)
	require.NoError(t, err)
	return cache
}

func TestDiskCache_WriteVerifiesAndIndexes(t *testing.T) {
	cache := setupDiskCache(t)
	bundle := bundleFor("ui", "hello bundle")

	assert.False(t, cache.Has(bundle))
	require.NoError(t, cache.Write(context.Background(), bundle, strings.NewReader("hello bundle")))
	assert.True(t, cache.Has(bundle))

	r, err := cache.Open(bundle)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello bundle", string(data))

	names, err := cache.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"ui.bundle"}, names)

	// a newer manifest entry with another hash is not satisfied by the old file
	changed := bundleFor("ui", "hello bundlf")
	assert.False(t, cache.Has(changed))
}

func TestDiskCache_RejectsCorruptContent(t *testing.T) {
	cache := setupDiskCache(t)
	bundle := bundleFor("ui", "expected")

	err := cache.Write(context.Background(), bundle, strings.NewReader("tampered"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	err = cache.Write(context.Background(), bundle, strings.NewReader("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")

	assert.False(t, cache.Has(bundle))
	names, err := cache.List()
	require.NoError(t, err)
	assert.Empty(t, names, "temp files are cleaned up")
}

func TestDiskCache_HasRequiresFileOnDisk(t *testing.T) {
	cache := setupDiskCache(t)
	bundle := bundleFor("ui", "content")
	require.NoError(t, cache.Write(context.Background(), bundle, strings.NewReader("content")))

	require.NoError(t, os.Remove(filepath.Join(cache.Dir(), bundle.FileName)))
	assert.False(t, cache.Has(bundle))

	_, err := cache.Open(bundle)
	assert.True(t, errors.Is(err, domain.ErrNotCached))
}

func TestDiskCache_RemoveAndRemoveAll(t *testing.T) {
	cache := setupDiskCache(t)
	a := bundleFor("a", "aaa")
	b := bundleFor("b", "bbbb")
	require.NoError(t, cache.Write(context.Background(), a, strings.NewReader("aaa")))
	require.NoError(t, cache.Write(context.Background(), b, strings.NewReader("bbbb")))

	require.NoError(t, cache.Remove(a.FileName))
	assert.False(t, cache.Has(a))
	assert.True(t, cache.Has(b))
	require.NoError(t, cache.Remove(a.FileName), "removing twice is fine")

	require.NoError(t, cache.RemoveAll())
	assert.False(t, cache.Has(b))
	names, err := cache.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	require.NoError(t, cache.RemoveAll())
}

func TestDiskCache_NestedFileNamesStayDistinct(t *testing.T) {
	cache := setupDiskCache(t)
	ctx := context.Background()

	ui := bundleFor("ui", "ui panel")
	ui.FileName = "ui/panel.bundle"
	hud := bundleFor("hud", "hud panel!")
	hud.FileName = "hud/panel.bundle"
	hidden := bundleFor("hidden", "dot")
	hidden.FileName = ".lock"

	require.NoError(t, cache.Write(ctx, ui, strings.NewReader("ui panel")))
	require.NoError(t, cache.Write(ctx, hud, strings.NewReader("hud panel!")))
	require.NoError(t, cache.Write(ctx, hidden, strings.NewReader("dot")))
	assert.True(t, cache.Has(ui))
	assert.True(t, cache.Has(hud))
	assert.True(t, cache.Has(hidden))

	names, err := cache.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ui/panel.bundle", "hud/panel.bundle", ".lock"}, names)

	entries, err := os.ReadDir(cache.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.IsDir(), "nested names do not create directories")
	}

	require.NoError(t, cache.Remove("ui/panel.bundle"))
	assert.False(t, cache.Has(ui))
	assert.True(t, cache.Has(hud))
	record, err := cache.index.Find("Main", "ui/panel.bundle")
	require.NoError(t, err)
	assert.Nil(t, record)

	r, err := cache.Open(hud)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "hud panel!", string(data))
}

func TestDiskCache_ExclusiveLockWaitsForShared(t *testing.T) {
	cache := setupDiskCache(t)

	unlockA, err := cache.LockShared(context.Background())
	require.NoError(t, err)
	unlockB, err := cache.LockShared(context.Background())
	require.NoError(t, err, "shared locks coexist")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = cache.LockExclusive(ctx)
	assert.Error(t, err, "exclusive lock must wait for shared holders")

	unlockA()
	unlockB()

	unlock, err := cache.LockExclusive(context.Background())
	require.NoError(t, err)
	unlock()
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	bundle := bundleFor("ui", "payload")

	assert.False(t, cache.Has(bundle))
	require.Error(t, cache.Write(context.Background(), bundle, strings.NewReader("payloaX")))
	require.NoError(t, cache.Write(context.Background(), bundle, strings.NewReader("payload")))
	assert.True(t, cache.Has(bundle))

	r, err := cache.Open(bundle)
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "payload", string(data))

	names, _ := cache.List()
	assert.Equal(t, []string{"ui.bundle"}, names)

	require.NoError(t, cache.RemoveAll())
	assert.False(t, cache.Has(bundle))
	_, err = cache.Open(bundle)
	assert.True(t, errors.Is(err, domain.ErrNotCached))
}

func TestMemoryCache_LockRespectsContext(t *testing.T) {
	cache := NewMemoryCache()
	unlock, err := cache.LockShared(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = cache.LockExclusive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlockX, err := cache.LockExclusive(context.Background())
	require.NoError(t, err)
	unlockX()
}

//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hotsync-go/internal/app"
	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/internal/infrastructure"
)

const pathPrefix = "/demo/StandaloneLinux64/1.0.0/Main/"

// contentServer publishes one version of package Main at a time and counts bundle requests
type contentServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	hits  map[string]int
}

func newContentServer(t *testing.T) *contentServer {
	cs := &contentServer{hits: make(map[string]int)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, pathPrefix)
		cs.mu.Lock()
		data, ok := cs.files[name]
		if ok && strings.HasSuffix(name, ".bundle") {
			cs.hits[name]++
		}
		cs.mu.Unlock()
		if !strings.HasPrefix(r.URL.Path, pathPrefix) || !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(cs.Close)
	return cs
}

// publish replaces the served content with a version made of the given bundles
func (cs *contentServer) publish(t *testing.T, version string, bundles map[string][]byte) {
	t.Helper()

	manifest := domain.Manifest{Package: "Main", Version: version}
	files := map[string][]byte{
		infrastructure.VersionFileName("Main"): []byte(version),
	}
	for name, data := range bundles {
		sum := sha256.Sum256(data)
		fileName := name + ".bundle"
		manifest.Bundles = append(manifest.Bundles, domain.BundleEntry{
			Name:     name,
			FileName: fileName,
			Size:     int64(len(data)),
			Hash:     hex.EncodeToString(sum[:]),
			Tags:     []string{"base"},
		})
		manifest.Assets = append(manifest.Assets, domain.AssetEntry{Location: "assets/" + name, Bundle: name})
		files[fileName] = data
	}
	manifestJSON, err := json.Marshal(&manifest)
	require.NoError(t, err)
	files[infrastructure.ManifestFileName("Main", version)] = manifestJSON

	cs.mu.Lock()
	cs.files = files
	cs.hits = make(map[string]int)
	cs.mu.Unlock()
}

func (cs *contentServer) bundleHits() map[string]int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make(map[string]int, len(cs.hits))
	for k, v := range cs.hits {
		out[k] = v
	}
	return out
}

type client struct {
	service      *app.PackageService
	orchestrator *app.HotUpdateOrchestrator
	janitor      *app.CacheJanitor
	loader       *app.ContentLoader
	index        *infrastructure.SQLiteCacheIndex
}

func (c *client) close() {
	c.service.Close()
	c.index.Close()
}

// openClient starts a host-remote client over a persistent cache directory and index
func openClient(t *testing.T, serverURL, dataDir string) *client {
	t.Helper()

	config := domain.DefaultConfig()
	config.Project.ID = "demo"
	config.Storage.CacheDir = filepath.Join(dataDir, "cache")
	config.Storage.DatabasePath = filepath.Join(dataDir, "cache.db")

	profile := domain.DefaultProfile()
	profile.PlayMode = domain.PlayModeHostRemote
	profile.HostServerURL = serverURL
	profile.RetryDelay = time.Millisecond
	profile.Packages = []domain.PackageConfig{{Name: "Main", AutoDownloadTags: []string{"base"}}}
	config.Profiles = []domain.ProfileConfig{profile}

	index, err := infrastructure.NewSQLiteCacheIndex(config.Storage.DatabasePath)
	require.NoError(t, err)

	backends := infrastructure.NewBackendFactory(index, nil, nil)
	service, err := app.NewPackageService(config, app.NewPackageRegistry(), backends, app.NewEventBus(), nil, nil)
	require.NoError(t, err)

	return &client{
		service:      service,
		orchestrator: app.NewHotUpdateOrchestrator(service, nil, nil),
		janitor:      app.NewCacheJanitor(service, nil),
		loader:       app.NewContentLoader(service, nil),
		index:        index,
	}
}

func readAsset(t *testing.T, c *client, key string) []byte {
	t.Helper()
	handle, err := c.loader.LoadByKey(context.Background(), key, "Main")
	require.NoError(t, err)
	r, err := handle.Open()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestHostRemote_CacheSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	content := newContentServer(t)
	dataDir := t.TempDir()

	logo := bytes.Repeat([]byte("L"), 128)
	music := bytes.Repeat([]byte("M"), 256)
	content.publish(t, "v1", map[string][]byte{"logo": logo, "music": music})

	first := openClient(t, content.URL, dataDir)
	require.NoError(t, first.orchestrator.Run(ctx, app.RunOptions{}))
	assert.Equal(t, domain.UpdateDone, first.orchestrator.State())
	assert.Equal(t, map[string]int{"logo.bundle": 1, "music.bundle": 1}, content.bundleHits())

	info, err := first.janitor.CacheInfo("Main")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.FileCount)
	assert.Equal(t, int64(len(logo)+len(music)), info.TotalSize)
	first.close()

	second := openClient(t, content.URL, dataDir)
	defer second.close()
	require.NoError(t, second.orchestrator.Run(ctx, app.RunOptions{}))
	assert.Empty(t, content.bundleHits(), "cached bundles are not fetched again")

	dm, err := second.service.Downloads("Main")
	require.NoError(t, err)
	need, err := dm.NeedDownload(domain.ByTag{Tags: []string{"base"}})
	require.NoError(t, err)
	assert.False(t, need)

	assert.Equal(t, logo, readAsset(t, second, "assets/logo"))
}

func TestHostRemote_UpgradeAndClearUnused(t *testing.T) {
	ctx := context.Background()
	content := newContentServer(t)

	logo := bytes.Repeat([]byte("L"), 128)
	content.publish(t, "v1", map[string][]byte{
		"logo":  logo,
		"intro": bytes.Repeat([]byte("I"), 64),
	})

	c := openClient(t, content.URL, t.TempDir())
	defer c.close()
	require.NoError(t, c.orchestrator.Run(ctx, app.RunOptions{}))

	outro := bytes.Repeat([]byte("O"), 96)
	content.publish(t, "v2", map[string][]byte{"logo": logo, "outro": outro})

	require.NoError(t, c.orchestrator.Run(ctx, app.RunOptions{}))
	assert.Equal(t, map[string]int{"outro.bundle": 1}, content.bundleHits(), "unchanged bundles are reused")

	pkg, err := c.service.Package("Main")
	require.NoError(t, err)
	assert.Equal(t, "v2", pkg.Version())

	removed, err := c.janitor.ClearUnused(ctx, "Main")
	require.NoError(t, err)
	assert.Contains(t, removed, "intro.bundle")
	assert.NotContains(t, removed, "logo.bundle")

	exists, err := c.loader.CheckExists("assets/intro", "Main")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, outro, readAsset(t, c, "assets/outro"))

	require.NoError(t, c.janitor.ClearAll(ctx, "Main"))
	_, err = c.loader.LoadByKey(ctx, "assets/logo", "Main")
	assert.ErrorIs(t, err, domain.ErrNotCached)
}

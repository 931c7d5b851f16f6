package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/hotsync-go/internal/domain"
	"github.com/yourusername/hotsync-go/internal/infrastructure"
)

var errTransfer = errors.New("connection reset")

// fakeBackend serves bundles from memory and records every call
type fakeBackend struct {
	mu sync.Mutex

	local     *domain.Manifest // returned by Initialize, nil for remote packages
	version   string
	manifests map[string]*domain.Manifest
	content   map[string][]byte
	failures  map[string]int // remaining failures per file, negative fails forever

	cache   domain.CacheStore
	delay   time.Duration
	gate    chan struct{}            // when set, every OpenBundle takes one token
	holds   map[string]chan struct{} // per file, OpenBundle waits until closed
	initErr error

	initCalls     int
	versionCalls  int
	manifestCalls int
	opened        []string
	inflight      int
	maxInflight   int
	closed        bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		manifests: make(map[string]*domain.Manifest),
		content:   make(map[string][]byte),
		failures:  make(map[string]int),
		holds:     make(map[string]chan struct{}),
		cache:     infrastructure.NewMemoryCache(),
	}
}

func (b *fakeBackend) Initialize(ctx context.Context) (*domain.Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	if b.initErr != nil {
		return nil, b.initErr
	}
	return b.local, nil
}

func (b *fakeBackend) RequestVersion(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versionCalls++
	if b.version == "" {
		return "", domain.ErrNetwork
	}
	return b.version, nil
}

func (b *fakeBackend) FetchManifest(ctx context.Context, version string) (*domain.Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manifestCalls++
	m, ok := b.manifests[version]
	if !ok {
		return nil, domain.ErrNetwork
	}
	return m, nil
}

func (b *fakeBackend) OpenBundle(ctx context.Context, bundle domain.BundleEntry) (io.ReadCloser, error) {
	b.mu.Lock()
	b.opened = append(b.opened, bundle.FileName)
	b.inflight++
	if b.inflight > b.maxInflight {
		b.maxInflight = b.inflight
	}
	gate, delay, hold := b.gate, b.delay, b.holds[bundle.FileName]
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inflight--
		b.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.failures[bundle.FileName]; n != 0 {
		if n > 0 {
			b.failures[bundle.FileName] = n - 1
		}
		return nil, errTransfer
	}
	data, ok := b.content[bundle.FileName]
	if !ok {
		return nil, domain.ErrNetwork
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBackend) Cache() domain.CacheStore {
	return b.cache
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) openedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

func (b *fakeBackend) openedTimes(fileName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, name := range b.opened {
		if name == fileName {
			n++
		}
	}
	return n
}

func (b *fakeBackend) calls() (init, version, manifest int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls, b.versionCalls, b.manifestCalls
}

// bundleFixture describes one bundle of a test manifest
type bundleFixture struct {
	name   string
	size   int
	tags   []string
	assets []string
}

// addManifest builds a validated manifest from fixtures and stores the bundle content
func (b *fakeBackend) addManifest(t *testing.T, pkg, version string, fixtures ...bundleFixture) *domain.Manifest {
	t.Helper()
	m := &domain.Manifest{Package: pkg, Version: version}
	for i, f := range fixtures {
		data := bytes.Repeat([]byte{byte('a' + i%26)}, f.size)
		sum := sha256.Sum256(data)
		fileName := f.name + ".bundle"
		m.Bundles = append(m.Bundles, domain.BundleEntry{
			Name:     f.name,
			FileName: fileName,
			Size:     int64(f.size),
			Hash:     hex.EncodeToString(sum[:]),
			Tags:     f.tags,
		})
		for _, loc := range f.assets {
			m.Assets = append(m.Assets, domain.AssetEntry{Location: loc, Bundle: f.name})
		}
		b.content[fileName] = data
	}
	require.NoError(t, m.Validate())
	b.manifests[version] = m
	return m
}

// fakeOpener hands out fake backends by package name
type fakeOpener struct {
	mu       sync.Mutex
	backends map[string]*fakeBackend
	errs     map[string]error
	params   map[string]domain.InitParameters
	calls    int
	release  chan struct{} // when set, Open waits for it
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		backends: make(map[string]*fakeBackend),
		errs:     make(map[string]error),
		params:   make(map[string]domain.InitParameters),
	}
}

func (o *fakeOpener) Open(ctx context.Context, pkg string, params domain.InitParameters) (domain.PackageBackend, error) {
	o.mu.Lock()
	o.calls++
	o.params[pkg] = params
	release := o.release
	err := o.errs[pkg]
	backend := o.backends[pkg]
	o.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, domain.ErrConfiguration
	}
	return backend, nil
}

func (o *fakeOpener) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// newTestService builds a service for the given play mode and package names
func newTestService(t *testing.T, mode domain.PlayMode, packages ...string) (*PackageService, *fakeOpener) {
	t.Helper()

	config := domain.DefaultConfig()
	config.Project.ID = "demo"
	config.Storage.CacheDir = t.TempDir()
	config.Storage.SimulateDir = t.TempDir()
	config.Storage.BuildinURL = "mem://"

	profile := domain.DefaultProfile()
	profile.PlayMode = mode
	profile.HostServerURL = "http://cdn.example.com"
	profile.MaxConcurrentDownloads = 4
	profile.MaxRetries = 2
	profile.RetryDelay = time.Millisecond
	profile.Packages = nil
	for i, name := range packages {
		profile.Packages = append(profile.Packages, domain.PackageConfig{Name: name, Priority: i})
	}
	config.Profiles = []domain.ProfileConfig{profile}

	opener := newFakeOpener()
	svc, err := NewPackageService(config, NewPackageRegistry(), opener, NewEventBus(), nil, nil)
	require.NoError(t, err)
	return svc, opener
}

// eventRecorder collects events from a bus or task
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

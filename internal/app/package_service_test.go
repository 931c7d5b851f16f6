package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hotsync-go/internal/domain"
)

func TestNewPackageService_RegistersProfilePackages(t *testing.T) {
	svc, _ := newTestService(t, domain.PlayModeHostRemote, "Main", "DLC")

	assert.Equal(t, []string{"Main", "DLC"}, svc.Registry().Names())
	assert.Equal(t, "Main", svc.Registry().DefaultPackageName())
	assert.Equal(t, domain.PlayModeHostRemote, svc.PlayMode())
	assert.False(t, svc.IsPackageInitialized("Main"))

	pkg, err := svc.Package("")
	require.NoError(t, err)
	assert.Equal(t, "Main", pkg.Name())
}

func TestNewPackageService_RejectsBadPlayMode(t *testing.T) {
	config := domain.DefaultConfig()
	config.Profiles[0].PlayMode = "carrier-pigeon"

	_, err := NewPackageService(config, NewPackageRegistry(), newFakeOpener(), nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestInitParameters_PerPlayMode(t *testing.T) {
	host, _ := newTestService(t, domain.PlayModeHostRemote, "Main")
	params, err := host.InitParameters("Main")
	require.NoError(t, err)
	hostParams, ok := params.(domain.HostRemoteParameters)
	require.True(t, ok)
	assert.Equal(t, "http://cdn.example.com/demo/StandaloneLinux64/1.0.0/Main", hostParams.Remote.Primary)
	assert.False(t, hostParams.Remote.HasFallback())
	assert.NotEmpty(t, hostParams.CacheDir)

	web, _ := newTestService(t, domain.PlayModeWebRemote, "Main")
	params, err = web.InitParameters("Main")
	require.NoError(t, err)
	assert.Equal(t, domain.PlayModeWebRemote, params.Mode())

	offline, _ := newTestService(t, domain.PlayModeOffline, "Main")
	params, err = offline.InitParameters("Main")
	require.NoError(t, err)
	assert.Equal(t, domain.OfflineParameters{BuildinURL: "mem://"}, params)

	simulated, _ := newTestService(t, domain.PlayModeLocalSimulated, "Main")
	params, err = simulated.InitParameters("Main")
	require.NoError(t, err)
	sim := params.(domain.LocalSimulatedParameters)
	assert.Equal(t, "Main", filepath.Base(sim.BuildOutputDir))

	_, err = host.InitParameters("Nope")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
}

func TestInitParameters_InvalidServerURL(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	svc.profile.HostServerURL = "not a url"
	opener.backends["Main"] = newFakeBackend()

	err := svc.InitPackage(context.Background(), "Main")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, 0, opener.callCount())

	pkg, _ := svc.Package("Main")
	assert.Equal(t, domain.InitFailed, pkg.Status())
}

func TestInitPackage_IsIdempotent(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	backend := newFakeBackend()
	opener.backends["Main"] = backend

	require.NoError(t, svc.InitPackage(context.Background(), "Main"))
	require.NoError(t, svc.InitPackage(context.Background(), "Main"))

	assert.Equal(t, 1, opener.callCount())
	init, version, manifest := backend.calls()
	assert.Equal(t, 1, init)
	assert.Zero(t, version)
	assert.Zero(t, manifest)
	assert.True(t, svc.IsPackageInitialized("Main"))
}

func TestInitPackage_ConcurrentCallersShareOneInit(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	opener.backends["Main"] = newFakeBackend()
	opener.release = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.InitPackage(context.Background(), "Main")
		}()
	}
	close(opener.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, opener.callCount())
}

func TestInitPackage_FailureCanBeRetried(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeOffline, "Main")
	backend := newFakeBackend()
	backend.local = backend.addManifest(t, "Main", "1.2.0", bundleFixture{name: "a", size: 4})
	opener.backends["Main"] = backend
	opener.errs["Main"] = errors.New("disk unavailable")

	err := svc.InitPackage(context.Background(), "Main")
	require.Error(t, err)
	pkg, _ := svc.Package("Main")
	assert.Equal(t, domain.InitFailed, pkg.Status())
	assert.False(t, pkg.ManifestLoaded())

	opener.errs["Main"] = nil
	require.NoError(t, svc.InitPackage(context.Background(), "Main"))
	assert.True(t, pkg.IsReady())
	assert.Equal(t, "1.2.0", pkg.Version())
	assert.True(t, pkg.ManifestLoaded())
}

func TestInitPackage_BackendInitializeFailureClosesBackend(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeOffline, "Main")
	backend := newFakeBackend()
	backend.initErr = domain.ErrCorruptManifest
	opener.backends["Main"] = backend

	err := svc.InitPackage(context.Background(), "Main")
	assert.ErrorIs(t, err, domain.ErrCorruptManifest)
	assert.True(t, backend.closed)
}

func TestInitPackage_UnknownPackage(t *testing.T) {
	svc, _ := newTestService(t, domain.PlayModeHostRemote, "Main")
	err := svc.InitPackage(context.Background(), "Missing")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
}

func TestRequestVersion_RequiresInit(t *testing.T) {
	svc, _ := newTestService(t, domain.PlayModeHostRemote, "Main")

	_, err := svc.RequestVersion(context.Background(), "Main")
	assert.ErrorIs(t, err, domain.ErrPackageNotReady)
	err = svc.UpdateManifest(context.Background(), "Main", "")
	assert.ErrorIs(t, err, domain.ErrPackageNotReady)
	_, err = svc.Downloads("Main")
	assert.ErrorIs(t, err, domain.ErrPackageNotReady)
}

func TestUpdateManifest_RequestsVersionWhenMissing(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	backend := newFakeBackend()
	backend.version = "v7"
	backend.addManifest(t, "Main", "v7", bundleFixture{name: "a", size: 4})
	opener.backends["Main"] = backend

	require.NoError(t, svc.InitPackage(context.Background(), "Main"))
	pkg, _ := svc.Package("Main")
	assert.Empty(t, pkg.Version())
	assert.False(t, pkg.ManifestLoaded())

	require.NoError(t, svc.UpdateManifest(context.Background(), "Main", ""))
	assert.Equal(t, "v7", pkg.Version())
	assert.True(t, pkg.ManifestLoaded())
	_, versionCalls, manifestCalls := backend.calls()
	assert.Equal(t, 1, versionCalls)
	assert.Equal(t, 1, manifestCalls)

	// known version, no second round trip for it
	require.NoError(t, svc.UpdateManifest(context.Background(), "Main", ""))
	_, versionCalls, _ = backend.calls()
	assert.Equal(t, 1, versionCalls)
}

func TestUpdateManifest_VersionMismatchKeepsPreviousManifest(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	backend := newFakeBackend()
	backend.version = "v1"
	backend.addManifest(t, "Main", "v1", bundleFixture{name: "a", size: 4})
	stale := backend.addManifest(t, "Main", "v1-stale", bundleFixture{name: "b", size: 4})
	backend.manifests["v2"] = stale
	opener.backends["Main"] = backend

	ctx := context.Background()
	require.NoError(t, svc.InitPackage(ctx, "Main"))
	require.NoError(t, svc.UpdateManifest(ctx, "Main", ""))

	err := svc.UpdateManifest(ctx, "Main", "v2")
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)

	pkg, _ := svc.Package("Main")
	assert.True(t, pkg.ManifestLoaded())
	assert.Equal(t, "v1", pkg.Manifest().Version)
}

func TestRequestVersion_KeepsActiveManifestUntilUpdate(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	backend := newFakeBackend()
	backend.version = "v1"
	backend.addManifest(t, "Main", "v1", bundleFixture{name: "a", size: 4})
	backend.addManifest(t, "Main", "v2", bundleFixture{name: "a", size: 4}, bundleFixture{name: "b", size: 8})
	opener.backends["Main"] = backend

	ctx := context.Background()
	require.NoError(t, svc.InitPackage(ctx, "Main"))
	require.NoError(t, svc.UpdateManifest(ctx, "Main", ""))

	backend.mu.Lock()
	backend.version = "v2"
	backend.mu.Unlock()
	version, err := svc.RequestVersion(ctx, "Main")
	require.NoError(t, err)
	assert.Equal(t, "v2", version)

	pkg, _ := svc.Package("Main")
	snap := pkg.Snapshot()
	assert.Equal(t, "v1", snap.Version)
	assert.Equal(t, "v2", snap.PendingVersion)
	assert.Equal(t, 1, snap.BundleCount)

	require.NoError(t, svc.UpdateManifest(ctx, "Main", ""))
	snap = pkg.Snapshot()
	assert.Equal(t, "v2", snap.Version)
	assert.Empty(t, snap.PendingVersion)
	assert.Equal(t, 2, snap.BundleCount)
}

func TestUpdateManifest_NetworkFailure(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	opener.backends["Main"] = newFakeBackend()

	ctx := context.Background()
	require.NoError(t, svc.InitPackage(ctx, "Main"))
	_, err := svc.RequestVersion(ctx, "Main")
	assert.ErrorIs(t, err, domain.ErrNetwork)

	pkg, _ := svc.Package("Main")
	assert.True(t, pkg.IsReady(), "a failed version request leaves the package ready")
	assert.Empty(t, pkg.Version())
}

func TestPackageService_CloseReleasesBackends(t *testing.T) {
	svc, opener := newTestService(t, domain.PlayModeHostRemote, "Main")
	backend := newFakeBackend()
	opener.backends["Main"] = backend

	require.NoError(t, svc.InitPackage(context.Background(), "Main"))
	require.NoError(t, svc.Close())
	assert.True(t, backend.closed)
}

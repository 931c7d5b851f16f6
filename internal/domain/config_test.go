package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8090, config.Server.Port)
	assert.Equal(t, "1.0.0", config.Project.GameVersion)
	assert.Equal(t, "info", config.Logging.Level)

	profile, err := config.Profile()
	require.NoError(t, err)
	assert.Equal(t, PlayModeLocalSimulated, profile.PlayMode)
	assert.Equal(t, "http://127.0.0.1", profile.HostServerURL)
	assert.Equal(t, 10, profile.MaxConcurrentDownloads)
	assert.Equal(t, 3, profile.MaxRetries)
	assert.Equal(t, time.Second, profile.RetryDelay)
	assert.True(t, profile.AutoInitOnStartup)
	assert.False(t, profile.AutoDownloadOnLoad)
	assert.Equal(t, "DefaultPackage", profile.DefaultPackageName())
}

func TestConfig_ProfileSelection(t *testing.T) {
	config := DefaultConfig()
	second := DefaultProfile()
	second.Name = "release"
	second.PlayMode = PlayModeHostRemote
	config.Profiles = append(config.Profiles, second)

	config.ActiveProfile = "release"
	profile, err := config.Profile()
	require.NoError(t, err)
	assert.Equal(t, PlayModeHostRemote, profile.PlayMode)

	config.ActiveProfile = ""
	profile, err = config.Profile()
	require.NoError(t, err)
	assert.Equal(t, "default", profile.Name)

	config.ActiveProfile = "missing"
	_, err = config.Profile()
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestProfile_PackageURLOverrides(t *testing.T) {
	profile := ProfileConfig{
		HostServerURL:         "http://cdn.example.com",
		FallbackHostServerURL: "http://backup.example.com",
		Packages: []PackageConfig{
			{Name: "Main"},
			{Name: "DLC", HostServerURL: "http://dlc.example.com"},
		},
	}

	main, err := profile.Package("Main")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com", profile.HostServerURLFor(main))
	assert.Equal(t, "http://backup.example.com", profile.FallbackHostServerURLFor(main))

	dlc, err := profile.Package("DLC")
	require.NoError(t, err)
	assert.Equal(t, "http://dlc.example.com", profile.HostServerURLFor(dlc))
	assert.Equal(t, "http://backup.example.com", profile.FallbackHostServerURLFor(dlc))

	_, err = profile.Package("Nope")
	assert.True(t, errors.Is(err, ErrPackageNotFound))
}

func TestParsePlayMode(t *testing.T) {
	tests := []struct {
		input  string
		want   PlayMode
		remote bool
		ok     bool
	}{
		{"local-simulated", PlayModeLocalSimulated, false, true},
		{"offline", PlayModeOffline, false, true},
		{"host-remote", PlayModeHostRemote, true, true},
		{"web-remote", PlayModeWebRemote, true, true},
		{"editor", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParsePlayMode(tt.input)
			if !tt.ok {
				assert.True(t, errors.Is(err, ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
			assert.Equal(t, tt.remote, mode.IsRemote())
		})
	}
}

func TestRemoteEndpoints(t *testing.T) {
	e := RemoteEndpoints{Primary: "http://a/p", Fallback: "http://a/p"}
	assert.False(t, e.HasFallback())
	assert.Equal(t, "http://a/p/x.bundle", e.MainURL("x.bundle"))

	e.Fallback = "http://b/p"
	assert.True(t, e.HasFallback())
	assert.Equal(t, "http://b/p/x.bundle", e.FallbackURL("x.bundle"))
}

package infrastructure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/hotsync-go/internal/domain"
)

func TestRemoteLocator_Resolve(t *testing.T) {
	tests := []struct {
		name         string
		locator      RemoteLocator
		base         string
		fallback     string
		wantPrimary  string
		wantFallback string
	}{
		{
			name:         "with project id",
			locator:      RemoteLocator{ProjectID: "game", Platform: "Android", GameVersion: "1.2.0"},
			base:         "https://cdn.example.com/",
			fallback:     "https://backup.example.com",
			wantPrimary:  "https://cdn.example.com/game/Android/1.2.0/Main",
			wantFallback: "https://backup.example.com/game/Android/1.2.0/Main",
		},
		{
			name:         "without project id",
			locator:      RemoteLocator{Platform: "iOS", GameVersion: "2.0"},
			base:         "http://127.0.0.1:8080",
			fallback:     "http://127.0.0.1:8081//",
			wantPrimary:  "http://127.0.0.1:8080/iOS/2.0/Main",
			wantFallback: "http://127.0.0.1:8081/iOS/2.0/Main",
		},
		{
			name:         "empty fallback collapses to primary",
			locator:      RemoteLocator{Platform: "WebGL", GameVersion: "1.0.0"},
			base:         "http://cdn.example.com///",
			fallback:     "",
			wantPrimary:  "http://cdn.example.com/WebGL/1.0.0/Main",
			wantFallback: "http://cdn.example.com/WebGL/1.0.0/Main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoints, err := tt.locator.Resolve(tt.base, tt.fallback, "Main")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrimary, endpoints.Primary)
			assert.Equal(t, tt.wantFallback, endpoints.Fallback)
		})
	}
}

func TestRemoteLocator_MalformedBaseIsConfigurationError(t *testing.T) {
	locator := RemoteLocator{Platform: "Android", GameVersion: "1.0"}

	for _, base := range []string{"", "cdn.example.com", "http://%zz", "://nohost"} {
		_, err := locator.Resolve(base, "", "Main")
		assert.True(t, errors.Is(err, domain.ErrConfiguration), base)
	}

	_, err := locator.Resolve("http://ok.example.com", "not a url", "Main")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestRemoteLocator_IsDeterministic(t *testing.T) {
	locator := NewRemoteLocator(domain.ProjectConfig{ID: "p", Platform: "Android", GameVersion: "1"})
	a, err := locator.Resolve("http://x", "", "Main")
	require.NoError(t, err)
	b, err := locator.Resolve("http://x", "", "Main")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, a.HasFallback())
}

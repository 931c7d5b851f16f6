package domain

import "fmt"

// PlayMode selects how packages are initialized and where content comes from
type PlayMode string

const (
	PlayModeLocalSimulated PlayMode = "local-simulated" // local build output, no network
	PlayModeOffline        PlayMode = "offline"         // pre-bundled content, no network
	PlayModeHostRemote     PlayMode = "host-remote"     // HTTP server + disk cache
	PlayModeWebRemote      PlayMode = "web-remote"      // HTTP server + in-memory cache
)

// ParsePlayMode validates a configured play mode
func ParsePlayMode(s string) (PlayMode, error) {
	switch m := PlayMode(s); m {
	case PlayModeLocalSimulated, PlayModeOffline, PlayModeHostRemote, PlayModeWebRemote:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown play mode %q", ErrConfiguration, s)
	}
}

// IsRemote reports whether the mode needs version and manifest stages
func (m PlayMode) IsRemote() bool {
	return m == PlayModeHostRemote || m == PlayModeWebRemote
}

// InitParameters is the per-mode initialization input. The concrete types
// below are the only implementations.
type InitParameters interface {
	Mode() PlayMode
}

// LocalSimulatedParameters reads a package straight from a build output directory
type LocalSimulatedParameters struct {
	BuildOutputDir string
}

// OfflineParameters reads a package from a pre-bundled bucket
type OfflineParameters struct {
	BuildinURL string
}

// HostRemoteParameters syncs a package from an HTTP server into a disk cache
type HostRemoteParameters struct {
	Remote   RemoteEndpoints
	CacheDir string
}

// WebRemoteParameters syncs a package from an HTTP server into memory
type WebRemoteParameters struct {
	Remote RemoteEndpoints
}

func (LocalSimulatedParameters) Mode() PlayMode { return PlayModeLocalSimulated }
func (OfflineParameters) Mode() PlayMode        { return PlayModeOffline }
func (HostRemoteParameters) Mode() PlayMode     { return PlayModeHostRemote }
func (WebRemoteParameters) Mode() PlayMode      { return PlayModeWebRemote }

// RemoteEndpoints is a resolved primary/fallback pair for one package
type RemoteEndpoints struct {
	Primary  string
	Fallback string
}

// MainURL joins a file name onto the primary endpoint
func (e RemoteEndpoints) MainURL(file string) string {
	return e.Primary + "/" + file
}

// FallbackURL joins a file name onto the fallback endpoint
func (e RemoteEndpoints) FallbackURL(file string) string {
	return e.Fallback + "/" + file
}

// HasFallback reports whether a distinct fallback endpoint exists
func (e RemoteEndpoints) HasFallback() bool {
	return e.Fallback != "" && e.Fallback != e.Primary
}

package infrastructure

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// RemoteLocator builds package URLs from the project identifiers
type RemoteLocator struct {
	ProjectID   string
	Platform    string
	GameVersion string
}

// NewRemoteLocator creates a locator from project configuration
func NewRemoteLocator(project domain.ProjectConfig) RemoteLocator {
	return RemoteLocator{
		ProjectID:   project.ID,
		Platform:    project.Platform,
		GameVersion: project.GameVersion,
	}
}

// Resolve returns the primary and fallback URLs of a package:
// base/[projectID]/platform/gameVersion/packageName.
// An empty fallback collapses to the primary URL.
func (l RemoteLocator) Resolve(baseURL, fallbackURL, packageName string) (domain.RemoteEndpoints, error) {
	primary, err := l.build(baseURL, packageName)
	if err != nil {
		return domain.RemoteEndpoints{}, err
	}

	if strings.TrimSpace(fallbackURL) == "" {
		return domain.RemoteEndpoints{Primary: primary, Fallback: primary}, nil
	}

	fallback, err := l.build(fallbackURL, packageName)
	if err != nil {
		return domain.RemoteEndpoints{}, err
	}
	return domain.RemoteEndpoints{Primary: primary, Fallback: fallback}, nil
}

func (l RemoteLocator) build(baseURL, packageName string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid server url %q: %v", domain.ErrConfiguration, baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: server url %q needs a scheme and host", domain.ErrConfiguration, baseURL)
	}

	parts := []string{base}
	if l.ProjectID != "" {
		parts = append(parts, l.ProjectID)
	}
	parts = append(parts, l.Platform, l.GameVersion, packageName)
	return strings.Join(parts, "/"), nil
}

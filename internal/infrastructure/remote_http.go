package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vfaronov/httpheader"
	"github.com/yourusername/hotsync-go/internal/domain"
	"go.uber.org/zap"
)

const maxVersionBytes = 256

// VersionFileName is the plain-text file holding a package's latest version
func VersionFileName(pkg string) string {
	return fmt.Sprintf("PackageManifest_%s.version", pkg)
}

// ManifestFileName is the JSON manifest of one package version
func ManifestFileName(pkg, version string) string {
	return fmt.Sprintf("PackageManifest_%s_%s.json", pkg, version)
}

// StatusError is a non-2xx response from the content server
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Time
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Temporary reports whether the request is worth repeating
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// RetryDelay returns how long the server asked us to wait, zero if it did not
func (e *StatusError) RetryDelay() time.Duration {
	if e.RetryAfter.IsZero() {
		return 0
	}
	if d := time.Until(e.RetryAfter); d > 0 {
		return d
	}
	return 0
}

// HTTPRemote fetches package files from a primary server with fallback
type HTTPRemote struct {
	pkg       string
	endpoints domain.RemoteEndpoints
	client    *http.Client
	headers   http.Header
	logger    *zap.Logger
}

// HTTPRemoteOption configures an HTTPRemote
type HTTPRemoteOption func(*HTTPRemote)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) HTTPRemoteOption {
	return func(r *HTTPRemote) { r.client = client }
}

// WithHeader adds a header to every request
func WithHeader(key, value string) HTTPRemoteOption {
	return func(r *HTTPRemote) { r.headers.Set(key, value) }
}

// NewHTTPRemote creates a remote for one package
func NewHTTPRemote(pkg string, endpoints domain.RemoteEndpoints, logger *zap.Logger, opts ...HTTPRemoteOption) *HTTPRemote {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &HTTPRemote{
		pkg:       pkg,
		endpoints: endpoints,
		client:    &http.Client{Timeout: 60 * time.Second},
		headers:   make(http.Header),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoints returns the resolved server URLs
func (r *HTTPRemote) Endpoints() domain.RemoteEndpoints {
	return r.endpoints
}

// RequestVersion fetches the latest version string
func (r *HTTPRemote) RequestVersion(ctx context.Context) (string, error) {
	body, err := r.get(ctx, VersionFileName(r.pkg))
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxVersionBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read version: %v", domain.ErrNetwork, err)
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "", fmt.Errorf("%w: empty version file for %s", domain.ErrNetwork, r.pkg)
	}
	return version, nil
}

// FetchManifest downloads and checks the manifest of a version
func (r *HTTPRemote) FetchManifest(ctx context.Context, version string) (*domain.Manifest, error) {
	body, err := r.get(ctx, ManifestFileName(r.pkg, version))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var manifest domain.Manifest
	if err := json.NewDecoder(body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: failed to decode manifest: %v", domain.ErrNetwork, err)
	}
	if err := checkManifest(&manifest, r.pkg, version); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// OpenBundle starts streaming a bundle
func (r *HTTPRemote) OpenBundle(ctx context.Context, bundle domain.BundleEntry) (io.ReadCloser, error) {
	return r.get(ctx, bundle.FileName)
}

// get requests a file from the primary endpoint and repeats it on the
// fallback for transport errors and temporary statuses.
func (r *HTTPRemote) get(ctx context.Context, file string) (io.ReadCloser, error) {
	body, err := r.getURL(ctx, r.endpoints.MainURL(file))
	if err == nil || !r.endpoints.HasFallback() || !shouldFallback(err) {
		return body, err
	}

	r.logger.Warn("Primary server failed, trying fallback",
		zap.String("package", r.pkg),
		zap.String("file", file),
		zap.Error(err))
	return r.getURL(ctx, r.endpoints.FallbackURL(file))
}

func (r *HTTPRemote) getURL(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	for key, values := range r.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: httpheader.RetryAfter(resp.Header),
		})
	}
	return resp.Body, nil
}

func shouldFallback(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary() || statusErr.StatusCode == http.StatusNotFound
	}
	return errors.Is(err, domain.ErrNetwork)
}

// checkManifest validates a decoded manifest against the requested package and version
func checkManifest(m *domain.Manifest, pkg, version string) error {
	if m.Package != "" && m.Package != pkg {
		return fmt.Errorf("%w: manifest belongs to package %s, expected %s", domain.ErrVersionMismatch, m.Package, pkg)
	}
	if m.Version != version {
		return fmt.Errorf("%w: manifest version %q, expected %q", domain.ErrVersionMismatch, m.Version, version)
	}
	m.Package = pkg
	return m.Validate()
}

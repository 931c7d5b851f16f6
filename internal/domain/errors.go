package domain

import "errors"

// Error taxonomy shared by every layer. Callers test with errors.Is.
var (
	// ErrConfiguration is a bad play mode, URL or missing package config. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNetwork is a failed remote round trip.
	ErrNetwork = errors.New("network error")
	// ErrVersionMismatch means the fetched manifest does not match the requested package version.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrPartialDownload means one or more files exhausted their retries.
	ErrPartialDownload = errors.New("partial download failure")
	// ErrPackageNotReady is returned by queries made before a package is initialized.
	ErrPackageNotReady = errors.New("package not ready")

	ErrPackageNotFound   = errors.New("package not found")
	ErrTaskNotFound      = errors.New("download task not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrNotCached         = errors.New("bundle not cached")
	ErrCorruptManifest   = errors.New("corrupt manifest")
	ErrTaskCancelled     = errors.New("download task cancelled")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRunInProgress     = errors.New("update run already in progress")
)

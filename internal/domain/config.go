package domain

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig       `mapstructure:"server" yaml:"server"`
	Project       ProjectConfig      `mapstructure:"project" yaml:"project"`
	ActiveProfile string             `mapstructure:"active_profile" yaml:"active_profile"`
	Profiles      []ProfileConfig    `mapstructure:"profiles" yaml:"profiles"`
	Storage       StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler" yaml:"scheduler"`
	Notification  NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging       LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// ProjectConfig holds the identifiers used to build remote package URLs
type ProjectConfig struct {
	ID          string `mapstructure:"id" yaml:"id"`
	Platform    string `mapstructure:"platform" yaml:"platform"`
	GameVersion string `mapstructure:"game_version" yaml:"game_version"`
}

// ProfileConfig is one named set of play mode, server and download settings
type ProfileConfig struct {
	Name                   string          `mapstructure:"name" yaml:"name"`
	PlayMode               PlayMode        `mapstructure:"play_mode" yaml:"play_mode"`
	HostServerURL          string          `mapstructure:"host_server_url" yaml:"host_server_url"`
	FallbackHostServerURL  string          `mapstructure:"fallback_host_server_url" yaml:"fallback_host_server_url"`
	MaxConcurrentDownloads int             `mapstructure:"max_concurrent_downloads" yaml:"max_concurrent_downloads"`
	MaxRetries             int             `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay             time.Duration   `mapstructure:"retry_delay" yaml:"retry_delay"`
	AutoDownloadOnLoad     bool            `mapstructure:"auto_download_on_load" yaml:"auto_download_on_load"`
	AutoInitOnStartup      bool            `mapstructure:"auto_init_on_startup" yaml:"auto_init_on_startup"`
	Packages               []PackageConfig `mapstructure:"packages" yaml:"packages"`
}

// PackageConfig describes one configured package
type PackageConfig struct {
	Name                  string   `mapstructure:"name" yaml:"name"`
	Priority              int      `mapstructure:"priority" yaml:"priority"` // lower is searched first
	HostServerURL         string   `mapstructure:"host_server_url" yaml:"host_server_url"`
	FallbackHostServerURL string   `mapstructure:"fallback_host_server_url" yaml:"fallback_host_server_url"`
	AutoDownloadTags      []string `mapstructure:"auto_download_tags" yaml:"auto_download_tags,omitempty"`
}

// StorageConfig contains local storage locations
type StorageConfig struct {
	CacheDir     string `mapstructure:"cache_dir" yaml:"cache_dir"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
	BuildinURL   string `mapstructure:"buildin_url" yaml:"buildin_url"`
	SimulateDir  string `mapstructure:"simulate_dir" yaml:"simulate_dir"`
}

// SchedulerConfig controls periodic update runs
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Method  string `mapstructure:"method" yaml:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`      // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir" yaml:"logs_dir"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Project: ProjectConfig{
			Platform:    "StandaloneLinux64",
			GameVersion: "1.0.0",
		},
		ActiveProfile: "default",
		Profiles: []ProfileConfig{
			DefaultProfile(),
		},
		Storage: StorageConfig{
			CacheDir:     "$HOME/.hotsync/cache",
			DatabasePath: "$HOME/.hotsync/cache.db",
			BuildinURL:   "file://$HOME/.hotsync/buildin",
			SimulateDir:  "$HOME/.hotsync/simulate",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: 30 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.hotsync/logs",
		},
	}
}

// DefaultProfile returns the profile used when none is configured
func DefaultProfile() ProfileConfig {
	return ProfileConfig{
		Name:                   "default",
		PlayMode:               PlayModeLocalSimulated,
		HostServerURL:          "http://127.0.0.1",
		MaxConcurrentDownloads: 10,
		MaxRetries:             3,
		RetryDelay:             time.Second,
		AutoInitOnStartup:      true,
		Packages: []PackageConfig{
			{Name: "DefaultPackage"},
		},
	}
}

// Profile returns the active profile. An empty selector picks the first profile.
func (c *Config) Profile() (*ProfileConfig, error) {
	if len(c.Profiles) == 0 {
		return nil, fmt.Errorf("%w: no profiles configured", ErrConfiguration)
	}
	if c.ActiveProfile == "" {
		return &c.Profiles[0], nil
	}
	for i := range c.Profiles {
		if c.Profiles[i].Name == c.ActiveProfile {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: active profile %q not found", ErrConfiguration, c.ActiveProfile)
}

// Package returns the configuration of a named package
func (p *ProfileConfig) Package(name string) (*PackageConfig, error) {
	for i := range p.Packages {
		if p.Packages[i].Name == name {
			return &p.Packages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
}

// DefaultPackageName returns the first configured package name
func (p *ProfileConfig) DefaultPackageName() string {
	if len(p.Packages) == 0 {
		return ""
	}
	return p.Packages[0].Name
}

// HostServerURLFor returns the package's server URL, falling back to the profile URL
func (p *ProfileConfig) HostServerURLFor(pkg *PackageConfig) string {
	if pkg != nil && pkg.HostServerURL != "" {
		return pkg.HostServerURL
	}
	return p.HostServerURL
}

// FallbackHostServerURLFor returns the package's fallback URL, falling back to the profile URL
func (p *ProfileConfig) FallbackHostServerURLFor(pkg *PackageConfig) string {
	if pkg != nil && pkg.FallbackHostServerURL != "" {
		return pkg.FallbackHostServerURL
	}
	return p.FallbackHostServerURL
}

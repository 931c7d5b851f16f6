package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/hotsync-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.hotsync")
		v.AddConfigPath("/etc/hotsync")
	}

	v.SetEnvPrefix("HOTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"active_profile", "server.host", "server.port", "logging.level", "storage.cache_dir"} {
		v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// configured profiles replace the built-in one instead of merging into it
	if v.IsSet("profiles") {
		config.Profiles = nil
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyProfileDefaults(config)
	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyProfileDefaults fills unset profile limits from the built-in profile
func applyProfileDefaults(config *domain.Config) {
	def := domain.DefaultProfile()
	for i := range config.Profiles {
		p := &config.Profiles[i]
		if p.PlayMode == "" {
			p.PlayMode = def.PlayMode
		}
		if p.MaxConcurrentDownloads == 0 {
			p.MaxConcurrentDownloads = def.MaxConcurrentDownloads
		}
		if p.RetryDelay == 0 {
			p.RetryDelay = def.RetryDelay
		}
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Storage.CacheDir = expandPath(config.Storage.CacheDir)
	config.Storage.DatabasePath = expandPath(config.Storage.DatabasePath)
	config.Storage.SimulateDir = expandPath(config.Storage.SimulateDir)
	config.Storage.BuildinURL = expandPath(config.Storage.BuildinURL)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	profile, err := config.Profile()
	if err != nil {
		return err
	}
	if _, err := domain.ParsePlayMode(string(profile.PlayMode)); err != nil {
		return err
	}
	if len(profile.Packages) == 0 {
		return fmt.Errorf("%w: profile %q has no packages", domain.ErrConfiguration, profile.Name)
	}

	seen := make(map[string]bool)
	for _, pkg := range profile.Packages {
		if pkg.Name == "" {
			return fmt.Errorf("%w: package name is empty", domain.ErrConfiguration)
		}
		if seen[pkg.Name] {
			return fmt.Errorf("%w: duplicate package %s", domain.ErrConfiguration, pkg.Name)
		}
		seen[pkg.Name] = true
	}

	if profile.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if profile.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("max concurrent downloads must be at least 1")
	}

	if profile.PlayMode == domain.PlayModeHostRemote {
		if config.Storage.CacheDir == "" {
			return fmt.Errorf("cache directory not configured")
		}
		if config.Storage.DatabasePath == "" {
			return fmt.Errorf("cache database path not configured")
		}
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

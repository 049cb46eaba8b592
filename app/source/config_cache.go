package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			// One bad file must not take the other sources down with it.
			slog.Error("Skipping invalid source configuration", "file", file, "error", err)
			continue
		}

		slog.Debug("Source configuration loaded",
			"source", sourceName,
			"enabled", config.Settings.Enabled,
			"poll_interval", config.Settings.PollInterval,
			"refresh_interval", config.Settings.RefreshInterval,
			"authenticated", config.Login != nil)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	configFile := cc.getConfigFilePath(sourceName)
	sourceConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	sourceConfig.Name = sourceName

	if err := cc.validateConfig(sourceConfig); err != nil {
		return nil, err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceConfig.Name] = sourceConfig

	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourceConfig, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig Config
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourceConfig.Settings.Timeout == 0 {
		sourceConfig.Settings.Timeout = 30
	}
	if sourceConfig.Login != nil {
		if sourceConfig.Login.UsernameField == "" {
			sourceConfig.Login.UsernameField = "username"
		}
		if sourceConfig.Login.PasswordField == "" {
			sourceConfig.Login.PasswordField = "password"
		}
	}

	return &sourceConfig, nil
}

func (cc *ConfigCache) validateConfig(sourceConfig *Config) error {
	if sourceConfig == nil {
		return &ConfigError{Reason: "config is nil"}
	}

	if sourceConfig.URL == "" {
		return &ConfigError{Source: sourceConfig.Name, Reason: "feed URL is required"}
	}

	nonNegativeFields := map[string]int{
		"poll interval":    sourceConfig.Settings.PollInterval,
		"refresh interval": sourceConfig.Settings.RefreshInterval,
		"timeout":          sourceConfig.Settings.Timeout,
		"retention days":   sourceConfig.Settings.RetentionDays,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return &ConfigError{Source: sourceConfig.Name, Reason: fieldName + " must be non-negative"}
		}
	}

	// Protected means "never publish without the real article body", which
	// only the authenticated content fetch can deliver.
	if sourceConfig.Settings.Protected && !sourceConfig.Settings.AuthContent {
		return &ConfigError{Source: sourceConfig.Name, Reason: "protected sources require auth_content"}
	}

	if login := sourceConfig.Login; login != nil {
		switch login.Type {
		case "form", "api":
		default:
			return &ConfigError{Source: sourceConfig.Name, Reason: fmt.Sprintf("unknown login type %q", login.Type)}
		}
		if login.URL == "" {
			return &ConfigError{Source: sourceConfig.Name, Reason: "login URL is required"}
		}
		if login.Username == "" || login.Password == "" {
			return &ConfigError{Source: sourceConfig.Name, Reason: "login credentials are required"}
		}
	} else if sourceConfig.Settings.AuthFeed || sourceConfig.Settings.AuthContent {
		return &ConfigError{Source: sourceConfig.Name, Reason: "authenticated fetch requires a login section"}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}

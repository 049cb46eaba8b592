package source

import (
	"fmt"
	"time"
)

// Configuration types. One YAML file per source in the sources directory;
// the source name is derived from the filename (without .yml extension).

type Config struct {
	Name        string            // Derived from filename (without .yml extension)
	URL         string            `yaml:"url"`
	Settings    ConfigSettings    `yaml:"settings"`
	Login       *ConfigLogin      `yaml:"login"`
	Destination ConfigDestination `yaml:"destination"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	PollInterval    int  `yaml:"poll_interval"`    // seconds; 0 disables polling
	RefreshInterval int  `yaml:"refresh_interval"` // seconds; 0 disables downstream refresh
	Timeout         int  `yaml:"timeout"`          // seconds
	AuthFeed        bool `yaml:"auth_feed"`        // fetch the feed document through the session
	AuthContent     bool `yaml:"auth_content"`     // fetch full article content through the session
	Protected       bool `yaml:"protected"`        // drop entries whose authenticated content fetch fails
	RetentionDays   int  `yaml:"retention_days"`   // sweep purges tracked items older than this; 0 keeps forever
}

type ConfigLogin struct {
	Type            string   `yaml:"type"` // "form" or "api"
	URL             string   `yaml:"url"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	UsernameField   string   `yaml:"username_field"` // form variant; defaults to "username"
	PasswordField   string   `yaml:"password_field"` // form variant; defaults to "password"
	RequiredCookies []string `yaml:"required_cookies"`
}

type ConfigDestination struct {
	Folder            string   `yaml:"folder"`
	Tags              []string `yaml:"tags"`
	DefaultTag        bool     `yaml:"default_tag"`
	IncludeCategories bool     `yaml:"include_categories"`
}

func (c *Config) PollCadence() time.Duration {
	return time.Duration(c.Settings.PollInterval) * time.Second
}

func (c *Config) RefreshCadence() time.Duration {
	return time.Duration(c.Settings.RefreshInterval) * time.Second
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Settings.RetentionDays) * 24 * time.Hour
}

// CacheKey identifies the cookie cache entry for this source's session.
// Sources sharing the same site and credential share one session.
func (c *Config) CacheKey() string {
	if c.Login == nil {
		return ""
	}
	return c.Login.URL + "|" + c.Login.Username
}

// ConfigError marks a source configuration that is missing required fields.
// The orchestrator skips such sources for the cycle and continues with others.
type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for source %q: %s", e.Source, e.Reason)
}

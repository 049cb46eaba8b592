package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./rss-stash.db" description:"Path to the sqlite database file"`

	// Application configuration
	SourcesDir    string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	CycleInterval int    `long:"cycle-interval" env:"CYCLE_INTERVAL" default:"60" description:"Orchestrator cycle interval in seconds"`
	WorkerCount   int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of concurrent workers for per-source processing"`
	APIAccessKey  string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Read-later target configuration
	TargetURL   string `long:"target-url" env:"TARGET_URL" description:"Base URL of the read-later service (required)" required:"true"`
	TargetToken string `long:"target-token" env:"TARGET_TOKEN" description:"API token for the read-later service (required)" required:"true"`

	// Application metadata
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"RSS Stash/1.0" description:"User agent string for HTTP requests"`
	HTTPTimeout int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30" description:"Default timeout for external HTTP calls in seconds"`
	Timezone    string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug       bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:        raw.DBPath,
		SourcesDir:    raw.SourcesDir,
		Port:          raw.Port,
		CycleInterval: raw.CycleInterval,
		WorkerCount:   raw.WorkerCount,
		APIAccessKey:  raw.APIAccessKey,
		TargetURL:     raw.TargetURL,
		TargetToken:   raw.TargetToken,
		UserAgent:     raw.UserAgent,
		HTTPTimeout:   raw.HTTPTimeout,
		Timezone:      raw.Timezone,
		Debug:         raw.Debug,
		Version:       GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}

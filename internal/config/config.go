// Package config provides configuration management for notionstamp.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is the control surface address.
	DefaultListen = "127.0.0.1:37790"
	// DefaultBaseURL is the Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com"
	// DefaultRequestTimeout bounds each Notion request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultTimestampStyle renders elapsed time as HH:MM:SS.
	DefaultTimestampStyle = "full"
	// DefaultLogLevel is the zerolog level name.
	DefaultLogLevel = "info"

	dataDirName      = ".notionstamp"
	settingsFileName = "settings.yml"
)

var (
	ErrMissingAPIKey       = errors.New("apiKey is required")
	ErrMissingParentPageID = errors.New("parentPageId is required")
)

// Config holds notionstamp settings. Environment variables override the file.
type Config struct {
	APIKey         string        `yaml:"api_key" env:"NOTIONSTAMP_API_KEY"`
	ParentPageID   string        `yaml:"parent_page_id" env:"NOTIONSTAMP_PARENT_PAGE_ID"`
	Listen         string        `yaml:"listen" env:"NOTIONSTAMP_LISTEN"`
	BaseURL        string        `yaml:"base_url" env:"NOTIONSTAMP_BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"NOTIONSTAMP_TIMEOUT"`
	TimestampStyle string        `yaml:"timestamp_style" env:"NOTIONSTAMP_TIMESTAMP_STYLE"`
	LogLevel       string        `yaml:"log_level" env:"NOTIONSTAMP_LOG_LEVEL"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:         DefaultListen,
		BaseURL:        DefaultBaseURL,
		RequestTimeout: DefaultRequestTimeout,
		TimestampStyle: DefaultTimestampStyle,
		LogLevel:       DefaultLogLevel,
	}
}

// DataDir returns the data directory, honouring NOTIONSTAMP_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("NOTIONSTAMP_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

const settingsTemplate = `# notionstamp settings. Environment variables (NOTIONSTAMP_*) take precedence.
api_key: ""
parent_page_id: ""
listen: "` + DefaultListen + `"
request_timeout: 10s
timestamp_style: full
log_level: info
`

// EnsureSettings writes a settings template if no file exists yet.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(settingsTemplate), 0600)
}

// EnsureAll creates the data directory and settings template.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	return nil
}

// Load reads the settings file at SettingsPath.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile reads settings from path and applies environment overrides.
// A missing file yields defaults. A malformed file is logged and ignored.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is the settings file
	switch {
	case err == nil:
		fileCfg := *cfg
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Invalid settings file, using defaults")
		} else {
			*cfg = fileCfg
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ParentPageID = strings.TrimSpace(c.ParentPageID)
	c.Listen = strings.TrimSpace(c.Listen)
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.TimestampStyle == "" {
		c.TimestampStyle = DefaultTimestampStyle
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports missing required fields.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.ParentPageID) == "" {
		errs = append(errs, ErrMissingParentPageID)
	}
	return errors.Join(errs...)
}

var (
	current   *Config
	currentMu sync.RWMutex
)

// Get returns the process-wide config, loading it on first use.
func Get() *Config {
	currentMu.RLock()
	cfg := current
	currentMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	loaded, err := Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		loaded = Default()
	}
	Set(loaded)
	return loaded
}

// Set replaces the process-wide config.
func Set(cfg *Config) {
	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
}

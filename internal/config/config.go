package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen     = "127.0.0.1:8080"
	defaultFeedURL    = "http://localhost:5001/api/meetings"
	defaultTimezone   = "Asia/Kathmandu"
	defaultPageSize   = 10
	defaultTokenCheck = "@every 60s"
	defaultRefresh    = "@every 20m"
	defaultTimeoutSec = 15
	defaultTokenStore = "./var/meetfeed/store.yaml"
	defaultTokenKey   = "token"
	defaultLogLevel   = "info"
)

// Environment variables that override the file. MEETFEED_TOKEN is read by
// the token accessor rather than stored here.
const (
	EnvFeedURL  = "MEETFEED_FEED_URL"
	EnvListen   = "MEETFEED_LISTEN"
	EnvLogLevel = "MEETFEED_LOG_LEVEL"
	EnvToken    = "MEETFEED_TOKEN"
)

// FilterConfig selects the domain filters applied on every refresh.
type FilterConfig struct {
	// TodayLunar keeps only meetings dated today in the Bikram Sambat calendar.
	TodayLunar bool `yaml:"today_lunar" json:"today_lunar"`
	// Category keeps only meetings with this category (e.g. "internal").
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	// DayOffset keeps only meetings on today+N in the Gregorian calendar
	// (-1 yesterday, 1 tomorrow, 2 overmorrow).
	DayOffset *int `yaml:"day_offset,omitempty" json:"day_offset,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the projection API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the projection API.
	Listen string `yaml:"listen" json:"listen"`

	// FeedURL is the meetings endpoint returning a JSON array.
	FeedURL string `yaml:"feed_url" json:"feed_url"`

	// RequestTimeoutSeconds bounds a single feed fetch.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// Timezone is the IANA zone "today" is computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// PageSize is the number of rows per page (10 for the list view, 6 for
	// the today view).
	PageSize int `yaml:"page_size" json:"page_size"`

	// TokenCheck and Refresh are cron specs or descriptors
	// ("@every 60s", "*/20 * * * *").
	TokenCheck string `yaml:"token_check" json:"token_check"`
	Refresh    string `yaml:"refresh" json:"refresh"`

	// ClampPageOnRefresh pulls the current page back into range when a
	// refresh shrinks the feed.
	ClampPageOnRefresh *bool `yaml:"clamp_page_on_refresh,omitempty" json:"clamp_page_on_refresh,omitempty"`

	// TokenStore is the key-value file holding the session token under TokenKey.
	TokenStore string `yaml:"token_store" json:"token_store"`
	TokenKey   string `yaml:"token_key" json:"token_key"`

	Filters FilterConfig `yaml:"filters" json:"filters"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	clamp := true
	return &Config{
		Listen:                defaultListen,
		FeedURL:               defaultFeedURL,
		RequestTimeoutSeconds: defaultTimeoutSec,
		Timezone:              defaultTimezone,
		PageSize:              defaultPageSize,
		TokenCheck:            defaultTokenCheck,
		Refresh:               defaultRefresh,
		ClampPageOnRefresh:    &clamp,
		TokenStore:            defaultTokenStore,
		TokenKey:              defaultTokenKey,
		LogLevel:              defaultLogLevel,
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.FeedURL == "" {
		c.FeedURL = defaultFeedURL
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultTimeoutSec
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if strings.TrimSpace(c.TokenCheck) == "" {
		c.TokenCheck = defaultTokenCheck
	}
	if strings.TrimSpace(c.Refresh) == "" {
		c.Refresh = defaultRefresh
	}
	if c.ClampPageOnRefresh == nil {
		clamp := true
		c.ClampPageOnRefresh = &clamp
	}
	if c.TokenStore == "" {
		c.TokenStore = defaultTokenStore
	}
	if c.TokenKey == "" {
		c.TokenKey = defaultTokenKey
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Clamp reports the effective ClampPageOnRefresh value.
func (c *Config) Clamp() bool {
	return c.ClampPageOnRefresh == nil || *c.ClampPageOnRefresh
}

// Location resolves Timezone. Asia/Kathmandu falls back to a fixed +05:45
// zone when the tzdata is missing; other unknown names fall back to
// time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err == nil {
		return loc, nil
	}
	if c.Timezone == defaultTimezone {
		return time.FixedZone("NPT", 5*3600+45*60), err
	}
	return time.Local, err
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// LoadEnv loads the given .env files (missing files are skipped) into the
// process environment; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides file values with MEETFEED_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvFeedURL); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Save writes cfg to path atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".meetfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Package config handles lazyload configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/lazyload/horosafe"
	"github.com/hazyhaar/lazyload/lazyload/internal/geometry"
)

// Config is the top-level lazyload configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Page     PageConfig     `yaml:"page"`
	LazyLoad LazyLoadConfig `yaml:"lazyload"`
	Cache    CacheConfig    `yaml:"cache"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote  string `yaml:"remote"`  // ws:// debugger URL; empty launches a local Chrome
	Bin     string `yaml:"bin"`     // Chrome binary for local launches
	Stealth string `yaml:"stealth"` // headless | headful

	ResourceBlocking []string `yaml:"resource_blocking"` // fonts | media | stylesheets
}

// PageConfig is the page whose images are scheduled.
type PageConfig struct {
	URL       string        `yaml:"url"`
	UserAgent string        `yaml:"user_agent"`
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Timeout   time.Duration `yaml:"timeout"` // navigation and load wait
}

// LazyLoadConfig mirrors the scheduler options.
type LazyLoadConfig struct {
	LazyClass       string   `yaml:"lazy_class"`
	DoneClass       string   `yaml:"done_class"`
	Placeholder     string   `yaml:"placeholder"`
	UpdateOnResize  *bool    `yaml:"update_on_resize"`
	SecondaryScroll string   `yaml:"secondary_scroll"`
	AttList         []string `yaml:"att_list"`

	Threshold   *float64       `yaml:"threshold"`
	ResizeDelay time.Duration  `yaml:"resize_delay"`
	FadeSpeed   *time.Duration `yaml:"fade_speed"`
	MinHeight   int            `yaml:"min_height"`

	LoadHidden bool `yaml:"load_hidden"`
	MustForce  bool `yaml:"must_force"`

	Srcs        []string        `yaml:"srcs"`
	SrcFallback string          `yaml:"src_fallback"`
	Tests       map[string]bool `yaml:"tests"`

	// PlatformExtra adds a margin for user agents matching a pattern.
	PlatformExtra []geometry.PlatformRule `yaml:"platform_extra"`
}

// CacheConfig selects the store backing the loaded-source cache.
type CacheConfig struct {
	Backend   string `yaml:"backend"` // session | sqlite | memory | none
	Path      string `yaml:"path"`    // sqlite file
	SessionID string `yaml:"session_id"`

	// Sync is how often a sqlite cache is polled for loads recorded by other
	// processes sharing SessionID. Negative disables polling. Default: 1s.
	Sync time.Duration `yaml:"sync"`

	Trace bool `yaml:"trace"` // log every cache statement at debug level
}

// HTTPConfig controls the control API.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// SinkConfig defines a load event output.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook | sqlite
	URL     string        `yaml:"url"`  // for webhook
	Path    string        `yaml:"path"` // for sqlite
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`

	AllowPrivate bool `yaml:"allow_private"` // permit loopback/private webhook hosts
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Page.Width <= 0 {
		c.Page.Width = 1280
	}
	if c.Page.Height <= 0 {
		c.Page.Height = 800
	}
	if c.Page.Timeout <= 0 {
		c.Page.Timeout = 30 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "session"
	}
	if c.Cache.Sync == 0 {
		c.Cache.Sync = time.Second
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		c.Cache.Path = "lazyload.db"
	}
	if c.LazyLoad.PlatformExtra == nil {
		c.LazyLoad.PlatformExtra = geometry.DefaultPlatformRules
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "" {
			c.Sinks[i].Type = "stdout"
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: browser.stealth %q: want headless or headful", c.Browser.Stealth)
	}
	switch c.Cache.Backend {
	case "session", "sqlite", "memory", "none":
	default:
		return fmt.Errorf("config: cache.backend %q: want session, sqlite, memory or none", c.Cache.Backend)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "sqlite":
			if s.Path == "" {
				return fmt.Errorf("config: sinks[%d]: sqlite without path", i)
			}
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook without url", i)
			}
			if err := horosafe.ValidateURL(s.URL, s.AllowPrivate); err != nil {
				return fmt.Errorf("config: sinks[%d]: %w", i, err)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}

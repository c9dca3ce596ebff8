package lazyload

import (
	"log/slog"

	"github.com/hazyhaar/lazyload/lazyload/internal/config"
	"github.com/hazyhaar/lazyload/lazyload/internal/geometry"
)

// Config is the top-level lazyload configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig is the page whose images are scheduled.
type PageConfig = config.PageConfig

// LazyLoadConfig mirrors the scheduler options.
type LazyLoadConfig = config.LazyLoadConfig

// CacheConfig selects the loaded-source store.
type CacheConfig = config.CacheConfig

// HTTPConfig controls the control API.
type HTTPConfig = config.HTTPConfig

// SinkConfig defines a load event output.
type SinkConfig = config.SinkConfig

// PlatformRule adds a load margin for matching user agents.
type PlatformRule = geometry.PlatformRule

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// OptionsFromConfig builds scheduler options from the lazyload section of
// a configuration file. Fields left out of the file keep their default.
// userAgent selects the platform margin.
func OptionsFromConfig(c LazyLoadConfig, userAgent string, logger *slog.Logger) Options {
	opts := DefaultOptions()
	opts.Logger = logger

	if c.LazyClass != "" {
		opts.LazyClass = c.LazyClass
	}
	if c.DoneClass != "" {
		opts.DoneClass = c.DoneClass
	}
	if c.Placeholder != "" {
		opts.Placeholder = c.Placeholder
	}
	if c.UpdateOnResize != nil {
		opts.UpdateOnResize = *c.UpdateOnResize
	}
	opts.SecondaryScroll = c.SecondaryScroll
	if len(c.AttList) > 0 {
		opts.AttList = c.AttList
	}
	if c.Threshold != nil {
		opts.Threshold = *c.Threshold
	}
	if c.ResizeDelay > 0 {
		opts.ResizeDelay = c.ResizeDelay
	}
	if c.FadeSpeed != nil {
		opts.FadeSpeed = *c.FadeSpeed
	}
	opts.MinHeight = c.MinHeight
	opts.LoadHidden = c.LoadHidden
	opts.MustForce = c.MustForce
	if len(c.Srcs) > 0 {
		opts.Srcs = c.Srcs
	}
	if c.SrcFallback != "" {
		opts.SrcFallback = c.SrcFallback
	}
	if len(c.Tests) > 0 {
		opts.Tests = make(Tests, len(c.Tests))
		for name, pass := range c.Tests {
			opts.Tests[name] = Bool(pass)
		}
	}
	opts.ExtraPx = geometry.PlatformExtra(userAgent, c.PlatformExtra)
	return opts
}

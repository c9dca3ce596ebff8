package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// TabConfig describes the page to open.
type TabConfig struct {
	URL       string
	UserAgent string // empty keeps the browser default
	Width     int    // window size in CSS pixels
	Height    int
	Stealth   bool          // apply go-rod/stealth evasions
	Timeout   time.Duration // navigation and load wait; default 30s
}

// Tab wraps a Rod page opened for lazy loading.
type Tab struct {
	Page      *rod.Page
	PageURL   string
	UserAgent string
	manager   *Manager
}

// OpenTab creates a new tab, sizes its viewport, and navigates to cfg.URL.
// An empty URL leaves the tab on about:blank.
func OpenTab(ctx context.Context, mgr *Manager, cfg TabConfig) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var page *rod.Page
	var err error
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking, mgr.cfg.Logger); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: user agent: %w", err)
		}
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Width,
			Height:            cfg.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: viewport: %w", err)
		}
	}

	t := &Tab{Page: page, PageURL: cfg.URL, UserAgent: cfg.UserAgent, manager: mgr}
	if cfg.URL == "" {
		return t, nil
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(cfg.URL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", cfg.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", cfg.URL, "error", err)
	}

	if t.UserAgent == "" {
		if res, err := page.Eval(`() => navigator.userAgent`); err == nil {
			t.UserAgent = res.Value.Str()
		}
	}
	return t, nil
}

// Host returns the lazyload host backed by this tab.
func (t *Tab) Host() *Host {
	return &Host{page: t.Page, logger: t.manager.cfg.Logger}
}

// SessionStore returns the tab's sessionStorage as a load cache store.
func (t *Tab) SessionStore() *SessionStore {
	return NewSessionStore(t.Page)
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

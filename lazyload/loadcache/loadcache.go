// Package loadcache remembers which image sources were already loaded in the
// current browsing session, so a returning image can skip the deferred path.
//
// The cache is an optimisation only. Every storage failure is swallowed:
// a broken store behaves as an empty one and loading always proceeds.
package loadcache

import (
	"context"
	"errors"
	"log/slog"
)

// LoadedValue is stored against every recorded source. Only the key's
// presence matters.
const LoadedValue = "loaded"

// ErrUnavailable is returned by stores whose backend refuses access, such
// as sessionStorage in a private browsing mode.
var ErrUnavailable = errors.New("loadcache: store unavailable")

// Store is a session-scoped key/value store. Get returns "" for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Gate answers "was this source loaded before?" on top of a Store.
type Gate struct {
	store  Store
	logger *slog.Logger
}

// NewGate creates a Gate. A nil store yields a Gate that never reports a hit.
func NewGate(store Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// ShouldForceImmediate reports whether url was recorded earlier in this
// session. Store errors count as a miss.
func (g *Gate) ShouldForceImmediate(ctx context.Context, url string) bool {
	if g == nil || g.store == nil || url == "" {
		return false
	}
	v, err := g.store.Get(ctx, url)
	if err != nil {
		g.logger.Debug("loadcache: get failed, treating as miss", "src", url, "error", err)
		return false
	}
	return v != ""
}

// RecordLoaded marks url as loaded. Failures are logged and dropped.
func (g *Gate) RecordLoaded(ctx context.Context, url string) {
	if g == nil || g.store == nil || url == "" {
		return
	}
	if err := g.store.Set(ctx, url, LoadedValue); err != nil {
		g.logger.Debug("loadcache: record failed", "src", url, "error", err)
	}
}

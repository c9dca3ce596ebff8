package lazyload

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/internal/source"
	"github.com/hazyhaar/lazyload/lazyload/internal/viewport"
	"github.com/hazyhaar/lazyload/lazyload/loadcache"
)

// Version of the scheduler.
const Version = "1.2.0"

// PlaceholderGIF is a 1x1 transparent GIF used as the neutral source of
// materialized images.
const PlaceholderGIF = "data:image/gif;base64,R0lGODlhAQABAPAAAAAAAAAAACH/C1hNUCBEYXRhWE1QRT94cGFja2V0IDE2MDZCIiB4bXBNTTpJbnN0YW5jZUlEPSJ4bXAuaWlkOkZERDQ1MzVGMkZGMTExRTFBQTE4OTE5ODk4MQAh+QQFAAAAACwAAAAAAQABAEACAkQBADs="

// Test, Tests, Bool and Func re-export the capability test types.
type (
	Test  = source.Test
	Tests = source.Tests
	Bool  = source.Bool
	Func  = source.Func
)

// Options configures a Scheduler. Start from DefaultOptions. Booleans and
// the numeric margins (Threshold, ExtraPx, FadeSpeed, MinHeight) are taken
// as given, zero included. Empty strings, nil slices, a nil Logger and a
// non-positive ResizeDelay are replaced by defaults.
type Options struct {
	LazyClass   string // marks images and noscript placeholders to track
	DoneClass   string // added once an image is done
	Placeholder string // src of materialized images before loading

	// UpdateOnResize re-resolves the source of done images on every refresh.
	UpdateOnResize bool
	// SecondaryScroll is a selector for an extra scrolling element.
	SecondaryScroll string
	// AttList lists the data attributes promoted to real attributes on
	// materialized images.
	AttList []string

	Threshold   float64       // pixels beyond the viewport edge that still load
	ExtraPx     float64       // per-platform margin correction
	ResizeDelay time.Duration // debounce window
	FadeSpeed   time.Duration // fade-in duration of non-forced loads
	MinHeight   int           // placeholder height when none is declared; 0 disables

	LoadHidden bool // evaluate images that are not rendered
	MustForce  bool // only load through LoadNow

	Srcs        []string // source names in precedence order
	SrcFallback string   // source used when no test matches
	// Tests override or extend the default "2x", "mobile" and "desktop" tests.
	Tests Tests

	// OnLoad is called once per applied source, in order, on a goroutine
	// of its own. It may call Scheduler methods.
	OnLoad func(event.Load)
	// History serves recent load events to the control surfaces.
	History EventHistory
	// Cache is the session store consulted for previously loaded sources.
	Cache loadcache.Store
	// PageURL is copied into load events.
	PageURL string

	Logger *slog.Logger

	newTimer viewport.TimerFunc
}

// EventHistory lists recorded load events, newest first. The SQLite sink
// implements it.
type EventHistory interface {
	Recent(ctx context.Context, limit int) ([]event.Load, error)
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		LazyClass:      "lazy",
		DoneClass:      "lazyLoadDone",
		Placeholder:    PlaceholderGIF,
		UpdateOnResize: true,
		AttList:        []string{"src", "width", "height", "alt", "class"},
		Threshold:      300,
		ResizeDelay:    100 * time.Millisecond,
		FadeSpeed:      500 * time.Millisecond,
		Srcs:           []string{"2x", "desktop", "mobile"},
		SrcFallback:    "desktop",
	}
}

func (o *Options) defaults() {
	d := DefaultOptions()
	if o.LazyClass == "" {
		o.LazyClass = d.LazyClass
	}
	if o.DoneClass == "" {
		o.DoneClass = d.DoneClass
	}
	if o.Placeholder == "" {
		o.Placeholder = d.Placeholder
	}
	if o.AttList == nil {
		o.AttList = d.AttList
	}
	if o.ResizeDelay <= 0 {
		o.ResizeDelay = d.ResizeDelay
	}
	if o.Srcs == nil {
		o.Srcs = d.Srcs
	}
	if o.SrcFallback == "" {
		o.SrcFallback = d.SrcFallback
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

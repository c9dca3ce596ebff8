package lazyload

import (
	"context"
	"time"

	"github.com/hazyhaar/lazyload/lazyload/internal/geometry"
)

// Box and Viewport are the geometry types hosts report.
type (
	Box      = geometry.Box
	Viewport = geometry.Viewport
)

// Element is one image in the host document. Every method reads or writes
// the live element; nothing is cached by the host.
type Element interface {
	// ID is a stable, opaque identity. Registering the same ID twice is a no-op.
	ID() string
	// Box returns the element's current document offset.
	Box(ctx context.Context) (Box, error)
	// Visible reports whether the element is rendered (not display:none).
	Visible(ctx context.Context) (bool, error)
	// Dataset returns the data-* attributes keyed by lowercased suffix.
	Dataset(ctx context.Context) (map[string]string, error)
	// Src returns the src attribute currently applied.
	Src(ctx context.Context) (string, error)
	// SetSrc applies src and fades the element in over fade. A zero fade
	// shows it at once. The fade is not awaited.
	SetSrc(ctx context.Context, src string, fade time.Duration) error
	// RemoveAttr removes a plain attribute such as width or height.
	RemoveAttr(ctx context.Context, name string) error
	// AddClass adds a class name.
	AddClass(ctx context.Context, class string) error
	// Dim makes the element nearly transparent until its source is applied.
	Dim(ctx context.Context) error
}

// Placeholder is a <noscript> standing in for an image until it is
// materialized.
type Placeholder interface {
	ID() string
	Dataset(ctx context.Context) (map[string]string, error)
}

// EventKind names a host viewport event.
type EventKind string

const (
	EventScroll      EventKind = "scroll"
	EventResize      EventKind = "resize"
	EventOrientation EventKind = "orientationchange"
)

// Host is the document the scheduler works on.
type Host interface {
	// Viewport returns a fresh viewport snapshot.
	Viewport(ctx context.Context) (Viewport, error)
	// Images returns every <img> carrying lazyClass.
	Images(ctx context.Context, lazyClass string) ([]Element, error)
	// Placeholders returns every <noscript> carrying lazyClass.
	Placeholders(ctx context.Context, lazyClass string) ([]Placeholder, error)
	// Materialize replaces p with the image described by fragment (sanitized
	// <img> markup) and returns the new element.
	Materialize(ctx context.Context, p Placeholder, fragment string) (Element, error)
	// Subscribe delivers scroll, resize and orientation events from the
	// window and, when non-empty, the secondaryScroll element. The returned
	// func detaches every listener it attached.
	Subscribe(ctx context.Context, secondaryScroll string, fn func(EventKind)) (func(), error)
}

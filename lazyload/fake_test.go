package lazyload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/internal/viewport"
)

type fakeElement struct {
	mu      sync.Mutex
	id      string
	box     Box
	visible bool
	data    map[string]string
	src     string
	fades   []time.Duration
	removed []string
	classes []string
	dimmed  bool
	boxErr  error
}

func newElement(id string, top float64, data map[string]string) *fakeElement {
	return &fakeElement{id: id, box: Box{Top: top, Width: 100, Height: 100}, visible: true, data: data, src: PlaceholderGIF}
}

func (e *fakeElement) ID() string { return e.id }

func (e *fakeElement) Box(context.Context) (Box, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.box, e.boxErr
}

func (e *fakeElement) Visible(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

func (e *fakeElement) Dataset(context.Context) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out, nil
}

func (e *fakeElement) Src(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src, nil
}

func (e *fakeElement) SetSrc(_ context.Context, src string, fade time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
	e.fades = append(e.fades, fade)
	return nil
}

func (e *fakeElement) RemoveAttr(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, name)
	return nil
}

func (e *fakeElement) AddClass(_ context.Context, class string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classes = append(e.classes, class)
	return nil
}

func (e *fakeElement) Dim(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dimmed = true
	return nil
}

func (e *fakeElement) moveTo(top float64) {
	e.mu.Lock()
	e.box.Top = top
	e.mu.Unlock()
}

func (e *fakeElement) currentSrc() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *fakeElement) setCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fades)
}

func (e *fakeElement) lastFade() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fades) == 0 {
		return -1
	}
	return e.fades[len(e.fades)-1]
}

func (e *fakeElement) hasClass(c string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, have := range e.classes {
		if have == c {
			return true
		}
	}
	return false
}

func (e *fakeElement) setTop(top float64) {
	e.mu.Lock()
	e.box.Top = top
	e.mu.Unlock()
}

type fakePlaceholder struct {
	id   string
	data map[string]string
}

func (p *fakePlaceholder) ID() string { return p.id }
func (p *fakePlaceholder) Dataset(context.Context) (map[string]string, error) {
	return p.data, nil
}

type fakeHost struct {
	mu           sync.Mutex
	vp           Viewport
	images       []Element
	placeholders []Placeholder
	fragments    []string
	notify       func(EventKind)
	secondary    string
	unsubscribed bool
	viewports    int
	viewportErr  error
}

func (h *fakeHost) Viewport(context.Context) (Viewport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewports++
	if h.viewportErr != nil {
		return Viewport{}, h.viewportErr
	}
	return h.vp, nil
}

func (h *fakeHost) failViewport(err error) {
	h.mu.Lock()
	h.viewportErr = err
	h.mu.Unlock()
}

func (h *fakeHost) Images(context.Context, string) ([]Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Element(nil), h.images...), nil
}

func (h *fakeHost) Placeholders(context.Context, string) ([]Placeholder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Placeholder(nil), h.placeholders...), nil
}

func (h *fakeHost) Materialize(_ context.Context, p Placeholder, fragment string) (Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fragments = append(h.fragments, fragment)
	data, _ := p.Dataset(context.Background())
	return newElement("img-"+p.ID(), 0, data), nil
}

func (h *fakeHost) Subscribe(_ context.Context, secondary string, fn func(EventKind)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notify = fn
	h.secondary = secondary
	return func() {
		h.mu.Lock()
		h.unsubscribed = true
		h.mu.Unlock()
	}, nil
}

func (h *fakeHost) setViewport(vp Viewport) {
	h.mu.Lock()
	h.vp = vp
	h.mu.Unlock()
}

func (h *fakeHost) emit(kind EventKind) {
	h.mu.Lock()
	fn := h.notify
	h.mu.Unlock()
	fn(kind)
}

type fakeTimer struct {
	d       time.Duration
	ch      chan time.Time
	stopped bool
}

func (f *fakeTimer) C() <-chan time.Time { return f.ch }
func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) newTimer(d time.Duration) viewport.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{d: d, ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, ft)
	return ft
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fireLast fires the most recent timer.
func (c *fakeClock) fireLast(t *testing.T) time.Duration {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatal("no timer started")
	}
	ft := c.timers[len(c.timers)-1]
	ft.ch <- time.Now()
	return ft.d
}

type loadLog struct {
	mu     sync.Mutex
	events []event.Load
	sched  *Scheduler
}

func (l *loadLog) add(e event.Load) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// all waits for queued deliveries, then returns what OnLoad received.
func (l *loadLog) all() []event.Load {
	if l.sched != nil && l.sched.dispatch != nil {
		l.sched.dispatch.idle()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Load(nil), l.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")

package lazyload

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/loadcache"
)

var desktop = Viewport{Height: 600, Width: 800, DevicePixelRatio: 1}

func testScheduler(t *testing.T, host Host, mutate func(*Options)) (*Scheduler, *fakeClock, *loadLog) {
	t.Helper()
	clk := &fakeClock{}
	log := &loadLog{}
	opts := DefaultOptions()
	opts.OnLoad = log.add
	opts.newTimer = clk.newTimer
	if mutate != nil {
		mutate(&opts)
	}
	s := New(host, opts)
	log.sched = s
	t.Cleanup(s.Teardown)
	return s, clk, log
}

func statusOf(t *testing.T, s *Scheduler, id string) ImageStatus {
	t.Helper()
	list, err := s.Images(context.Background())
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	for _, st := range list {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("image %q not tracked", id)
	return ImageStatus{}
}

func TestScheduler_StartLoadsNearImages(t *testing.T) {
	near := newElement("near", 100, map[string]string{"desktop": "d.jpg", "mobile": "m.jpg"})
	far := newElement("far", 5000, map[string]string{"desktop": "far.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{near, far}}
	s, _, log := testScheduler(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := near.currentSrc(); got != "d.jpg" {
		t.Fatalf("near src: got %q, want d.jpg", got)
	}
	if got := near.lastFade(); got != 500*time.Millisecond {
		t.Fatalf("near fade: got %v, want 500ms", got)
	}
	if !near.hasClass("lazyLoadDone") {
		t.Fatal("near image not marked done")
	}
	if got := far.currentSrc(); got != PlaceholderGIF {
		t.Fatalf("far src: got %q, want placeholder", got)
	}
	if st := statusOf(t, s, "far"); st.State != Pending {
		t.Fatalf("far state: got %v, want pending", st.State)
	}
	if !near.dimmed || !far.dimmed {
		t.Fatal("tracked images were not dimmed")
	}

	events := log.all()
	if len(events) != 1 {
		t.Fatalf("load events: got %d, want 1", len(events))
	}
	if events[0].ImageID != "near" || events[0].Src != "d.jpg" || events[0].Forced {
		t.Fatalf("load event: got %+v", events[0])
	}
	if events[0].ID == "" {
		t.Fatal("load event without id")
	}
}

func TestScheduler_ScrollLoadsAfterDebounce(t *testing.T) {
	far := newElement("far", 5000, map[string]string{"desktop": "far.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{far}}
	s, clk, _ := testScheduler(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d := clk.fireLast(t); d != 0 {
		t.Fatalf("first refresh delay: got %v, want 0", d)
	}
	waitFor(t, "initial refresh", func() bool {
		host.mu.Lock()
		defer host.mu.Unlock()
		return host.viewports == 2
	})

	host.setViewport(Viewport{Height: 600, Width: 800, ScrollTop: 4500, DevicePixelRatio: 1})
	for i := 0; i < 3; i++ {
		host.emit(EventScroll)
	}
	waitFor(t, "debounce timers", func() bool { return clk.count() == 4 })

	if got := far.currentSrc(); got != PlaceholderGIF {
		t.Fatalf("loaded before debounce fired: %q", got)
	}
	if d := clk.fireLast(t); d != 100*time.Millisecond {
		t.Fatalf("debounce delay: got %v, want 100ms", d)
	}
	waitFor(t, "far image load", func() bool { return far.currentSrc() == "far.jpg" })
}

func TestScheduler_MustForce(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg", "mustforce": "true"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, log := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if st := statusOf(t, s, "img"); st.State != Pending || el.setCount() != 0 {
		t.Fatalf("mustforce image loaded without LoadNow: %+v", st)
	}

	if err := s.LoadNow(ctx, "img"); err != nil {
		t.Fatalf("load now: %v", err)
	}
	if got := el.currentSrc(); got != "d.jpg" {
		t.Fatalf("src: got %q, want d.jpg", got)
	}
	if got := el.lastFade(); got != 0 {
		t.Fatalf("forced fade: got %v, want 0", got)
	}
	if st := statusOf(t, s, "img"); st.State != Done {
		t.Fatalf("state: got %v, want done", st.State)
	}
	if ev := log.all(); len(ev) != 1 || !ev[0].Forced {
		t.Fatalf("events: got %+v", ev)
	}
}

func TestScheduler_GlobalMustForce(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, _ := testScheduler(t, host, func(o *Options) { o.MustForce = true })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if el.setCount() != 0 {
		t.Fatal("image loaded while MustForce is set")
	}
}

func TestScheduler_SelectionOrder(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg", "mobile": "m.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, _ := testScheduler(t, host, func(o *Options) {
		o.Srcs = []string{"2x", "mobile", "desktop"}
		o.Tests = Tests{"2x": Bool(true), "mobile": Bool(true)}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := el.currentSrc(); got != "m.jpg" {
		t.Fatalf("src: got %q, want m.jpg", got)
	}
}

func TestScheduler_CachedSourceLoadsImmediately(t *testing.T) {
	ctx := context.Background()
	cache := loadcache.NewMemory()
	if err := cache.Set(ctx, "far.jpg", loadcache.LoadedValue); err != nil {
		t.Fatal(err)
	}
	far := newElement("far", 5000, map[string]string{"desktop": "far.jpg"})
	other := newElement("other", 6000, map[string]string{"desktop": "other.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{far, other}}
	s, _, log := testScheduler(t, host, func(o *Options) { o.Cache = cache })

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := far.currentSrc(); got != "far.jpg" {
		t.Fatalf("cached src: got %q, want far.jpg", got)
	}
	if got := far.lastFade(); got != 0 {
		t.Fatalf("cached fade: got %v, want 0", got)
	}
	if other.setCount() != 0 {
		t.Fatal("uncached far image loaded")
	}
	if ev := log.all(); len(ev) != 1 || !ev[0].Forced {
		t.Fatalf("events: got %+v", ev)
	}

	if err := s.LoadNow(ctx, "other"); err != nil {
		t.Fatalf("load now: %v", err)
	}
	if v, _ := cache.Get(ctx, "other.jpg"); v != loadcache.LoadedValue {
		t.Fatalf("cache after load: got %q, want %q", v, loadcache.LoadedValue)
	}
}

func TestScheduler_PromoteCached(t *testing.T) {
	ctx := context.Background()
	cache := loadcache.NewMemory()
	far := newElement("far", 5000, map[string]string{"desktop": "far.jpg"})
	other := newElement("other", 6000, map[string]string{"desktop": "other.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{far, other}}
	s, _, log := testScheduler(t, host, func(o *Options) { o.Cache = cache })

	if n, err := s.PromoteCached(ctx); err != nil || n != 0 {
		t.Fatalf("promote before start: got %d, %v", n, err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if far.setCount() != 0 {
		t.Fatal("far image loaded before it was cached")
	}

	// Another tab records far.jpg.
	if err := cache.Set(ctx, "far.jpg", loadcache.LoadedValue); err != nil {
		t.Fatal(err)
	}
	n, err := s.PromoteCached(ctx)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted: got %d, want 1", n)
	}
	if got := far.currentSrc(); got != "far.jpg" {
		t.Fatalf("far src: got %q, want far.jpg", got)
	}
	if other.setCount() != 0 {
		t.Fatal("uncached image loaded by promotion")
	}
	if st := statusOf(t, s, "far"); st.State != Done {
		t.Fatalf("far state: got %v, want Done", st.State)
	}
	if ev := log.all(); len(ev) != 1 || !ev[0].Forced {
		t.Fatalf("events: got %+v", ev)
	}

	if n, _ := s.PromoteCached(ctx); n != 0 {
		t.Fatalf("second promote: got %d, want 0", n)
	}
}

func TestScheduler_RegisterIdempotent(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg"})
	s, _, _ := testScheduler(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := s.Register(ctx, el)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if id != "img" {
			t.Fatalf("id: got %q, want img", id)
		}
	}
	list, err := s.Images(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("tracked: got %d, want 1", len(list))
	}
}

func TestScheduler_EvaluateIsIdempotent(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, log := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Update(ctx, "img", false); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := s.RefreshAll(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if n := el.setCount(); n != 1 {
		t.Fatalf("SetSrc calls: got %d, want 1", n)
	}
	if n := len(log.all()); n != 1 {
		t.Fatalf("load events: got %d, want 1", n)
	}
}

func TestScheduler_UpdateOnResizeReresolves(t *testing.T) {
	for _, tc := range []struct {
		name           string
		updateOnResize bool
		want           string
	}{
		{"enabled", true, "m.jpg"},
		{"disabled", false, "d.jpg"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			el := newElement("img", 0, map[string]string{"desktop": "d.jpg", "mobile": "m.jpg"})
			host := &fakeHost{vp: desktop, images: []Element{el}}
			s, _, log := testScheduler(t, host, func(o *Options) { o.UpdateOnResize = tc.updateOnResize })
			ctx := context.Background()

			if err := s.Start(ctx); err != nil {
				t.Fatalf("start: %v", err)
			}
			host.setViewport(Viewport{Height: 800, Width: 400, DevicePixelRatio: 1})
			if err := s.RefreshAll(ctx); err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if got := el.currentSrc(); got != tc.want {
				t.Fatalf("src: got %q, want %q", got, tc.want)
			}
			if tc.updateOnResize {
				ev := log.all()
				if len(ev) != 2 || !ev[1].Refresh {
					t.Fatalf("events: got %+v", ev)
				}
			}
		})
	}
}

func TestScheduler_HiddenImages(t *testing.T) {
	for _, tc := range []struct {
		name       string
		loadHidden bool
		want       int
	}{
		{"skipped", false, 0},
		{"loaded", true, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			el := newElement("img", 0, map[string]string{"desktop": "d.jpg"})
			el.visible = false
			host := &fakeHost{vp: desktop, images: []Element{el}}
			s, _, _ := testScheduler(t, host, func(o *Options) { o.LoadHidden = tc.loadHidden })

			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			if got := el.setCount(); got != tc.want {
				t.Fatalf("loads: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScheduler_FailureIsolated(t *testing.T) {
	broken := newElement("broken", 0, map[string]string{"desktop": "b.jpg"})
	broken.boxErr = errBoom
	fine := newElement("fine", 0, map[string]string{"desktop": "f.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{broken, fine}}
	s, _, _ := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := fine.currentSrc(); got != "f.jpg" {
		t.Fatalf("fine src: got %q, want f.jpg", got)
	}
	if st := statusOf(t, s, "broken"); st.State != Pending {
		t.Fatalf("broken state: got %v, want pending", st.State)
	}
	if err := s.Update(ctx, "broken", false); !errors.Is(err, errBoom) {
		t.Fatalf("update error: got %v, want %v", err, errBoom)
	}
}

func TestScheduler_DimensionAttributes(t *testing.T) {
	plain := newElement("plain", 0, map[string]string{"desktop": "p.jpg"})
	sized := newElement("sized", 0, map[string]string{"desktop": "s.jpg", "width": "40", "height": "30"})
	host := &fakeHost{vp: desktop, images: []Element{plain, sized}}
	s, _, _ := testScheduler(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	plain.mu.Lock()
	removed := append([]string(nil), plain.removed...)
	plain.mu.Unlock()
	if !slices.Contains(removed, "width") || !slices.Contains(removed, "height") {
		t.Fatalf("plain removed: got %v, want width and height", removed)
	}
	sized.mu.Lock()
	defer sized.mu.Unlock()
	if len(sized.removed) != 0 {
		t.Fatalf("sized removed: got %v, want none", sized.removed)
	}
}

func TestScheduler_Placeholders(t *testing.T) {
	p := &fakePlaceholder{id: "p1", data: map[string]string{"desktop": "p.jpg", "alt": "a cat"}}
	host := &fakeHost{vp: desktop, placeholders: []Placeholder{p}}
	s, _, log := testScheduler(t, host, func(o *Options) { o.MinHeight = 200 })
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	host.mu.Lock()
	frags := append([]string(nil), host.fragments...)
	host.mu.Unlock()
	if len(frags) != 1 {
		t.Fatalf("fragments: got %d, want 1", len(frags))
	}
	for _, want := range []string{`alt="a cat"`, `class="lazy"`, `height="200"`, `data-desktop="p.jpg"`} {
		if !strings.Contains(frags[0], want) {
			t.Fatalf("fragment %q missing %s", frags[0], want)
		}
	}
	if st := statusOf(t, s, "img-p1"); st.State != Done || st.Src != "p.jpg" {
		t.Fatalf("materialized image: got %+v", st)
	}
	if ev := log.all(); len(ev) != 1 || ev[0].ImageID != "img-p1" {
		t.Fatalf("events: got %+v", ev)
	}

	id, err := s.RegisterPlaceholder(ctx, p)
	if err != nil || id != "img-p1" {
		t.Fatalf("re-register placeholder: got %q, %v", id, err)
	}
	if n := len(host.fragments); n != 1 {
		t.Fatalf("placeholder materialized %d times", n)
	}
}

func TestScheduler_RegisterAfterStart(t *testing.T) {
	host := &fakeHost{vp: desktop}
	s, _, _ := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	el := newElement("late", 10, map[string]string{"desktop": "late.jpg"})
	if _, err := s.Register(ctx, el); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := el.currentSrc(); got != "late.jpg" {
		t.Fatalf("src: got %q, want late.jpg", got)
	}
}

func TestScheduler_MissingSourceStillDone(t *testing.T) {
	el := newElement("img", 0, map[string]string{"mobile": "m.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, log := testScheduler(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if el.setCount() != 0 || len(log.all()) != 0 {
		t.Fatal("source applied without a matching candidate")
	}
	if st := statusOf(t, s, "img"); st.State != Done {
		t.Fatalf("state: got %v, want done", st.State)
	}
}

func TestScheduler_UnknownImage(t *testing.T) {
	s, _, _ := testScheduler(t, nil, nil)
	ctx := context.Background()

	if err := s.LoadNow(ctx, "nope"); !errors.Is(err, ErrUnknownImage) {
		t.Fatalf("load now: got %v, want ErrUnknownImage", err)
	}
	if err := s.Update(ctx, "nope", true); !errors.Is(err, ErrUnknownImage) {
		t.Fatalf("update: got %v, want ErrUnknownImage", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrNoHost) {
		t.Fatalf("start without host: got %v, want ErrNoHost", err)
	}
}

func TestScheduler_Teardown(t *testing.T) {
	el := newElement("img", 5000, map[string]string{"desktop": "d.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, _ := testScheduler(t, host, func(o *Options) { o.SecondaryScroll = "#feed" })
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if host.secondary != "#feed" {
		t.Fatalf("secondary scroll: got %q, want #feed", host.secondary)
	}

	s.Teardown()
	s.Teardown()

	if !host.unsubscribed {
		t.Fatal("host listeners not detached")
	}
	if _, err := s.Register(ctx, newElement("x", 0, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("register after teardown: got %v, want ErrClosed", err)
	}
	if err := s.RefreshAll(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("refresh after teardown: got %v, want ErrClosed", err)
	}
	if got := el.currentSrc(); got != PlaceholderGIF {
		t.Fatalf("image reverted or loaded: %q", got)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after teardown")
	}
}

func TestScheduler_OnLoadCallsBack(t *testing.T) {
	a := newElement("a", 0, map[string]string{"desktop": "a.jpg"})
	b := newElement("b", 5000, map[string]string{"desktop": "b.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{a, b}}

	var s *Scheduler
	hookErr := make(chan error, 1)
	s, _, _ = testScheduler(t, host, func(o *Options) {
		o.OnLoad = func(ev event.Load) {
			if ev.ImageID != "a" {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			hookErr <- s.LoadNow(ctx, "b")
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case err := <-hookErr:
		if err != nil {
			t.Fatalf("LoadNow from OnLoad: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnLoad never ran")
	}
	if got := b.currentSrc(); got != "b.jpg" {
		t.Fatalf("b src: got %q, want b.jpg", got)
	}
}

func TestScheduler_TeardownFromOnLoad(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "d.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}

	var s *Scheduler
	s, _, _ = testScheduler(t, host, func(o *Options) {
		o.OnLoad = func(event.Load) { s.Teardown() }
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Teardown from OnLoad did not stop the loop")
	}
	if _, err := s.Images(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("images after teardown: got %v, want ErrClosed", err)
	}
}

func TestScheduler_ViewportErrorKeepsLastSnapshot(t *testing.T) {
	far := newElement("far", 5000, map[string]string{"desktop": "far.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{far}}
	s, _, _ := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	host.failViewport(errBoom)
	far.moveTo(100)
	if err := s.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := far.currentSrc(); got != "far.jpg" {
		t.Fatalf("src after failed viewport read: got %q, want far.jpg", got)
	}
	vp, err := s.Viewport(ctx)
	if err != nil {
		t.Fatalf("viewport: %v", err)
	}
	if vp != desktop {
		t.Fatalf("snapshot: got %+v, want %+v", vp, desktop)
	}
}

func TestScheduler_RefreshBeforeStartKeepsZeroDelay(t *testing.T) {
	el := newElement("img", 5000, map[string]string{"desktop": "d.jpg"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, clk, _ := testScheduler(t, host, nil)
	ctx := context.Background()

	if err := s.RefreshAll(ctx); err != nil {
		t.Fatalf("refresh before start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d := clk.fireLast(t); d != 0 {
		t.Fatalf("first refresh delay: got %v, want 0", d)
	}
}

func TestOptions_ZeroValueDefaults(t *testing.T) {
	s := New(nil, Options{})
	defer s.Teardown()

	d := DefaultOptions()
	if s.opts.LazyClass != d.LazyClass || s.opts.DoneClass != d.DoneClass || s.opts.Placeholder != d.Placeholder {
		t.Fatalf("classes: got %q/%q/%q", s.opts.LazyClass, s.opts.DoneClass, s.opts.Placeholder)
	}
	if s.opts.ResizeDelay != d.ResizeDelay || !slices.Equal(s.opts.Srcs, d.Srcs) || s.opts.SrcFallback != d.SrcFallback {
		t.Fatalf("delay/srcs: got %v %v %q", s.opts.ResizeDelay, s.opts.Srcs, s.opts.SrcFallback)
	}
	if s.opts.Threshold != 0 || s.opts.FadeSpeed != 0 || s.opts.MinHeight != 0 {
		t.Fatalf("margins: got %v %v %v, want zeros kept", s.opts.Threshold, s.opts.FadeSpeed, s.opts.MinHeight)
	}
}

func TestScheduler_RejectsScriptSource(t *testing.T) {
	el := newElement("img", 0, map[string]string{"desktop": "javascript:alert(1)"})
	host := &fakeHost{vp: desktop, images: []Element{el}}
	s, _, log := testScheduler(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if el.setCount() != 0 || el.currentSrc() != PlaceholderGIF {
		t.Fatalf("script source applied: %q", el.currentSrc())
	}
	if n := len(log.all()); n != 0 {
		t.Fatalf("load events: got %d, want 0", n)
	}
	if st := statusOf(t, s, "img"); st.State != Done {
		t.Fatalf("state: got %v, want done", st.State)
	}
}

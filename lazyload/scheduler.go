// Package lazyload defers loading of off-screen images until they come
// close to the viewport.
//
// A Scheduler tracks images of a Host document. Viewport events are
// debounced into refreshes; on every refresh each tracked image is checked
// against the current viewport snapshot and, once close enough, gets the
// best matching candidate source applied. All scheduler state lives on a
// single loop goroutine: host events, debounce timers and API calls are
// processed one at a time, in arrival order.
package lazyload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/internal/placeholder"
	"github.com/hazyhaar/lazyload/lazyload/internal/source"
	"github.com/hazyhaar/lazyload/lazyload/internal/viewport"
	"github.com/hazyhaar/lazyload/lazyload/loadcache"
)

var (
	// ErrClosed is returned by every operation after Teardown.
	ErrClosed = errors.New("lazyload: scheduler closed")
	// ErrUnknownImage is returned for an ID that was never registered.
	ErrUnknownImage = errors.New("lazyload: unknown image")
	// ErrNoHost is returned when an operation needs the host document.
	ErrNoHost = errors.New("lazyload: no host")
	// ErrNoHistory is returned by the event history endpoint when no
	// EventHistory is configured.
	ErrNoHistory = errors.New("lazyload: no event history")
)

type command struct {
	ctx context.Context
	fn  func(context.Context) error
	err chan error
}

// Scheduler owns the tracked images of one document.
type Scheduler struct {
	opts    Options
	host    Host
	gate    *loadcache.Gate
	tracker *viewport.Tracker
	tests   source.Tests
	mat     *placeholder.Materializer
	logger  *slog.Logger

	// Loop-owned state.
	images       map[string]*image
	order        []string
	placeholders map[string]string // placeholder ID -> image ID
	started      bool
	unsubscribe  func()
	outbox       []event.Load // load events of the current loop step

	dispatch *dispatcher // nil without OnLoad

	cmds   chan command
	events chan EventKind
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a Scheduler for host and starts its loop. host may be nil
// when images are registered by hand; Start and refreshes then use the
// last known viewport.
func New(host Host, opts Options) *Scheduler {
	opts.defaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts: opts,
		host: host,
		gate: loadcache.NewGate(opts.Cache, opts.Logger),
		tracker: viewport.New(viewport.Config{
			Delay:    opts.ResizeDelay,
			NewTimer: opts.newTimer,
		}),
		mat: placeholder.New(placeholder.Options{
			LazyClass:   opts.LazyClass,
			Placeholder: opts.Placeholder,
			AttList:     opts.AttList,
			MinHeight:   opts.MinHeight,
		}),
		logger:       opts.Logger,
		images:       make(map[string]*image),
		placeholders: make(map[string]string),
		cmds:         make(chan command),
		events:       make(chan EventKind, 64),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	s.tests = source.DefaultTests(s.tracker.Current).Merge(opts.Tests)
	if opts.OnLoad != nil {
		s.dispatch = newDispatcher(opts.OnLoad)
	}

	go s.loop(ctx)
	return s
}

// Start runs the initialization sequence against the host: capture the
// viewport, materialize placeholders, register lazy images, subscribe to
// viewport events, evaluate every image once (previously loaded sources
// load at once, without fade) and schedule an immediate refresh.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.host == nil {
		return ErrNoHost
	}
	return s.do(ctx, s.start)
}

func (s *Scheduler) start(ctx context.Context) error {
	if s.started {
		return nil
	}

	vp, err := s.host.Viewport(ctx)
	if err != nil {
		return fmt.Errorf("lazyload: initial viewport: %w", err)
	}
	s.tracker.Seed(vp)

	phs, err := s.host.Placeholders(ctx, s.opts.LazyClass)
	if err != nil {
		return fmt.Errorf("lazyload: list placeholders: %w", err)
	}
	for _, p := range phs {
		if _, err := s.registerPlaceholder(ctx, p); err != nil {
			s.logger.Warn("lazyload: materialize placeholder", "placeholder", p.ID(), "error", err)
		}
	}

	els, err := s.host.Images(ctx, s.opts.LazyClass)
	if err != nil {
		return fmt.Errorf("lazyload: list images: %w", err)
	}
	for _, el := range els {
		if _, err := s.register(ctx, el); err != nil {
			s.logger.Warn("lazyload: register image", "id", el.ID(), "error", err)
		}
	}

	unsub, err := s.host.Subscribe(ctx, s.opts.SecondaryScroll, s.notify)
	if err != nil {
		return fmt.Errorf("lazyload: subscribe: %w", err)
	}
	s.unsubscribe = unsub
	s.started = true

	s.initialPass(ctx)
	s.tracker.Notify()

	s.logger.Info("lazyload: started", "images", len(s.order), "page", s.opts.PageURL)
	return nil
}

// initialPass evaluates every pending image once. Sources already loaded
// in this session are forced.
func (s *Scheduler) initialPass(ctx context.Context) {
	s.cachedPass(ctx, false)
}

// cachedPass visits pending images that are visible (or all of them with
// LoadHidden). Images whose selected source is already in the load cache are
// forced. The rest go through the normal guard unless onlyCached is set. It
// returns the number of forced images.
func (s *Scheduler) cachedPass(ctx context.Context, onlyCached bool) int {
	forced := 0
	for _, id := range s.order {
		img := s.images[id]
		if img.state != Pending {
			continue
		}
		if !s.opts.LoadHidden {
			visible, err := img.el.Visible(ctx)
			if err != nil {
				s.logger.Warn("lazyload: visibility", "id", id, "error", err)
				continue
			}
			if !visible {
				continue
			}
		}
		data, err := img.el.Dataset(ctx)
		if err != nil {
			s.logger.Warn("lazyload: dataset", "id", id, "error", err)
			continue
		}
		force := s.gate.ShouldForceImmediate(ctx, s.selectSource(data))
		if !force && onlyCached {
			continue
		}
		if force {
			forced++
		}
		if err := s.update(ctx, img, force); err != nil {
			s.logger.Warn("lazyload: cached evaluate", "id", id, "error", err)
		}
	}
	return forced
}

// notify is the host event callback. It never blocks the host: when the
// queue is full a refresh is already on its way.
func (s *Scheduler) notify(kind EventKind) {
	select {
	case s.events <- kind:
	default:
	}
}

// Register tracks el and returns its ID. Registering a known ID is a no-op.
// Once the scheduler has started, a new image is evaluated at once.
func (s *Scheduler) Register(ctx context.Context, el Element) (string, error) {
	var id string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.register(ctx, el)
		return err
	})
	return id, err
}

func (s *Scheduler) register(ctx context.Context, el Element) (string, error) {
	if el == nil || el.ID() == "" {
		return "", fmt.Errorf("lazyload: element without identity")
	}
	id := el.ID()
	if _, ok := s.images[id]; ok {
		return id, nil
	}

	img := &image{id: id, el: el, state: Pending}
	if src, err := el.Src(ctx); err == nil {
		img.currentSrc = src
	}
	if err := el.Dim(ctx); err != nil {
		s.logger.Debug("lazyload: dim image", "id", id, "error", err)
	}
	s.images[id] = img
	s.order = append(s.order, id)

	if s.started {
		if err := s.update(ctx, img, false); err != nil {
			s.logger.Warn("lazyload: evaluate new image", "id", id, "error", err)
		}
	}
	return id, nil
}

// RegisterPlaceholder materializes p into an image and tracks it.
func (s *Scheduler) RegisterPlaceholder(ctx context.Context, p Placeholder) (string, error) {
	if s.host == nil {
		return "", ErrNoHost
	}
	var id string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.registerPlaceholder(ctx, p)
		return err
	})
	return id, err
}

func (s *Scheduler) registerPlaceholder(ctx context.Context, p Placeholder) (string, error) {
	if id, ok := s.placeholders[p.ID()]; ok {
		return id, nil
	}
	data, err := p.Dataset(ctx)
	if err != nil {
		return "", fmt.Errorf("lazyload: placeholder dataset: %w", err)
	}
	frag, err := s.mat.Fragment(data)
	if err != nil {
		return "", err
	}
	el, err := s.host.Materialize(ctx, p, frag)
	if err != nil {
		return "", fmt.Errorf("lazyload: materialize: %w", err)
	}
	id, err := s.register(ctx, el)
	if err != nil {
		return "", err
	}
	s.placeholders[p.ID()] = id
	return id, nil
}

// RefreshAll takes a new viewport snapshot now and signals every tracked
// image, as a resize would without the debounce delay.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.tracker.Stop()
		s.refresh(ctx)
		return nil
	})
}

// PromoteCached loads every pending visible image whose selected source is
// already in the load cache, as the initial pass does at Start. It is run
// when a shared cache gains entries written elsewhere. It returns the number
// of images loaded and does nothing before Start.
func (s *Scheduler) PromoteCached(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func(ctx context.Context) error {
		if s.started {
			n = s.cachedPass(ctx, true)
		}
		return nil
	})
	return n, err
}

// LoadNow forces the image to load its selected source at once, bypassing
// the proximity and visibility checks.
func (s *Scheduler) LoadNow(ctx context.Context, id string) error {
	return s.do(ctx, func(ctx context.Context) error {
		img, ok := s.images[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownImage, id)
		}
		return s.checkLocation(ctx, img, true)
	})
}

// Update sends the per-image update signal. A done image re-resolves its
// source; a pending one is checked against the current snapshot unless
// force is set.
func (s *Scheduler) Update(ctx context.Context, id string, force bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		img, ok := s.images[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownImage, id)
		}
		return s.update(ctx, img, force)
	})
}

// Images lists the tracked images in registration order.
func (s *Scheduler) Images(ctx context.Context) ([]ImageStatus, error) {
	var out []ImageStatus
	err := s.do(ctx, func(context.Context) error {
		out = make([]ImageStatus, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, s.images[id].status())
		}
		return nil
	})
	return out, err
}

// Viewport returns the current snapshot.
func (s *Scheduler) Viewport(ctx context.Context) (Viewport, error) {
	var vp Viewport
	err := s.do(ctx, func(context.Context) error {
		vp = s.tracker.Current()
		return nil
	})
	return vp, err
}

// Teardown detaches the host listeners and stops the loop. Tracked images
// keep whatever source they have. Safe to call more than once.
func (s *Scheduler) Teardown() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.logger.Info("lazyload: torn down", "images", len(s.order))
	})
}

// Done is closed once the loop has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// do runs fn on the loop goroutine and waits for its result.
func (s *Scheduler) do(ctx context.Context, fn func(context.Context) error) error {
	c := command{ctx: ctx, fn: fn, err: make(chan error, 1)}
	select {
	case s.cmds <- c:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.err:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if s.dispatch != nil {
			s.dispatch.close()
		}
	}()
	defer s.tracker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-s.cmds:
			err := c.fn(c.ctx)
			s.flushLoads()
			c.err <- err

		case <-s.events:
			s.tracker.Notify()

		case <-s.tracker.TimerC():
			s.tracker.Fired()
			s.refresh(ctx)
			s.flushLoads()
		}
	}
}

// flushLoads hands the events of the finished loop step to the dispatcher.
// They are queued before the step's caller is answered.
func (s *Scheduler) flushLoads() {
	if s.dispatch == nil || len(s.outbox) == 0 {
		return
	}
	s.dispatch.push(s.outbox)
	s.outbox = nil
}

// refresh captures one snapshot and evaluates the targeted images against
// it. A failure on one image never stops the pass.
func (s *Scheduler) refresh(ctx context.Context) {
	if s.host != nil {
		vp, err := s.host.Viewport(ctx)
		if err != nil {
			s.logger.Warn("lazyload: viewport refresh failed, keeping last snapshot", "error", err)
		} else {
			s.tracker.Update(vp)
		}
	}

	for _, id := range s.order {
		img := s.images[id]
		if img.state == Done {
			if !s.opts.UpdateOnResize {
				continue
			}
			if !s.opts.LoadHidden {
				visible, err := img.el.Visible(ctx)
				if err != nil || !visible {
					continue
				}
			}
		}
		if err := s.update(ctx, img, false); err != nil {
			s.logger.Warn("lazyload: evaluate image", "id", id, "error", err)
		}
	}
}

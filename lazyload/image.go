package lazyload

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/lazyload/horosafe"
	"github.com/hazyhaar/lazyload/idgen"
	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/internal/geometry"
	"github.com/hazyhaar/lazyload/lazyload/internal/source"
)

// State is the lifecycle position of a tracked image.
type State int

const (
	// Pending images are evaluated for proximity on every refresh.
	Pending State = iota
	// Done images passed the load guard once. Only their source is
	// re-resolved afterwards.
	Done
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ImageStatus is a point-in-time view of one tracked image.
type ImageStatus struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	Src   string `json:"src,omitempty"`
	Loads int    `json:"loads"`
}

// image is the per-element state machine. It is only touched by the
// scheduler loop.
type image struct {
	id         string
	el         Element
	state      State
	currentSrc string
	loads      int
}

func (img *image) status() ImageStatus {
	return ImageStatus{ID: img.id, State: img.state, Src: img.currentSrc, Loads: img.loads}
}

// update handles the per-image "update" signal: a done image only has its
// source re-resolved, a pending one goes through the load guard.
func (s *Scheduler) update(ctx context.Context, img *image, force bool) error {
	if img.state == Done {
		data, err := img.el.Dataset(ctx)
		if err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
		_, err = s.setSrc(ctx, img, s.selectSource(data), force, data)
		return err
	}
	return s.checkLocation(ctx, img, force)
}

// checkLocation runs the load guard and, when it passes, applies the
// selected source and marks the image done whether or not a source was
// found.
func (s *Scheduler) checkLocation(ctx context.Context, img *image, force bool) error {
	data, err := img.el.Dataset(ctx)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	if !force {
		ok, err := s.guard(ctx, img, data)
		if err != nil || !ok {
			return err
		}
	}

	src := s.selectSource(data)
	if _, err := s.setSrc(ctx, img, src, force, data); err != nil {
		return err
	}
	if src == "" {
		s.logger.Debug("lazyload: no source for image", "id", img.id)
	}

	if s.opts.MinHeight > 0 && !truthy(data["height"]) {
		if err := img.el.RemoveAttr(ctx, "height"); err != nil {
			s.logger.Warn("lazyload: clear placeholder height", "id", img.id, "error", err)
		}
	}

	img.state = Done
	if err := img.el.AddClass(ctx, s.opts.DoneClass); err != nil {
		s.logger.Warn("lazyload: mark done", "id", img.id, "error", err)
	}
	return nil
}

// guard evaluates the non-forced load conditions, short-circuited in order.
func (s *Scheduler) guard(ctx context.Context, img *image, data map[string]string) (bool, error) {
	if !s.opts.UpdateOnResize && img.state != Pending {
		return false, nil
	}
	if !s.opts.LoadHidden {
		visible, err := img.el.Visible(ctx)
		if err != nil {
			return false, fmt.Errorf("visible: %w", err)
		}
		if !visible {
			return false, nil
		}
	}
	box, err := img.el.Box(ctx)
	if err != nil {
		return false, fmt.Errorf("box: %w", err)
	}
	if !geometry.InBounds(box, s.tracker.Current(), s.opts.Threshold, s.opts.ExtraPx) {
		return false, nil
	}
	return !s.opts.MustForce && !truthy(data["mustforce"]), nil
}

func (s *Scheduler) selectSource(data map[string]string) string {
	return source.Select(data, s.opts.Srcs, s.tests, s.opts.SrcFallback)
}

// setSrc applies src when it is non-empty and differs from the current
// one. It reports whether a source was applied.
func (s *Scheduler) setSrc(ctx context.Context, img *image, src string, force bool, data map[string]string) (bool, error) {
	if src == "" || src == img.currentSrc {
		return false, nil
	}
	if err := horosafe.ValidateImageSource(src); err != nil {
		s.logger.Warn("lazyload: source rejected", "id", img.id, "src", src, "error", err)
		return false, nil
	}

	fade := s.opts.FadeSpeed
	if force {
		fade = 0
	}
	if err := img.el.SetSrc(ctx, src, fade); err != nil {
		return false, fmt.Errorf("set src: %w", err)
	}
	refresh := img.state == Done
	img.currentSrc = src
	img.loads++

	// Some hosts fill in width/height when none is given; drop any the
	// author did not ask for.
	for _, attr := range []string{"width", "height"} {
		if truthy(data[attr]) {
			continue
		}
		if err := img.el.RemoveAttr(ctx, attr); err != nil {
			s.logger.Warn("lazyload: remove attribute", "id", img.id, "attr", attr, "error", err)
		}
	}

	s.gate.RecordLoaded(ctx, src)

	s.logger.Debug("lazyload: source applied", "id", img.id, "src", src, "forced", force)
	if s.dispatch != nil {
		s.outbox = append(s.outbox, event.Load{
			ID:        idgen.New(),
			ImageID:   img.id,
			PageURL:   s.opts.PageURL,
			Src:       src,
			Forced:    force,
			Refresh:   refresh,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return true, nil
}

// truthy mirrors how data attribute values read as flags: empty, "false",
// "0" and "null" are false.
func truthy(v string) bool {
	switch v {
	case "", "false", "0", "null":
		return false
	}
	return true
}

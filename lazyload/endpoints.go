package lazyload

import (
	"context"
	"fmt"

	"github.com/hazyhaar/lazyload/horosafe"
	"github.com/hazyhaar/lazyload/kit"
	"github.com/hazyhaar/lazyload/lazyload/event"
)

// Status summarizes a scheduler for the control surfaces.
type Status struct {
	Version  string        `json:"version"`
	PageURL  string        `json:"page_url,omitempty"`
	Viewport Viewport      `json:"viewport"`
	Pending  int           `json:"pending"`
	Done     int           `json:"done"`
	Images   []ImageStatus `json:"images"`
}

// Status returns the tracked images and the current viewport snapshot.
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	st := &Status{Version: Version, PageURL: s.opts.PageURL}
	err := s.do(ctx, func(context.Context) error {
		st.Viewport = s.tracker.Current()
		st.Images = make([]ImageStatus, 0, len(s.order))
		for _, id := range s.order {
			img := s.images[id]
			st.Images = append(st.Images, img.status())
			if img.state == Done {
				st.Done++
			} else {
				st.Pending++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

type imageRequest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

type eventsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type eventsResponse struct {
	Events []event.Load `json:"events"`
}

type ackResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

// endpoints exposes the scheduler operations as transport-neutral kit
// endpoints, shared by the HTTP and MCP surfaces.
type endpoints struct {
	status   kit.Endpoint
	refresh  kit.Endpoint
	loadNow  kit.Endpoint
	update   kit.Endpoint
	viewport kit.Endpoint
	events   kit.Endpoint
}

func (s *Scheduler) endpoints() endpoints {
	mw := func(name string) kit.Middleware { return kit.Logging(s.logger, name) }
	return endpoints{
		status: mw("status")(func(ctx context.Context, _ any) (any, error) {
			return s.Status(ctx)
		}),
		refresh: mw("refresh")(func(ctx context.Context, _ any) (any, error) {
			if err := s.RefreshAll(ctx); err != nil {
				return nil, err
			}
			return &ackResponse{OK: true}, nil
		}),
		loadNow: mw("load_now")(func(ctx context.Context, req any) (any, error) {
			r := req.(*imageRequest)
			if err := horosafe.ValidateIdentifier(r.ID); err != nil {
				return nil, fmt.Errorf("lazyload: image id: %w", err)
			}
			if err := s.LoadNow(ctx, r.ID); err != nil {
				return nil, err
			}
			return &ackResponse{OK: true, ID: r.ID}, nil
		}),
		update: mw("update")(func(ctx context.Context, req any) (any, error) {
			r := req.(*imageRequest)
			if err := horosafe.ValidateIdentifier(r.ID); err != nil {
				return nil, fmt.Errorf("lazyload: image id: %w", err)
			}
			if err := s.Update(ctx, r.ID, r.Force); err != nil {
				return nil, err
			}
			return &ackResponse{OK: true, ID: r.ID}, nil
		}),
		viewport: mw("viewport")(func(ctx context.Context, _ any) (any, error) {
			vp, err := s.Viewport(ctx)
			if err != nil {
				return nil, err
			}
			return &vp, nil
		}),
		events: mw("events")(func(ctx context.Context, req any) (any, error) {
			if s.opts.History == nil {
				return nil, ErrNoHistory
			}
			r := req.(*eventsRequest)
			if r.Limit < 0 || r.Limit > maxEventsLimit {
				return nil, fmt.Errorf("lazyload: events limit %d out of range", r.Limit)
			}
			evs, err := s.opts.History.Recent(ctx, r.Limit)
			if err != nil {
				return nil, fmt.Errorf("lazyload: recent events: %w", err)
			}
			if evs == nil {
				evs = []event.Load{}
			}
			return &eventsResponse{Events: evs}, nil
		}),
	}
}

const maxEventsLimit = 1000

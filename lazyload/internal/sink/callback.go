package sink

import (
	"context"

	"github.com/hazyhaar/lazyload/lazyload/event"
)

// LoadFunc is called for each load event.
type LoadFunc func(ctx context.Context, ev event.Load) error

// Callback delivers events as in-process function calls.
type Callback struct {
	fn LoadFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn LoadFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev event.Load) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }

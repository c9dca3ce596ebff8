// Package sink defines output backends for lazyload load events.
package sink

import (
	"context"

	"github.com/hazyhaar/lazyload/lazyload/event"
)

// Sink delivers load events to a backend (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, ev event.Load) error
	Close() error
}

package lazyload

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/lazyload/dbopen"
	"github.com/hazyhaar/lazyload/lazyload/event"
	"github.com/hazyhaar/lazyload/lazyload/internal/sink"
)

// Sink is the output interface for load events.
type Sink = sink.Sink

// LoadFunc is called for each load event.
type LoadFunc = sink.LoadFunc

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry. retries and
// backoff keep their defaults when zero.
func NewWebhookSink(url string, retries int, backoff time.Duration, logger *slog.Logger) Sink {
	opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
	if retries > 0 {
		opts = append(opts, sink.WithWebhookRetries(retries))
	}
	if backoff > 0 {
		opts = append(opts, sink.WithWebhookBackoff(backoff))
	}
	return sink.NewWebhook(url, opts...)
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn LoadFunc) Sink {
	return sink.NewCallback(fn)
}

// NewSinkRouter fans load events out to every sink.
func NewSinkRouter(logger *slog.Logger, sinks ...Sink) Sink {
	return sink.NewRouter(logger, sinks...)
}

// NewSQLiteSink opens (or creates) the SQLite database at path and
// returns a sink persisting load events in its load_events table. Closing
// the sink flushes pending events and closes the database.
func NewSQLiteSink(path string, logger *slog.Logger) (Sink, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(sink.Schema))
	if err != nil {
		return nil, fmt.Errorf("lazyload: sqlite sink: %w", err)
	}
	return &ownedSQLite{SQLite: sink.NewSQLite(db, sink.WithSQLiteLogger(logger)), db: db}, nil
}

type ownedSQLite struct {
	*sink.SQLite
	db *sql.DB
}

func (o *ownedSQLite) Close() error {
	o.SQLite.Close()
	return o.db.Close()
}

// SinksFromConfig builds the sinks declared in cfg. Stdout sinks write to
// w. On error the sinks already built are closed.
func SinksFromConfig(cfg []SinkConfig, w io.Writer, logger *slog.Logger) ([]Sink, error) {
	out := make([]Sink, 0, len(cfg))
	for _, c := range cfg {
		switch c.Type {
		case "webhook":
			out = append(out, NewWebhookSink(c.URL, c.Retries, c.Backoff, logger))
		case "sqlite":
			s, err := NewSQLiteSink(c.Path, logger)
			if err != nil {
				for _, built := range out {
					built.Close()
				}
				return nil, err
			}
			out = append(out, s)
		default:
			out = append(out, NewStdoutSink(w))
		}
	}
	return out, nil
}

// OnLoadTo returns an OnLoad hook delivering events to s in order from a
// background goroutine, so a slow sink never holds back later load events.
// Events are dropped with a warning when 256 deliveries are queued. The
// goroutine stops when ctx is done.
func OnLoadTo(ctx context.Context, s Sink, logger *slog.Logger) func(event.Load) {
	if logger == nil {
		logger = slog.Default()
	}
	queue := make(chan event.Load, 256)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-queue:
				if err := s.Send(ctx, ev); err != nil {
					logger.Warn("lazyload: deliver load event", "image", ev.ImageID, "error", err)
				}
			}
		}
	}()
	return func(ev event.Load) {
		select {
		case queue <- ev:
		default:
			logger.Warn("lazyload: load event queue full, dropping", "image", ev.ImageID)
		}
	}
}

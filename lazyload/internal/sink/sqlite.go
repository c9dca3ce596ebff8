package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/lazyload/lazyload/event"
)

// Schema is the load_events table written by the SQLite sink.
const Schema = `
CREATE TABLE IF NOT EXISTS load_events (
	id         TEXT PRIMARY KEY,
	image_id   TEXT NOT NULL,
	page_url   TEXT NOT NULL DEFAULT '',
	src        TEXT NOT NULL,
	forced     INTEGER NOT NULL DEFAULT 0,
	refresh    INTEGER NOT NULL DEFAULT 0,
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_load_events_ts ON load_events(timestamp);
`

// SQLite persists load events in batches. Send never blocks on the
// database: events are queued and flushed every interval or when the
// batch is full.
type SQLite struct {
	db       *sql.DB
	logger   *slog.Logger
	interval time.Duration
	ch       chan event.Load
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// SQLiteOption configures a SQLite sink.
type SQLiteOption func(*SQLite)

// WithFlushInterval sets how often queued events are written. Default: 1s.
func WithFlushInterval(d time.Duration) SQLiteOption {
	return func(s *SQLite) { s.interval = d }
}

// WithSQLiteLogger sets the logger for the sink.
func WithSQLiteLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLite creates the sink and starts its flush goroutine. The schema
// must already be applied.
func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLite {
	s := &SQLite{
		db:       db,
		logger:   slog.Default(),
		interval: time.Second,
		ch:       make(chan event.Load, 1000),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.flushLoop()
	return s
}

// Send queues ev. When the queue is full the event is written synchronously.
func (s *SQLite) Send(ctx context.Context, ev event.Load) error {
	select {
	case <-s.stop:
		return fmt.Errorf("sink: sqlite sink closed")
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		s.logger.Warn("sink: sqlite buffer full, sync fallback", "image", ev.ImageID)
		return s.write(ctx, []event.Load{ev})
	}
}

// Close flushes queued events and stops the flush goroutine.
func (s *SQLite) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]event.Load, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_id, page_url, src, forced, refresh, timestamp
		FROM load_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sink: query load events: %w", err)
	}
	defer rows.Close()

	var out []event.Load
	for rows.Next() {
		var ev event.Load
		var forced, refresh int
		if err := rows.Scan(&ev.ID, &ev.ImageID, &ev.PageURL, &ev.Src, &forced, &refresh, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("sink: scan load event: %w", err)
		}
		ev.Forced = forced != 0
		ev.Refresh = refresh != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) write(ctx context.Context, batch []event.Load) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO load_events
		(id, image_id, page_url, src, forced, refresh, timestamp)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sink: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range batch {
		if _, err := stmt.ExecContext(ctx, ev.ID, ev.ImageID, ev.PageURL, ev.Src,
			boolInt(ev.Forced), boolInt(ev.Refresh), ev.Timestamp); err != nil {
			s.logger.Error("sink: insert load event", "error", err, "id", ev.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

func (s *SQLite) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	batch := make([]event.Load, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.write(ctx, batch); err != nil {
			s.logger.Error("sink: flush load events", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-s.stop:
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every statement through slog. Request trace IDs
// set by the control API (kit.WithTraceID) are attached, so a slow cache read
// can be tied to the HTTP or MCP call that caused it.
//
//	db, err := dbopen.Open("lazyload.db", dbopen.WithTrace())
//
// Statements log at Debug, at Warn past the slow threshold and at Error on
// failure. Fast PRAGMA statements are skipped: the cache watcher polls
// PRAGMA data_version.
package trace

import (
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// DefaultSlowThreshold is the duration past which a statement logs at Warn.
const DefaultSlowThreshold = 100 * time.Millisecond

var (
	logger atomic.Pointer[slog.Logger]
	slow   atomic.Int64
)

// SetLogger sets the logger used for statement records. nil restores
// slog.Default().
func SetLogger(l *slog.Logger) { logger.Store(l) }

// SetSlowThreshold sets the Warn threshold. d <= 0 restores the default.
func SetSlowThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultSlowThreshold
	}
	slow.Store(int64(d))
}

func currentLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func init() {
	slow.Store(int64(DefaultSlowThreshold))
	sql.Register(DriverName, &TracingDriver{Driver: &sqlite.Driver{}})
}

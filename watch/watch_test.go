package watch

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lazyload/dbopen"
)

// counter is a detector whose version the test bumps by hand.
type counter struct{ v atomic.Int64 }

func (c *counter) detect(context.Context, *sql.DB) (int64, error) { return c.v.Load(), nil }

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPragmaDataVersion_OtherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	reader, err := dbopen.Open(path, dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS t (v INTEGER)`))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer reader.Close()
	reader.SetMaxOpenConns(1)

	writer, err := dbopen.Open(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer writer.Close()

	ctx := context.Background()
	before, err := PragmaDataVersion(ctx, reader)
	if err != nil {
		t.Fatalf("data_version: %v", err)
	}
	if _, err := writer.Exec(`INSERT INTO t (v) VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	after, err := PragmaDataVersion(ctx, reader)
	if err != nil {
		t.Fatalf("data_version: %v", err)
	}
	if after == before {
		t.Fatalf("data_version: unchanged at %d after a write from another connection", after)
	}
}

func TestOnChange_FiresOnVersionChange(t *testing.T) {
	var c counter
	w := New(nil, Options{Interval: 10 * time.Millisecond, Detector: c.detect})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var fired atomic.Int64
	go w.OnChange(ctx, func(context.Context) error {
		fired.Add(1)
		return nil
	})

	time.Sleep(40 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("fired without change: %d", n)
	}
	c.v.Store(1)
	waitUntil(t, "first action", func() bool { return fired.Load() == 1 })
	if w.Version() != 1 {
		t.Fatalf("version: got %d, want 1", w.Version())
	}
	c.v.Store(2)
	waitUntil(t, "second action", func() bool { return fired.Load() == 2 })
}

func TestOnChange_Debounce(t *testing.T) {
	var c counter
	w := New(nil, Options{
		Interval: 5 * time.Millisecond,
		Debounce: 80 * time.Millisecond,
		Detector: c.detect,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var fired atomic.Int64
	go w.OnChange(ctx, func(context.Context) error {
		fired.Add(1)
		return nil
	})

	for i := int64(1); i <= 5; i++ {
		c.v.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	waitUntil(t, "debounced action", func() bool { return fired.Load() >= 1 })
	time.Sleep(120 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("actions: got %d, want 1", n)
	}
	if w.Version() != 5 {
		t.Fatalf("version: got %d, want 5", w.Version())
	}
}

func TestOnChange_FailedActionRetries(t *testing.T) {
	var c counter
	w := New(nil, Options{Interval: 10 * time.Millisecond, Detector: c.detect})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int64
	go w.OnChange(ctx, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("busy")
		}
		return nil
	})

	c.v.Store(1)
	waitUntil(t, "retry", func() bool { return w.Version() == 1 })
	st := w.Stats()
	if st.Errors < 1 || st.Actions != 1 {
		t.Fatalf("stats: got %+v, want >=1 error and 1 action", st)
	}
}

func TestOnChange_DetectorError(t *testing.T) {
	w := New(nil, Options{
		Interval: 5 * time.Millisecond,
		Detector: func(context.Context, *sql.DB) (int64, error) { return 0, errors.New("locked") },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func(context.Context) error { return nil })
		close(done)
	}()
	waitUntil(t, "errors", func() bool { return w.Stats().Errors >= 2 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnChange did not return after cancel")
	}
	if w.Stats().Actions != 0 {
		t.Fatalf("actions: got %d, want 0", w.Stats().Actions)
	}
}

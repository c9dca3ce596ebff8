// Package source picks which candidate URL an image should load.
package source

import "github.com/hazyhaar/lazyload/lazyload/internal/geometry"

// Test is a named capability check such as "high density screen".
type Test interface {
	Pass() bool
}

// Bool is a Test with a fixed result.
type Bool bool

// Pass implements Test.
func (b Bool) Pass() bool { return bool(b) }

// Func is a Test evaluated fresh on every call.
type Func func() bool

// Pass implements Test. A nil Func fails.
func (f Func) Pass() bool {
	if f == nil {
		return false
	}
	return f()
}

// Tests maps source names to their capability test.
type Tests map[string]Test

// Passes reports whether the test registered under name passes. Unknown
// names fail.
func (t Tests) Passes(name string) bool {
	test, ok := t[name]
	if !ok || test == nil {
		return false
	}
	return test.Pass()
}

// Merge returns a copy of t with every entry of override applied on top.
func (t Tests) Merge(override Tests) Tests {
	out := make(Tests, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// MobileBreakpoint is the viewport width separating "mobile" and "desktop".
const MobileBreakpoint = 600

// DefaultTests returns the stock tests for the "2x", "mobile" and "desktop"
// sources. current is read on every evaluation so the tests follow the
// latest viewport snapshot.
func DefaultTests(current func() geometry.Viewport) Tests {
	return Tests{
		"2x": Func(func() bool { return current().DevicePixelRatio > 1 }),
		"mobile": Func(func() bool {
			return current().Width < MobileBreakpoint
		}),
		"desktop": Func(func() bool {
			return current().Width > MobileBreakpoint
		}),
	}
}

// Select returns the candidate of the first name in srcs whose test passes
// and which has a non-empty candidate. Order in srcs is precedence: the
// first match wins even when a later one would also pass. When nothing
// matches the fallback candidate is returned, which may be empty.
func Select(candidates map[string]string, srcs []string, tests Tests, fallback string) string {
	for _, name := range srcs {
		url := candidates[name]
		if url == "" {
			continue
		}
		if tests.Passes(name) {
			return url
		}
	}
	return candidates[fallback]
}

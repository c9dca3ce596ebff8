package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/lazyload/lazyload/loadcache"
)

// SessionStore is a loadcache.Store backed by the page's sessionStorage,
// so the cache lives exactly as long as the browsing session.
type SessionStore struct {
	page *rod.Page
}

var _ loadcache.Store = (*SessionStore)(nil)

// NewSessionStore wraps page.
func NewSessionStore(page *rod.Page) *SessionStore {
	return &SessionStore{page: page}
}

const storeGetJS = `(k) => {
	try { return JSON.stringify({ ok: true, value: window.sessionStorage.getItem(k) || "" }); }
	catch (e) { return JSON.stringify({ ok: false, value: String(e) }); }
}`

const storeSetJS = `(k, v) => {
	try { window.sessionStorage.setItem(k, v); return JSON.stringify({ ok: true }); }
	catch (e) { return JSON.stringify({ ok: false, value: String(e) }); }
}`

type storeResult struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

// decodeStoreResult maps a storage exception raised by the page
// (sandboxed frames, privacy modes, quota) to loadcache.ErrUnavailable.
func decodeStoreResult(raw string) (string, error) {
	var r storeResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("browser: decode sessionStorage result: %w", err)
	}
	if !r.OK {
		return "", fmt.Errorf("%w: %s", loadcache.ErrUnavailable, r.Value)
	}
	return r.Value, nil
}

// Get returns "" for absent keys.
func (s *SessionStore) Get(ctx context.Context, key string) (string, error) {
	res, err := s.page.Context(ctx).Eval(storeGetJS, key)
	if err != nil {
		return "", fmt.Errorf("browser: sessionStorage get: %w", err)
	}
	return decodeStoreResult(res.Value.Str())
}

func (s *SessionStore) Set(ctx context.Context, key, value string) error {
	res, err := s.page.Context(ctx).Eval(storeSetJS, key, value)
	if err != nil {
		return fmt.Errorf("browser: sessionStorage set: %w", err)
	}
	_, err = decodeStoreResult(res.Value.Str())
	return err
}

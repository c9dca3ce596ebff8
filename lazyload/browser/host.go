package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/lazyload/idgen"
	"github.com/hazyhaar/lazyload/lazyload"
)

// IDAttr carries the identity the host assigns to every tracked element.
const IDAttr = "data-lazyload-id"

const bindingName = "__lazyload_binding"

// Host implements lazyload.Host on a Rod page.
type Host struct {
	page   *rod.Page
	logger *slog.Logger

	bindOnce sync.Once
	bindErr  error
}

var _ lazyload.Host = (*Host)(nil)

// NewHost wraps page.
func NewHost(page *rod.Page, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{page: page, logger: logger}
}

const viewportJS = `() => JSON.stringify({
	height: window.innerHeight,
	width: window.innerWidth,
	scroll_top: window.pageYOffset,
	scroll_left: window.pageXOffset,
	device_pixel_ratio: window.devicePixelRatio || 1
})`

func (h *Host) Viewport(ctx context.Context) (lazyload.Viewport, error) {
	var vp lazyload.Viewport
	res, err := h.page.Context(ctx).Eval(viewportJS)
	if err != nil {
		return vp, fmt.Errorf("browser: viewport: %w", err)
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &vp); err != nil {
		return vp, fmt.Errorf("browser: decode viewport: %w", err)
	}
	return vp, nil
}

func (h *Host) Images(ctx context.Context, lazyClass string) ([]lazyload.Element, error) {
	els, err := h.tagged(ctx, "img."+lazyClass)
	if err != nil {
		return nil, err
	}
	out := make([]lazyload.Element, 0, len(els))
	for _, e := range els {
		out = append(out, &Element{id: e.id, el: e.el})
	}
	return out, nil
}

func (h *Host) Placeholders(ctx context.Context, lazyClass string) ([]lazyload.Placeholder, error) {
	els, err := h.tagged(ctx, "noscript."+lazyClass)
	if err != nil {
		return nil, err
	}
	out := make([]lazyload.Placeholder, 0, len(els))
	for _, e := range els {
		out = append(out, &Placeholder{id: e.id, el: e.el})
	}
	return out, nil
}

type taggedElement struct {
	id string
	el *rod.Element
}

// tagged returns the elements matching selector, giving each an IDAttr
// on first sight.
func (h *Host) tagged(ctx context.Context, selector string) ([]taggedElement, error) {
	els, err := h.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %s: %w", selector, err)
	}
	out := make([]taggedElement, 0, len(els))
	for _, el := range els {
		el = el.Context(ctx)
		id, err := el.Attribute(IDAttr)
		if err != nil {
			return nil, fmt.Errorf("browser: read %s: %w", IDAttr, err)
		}
		if id == nil || *id == "" {
			fresh := idgen.Image()
			if _, err := el.Eval(`(name, id) => this.setAttribute(name, id)`, IDAttr, fresh); err != nil {
				return nil, fmt.Errorf("browser: tag element: %w", err)
			}
			id = &fresh
		}
		out = append(out, taggedElement{id: *id, el: el})
	}
	return out, nil
}

const materializeJS = `(attr, id, html, newID) => {
	const ns = document.querySelector('noscript[' + attr + '="' + id + '"]');
	if (!ns) return false;
	const t = document.createElement('template');
	t.innerHTML = html;
	const img = t.content.firstElementChild;
	if (!img) return false;
	img.setAttribute(attr, newID);
	ns.replaceWith(img);
	return true;
}`

func (h *Host) Materialize(ctx context.Context, p lazyload.Placeholder, fragment string) (lazyload.Element, error) {
	newID := idgen.Image()
	res, err := h.page.Context(ctx).Eval(materializeJS, IDAttr, p.ID(), fragment, newID)
	if err != nil {
		return nil, fmt.Errorf("browser: materialize %s: %w", p.ID(), err)
	}
	if !res.Value.Bool() {
		return nil, fmt.Errorf("browser: materialize %s: placeholder gone or empty fragment", p.ID())
	}
	el, err := h.page.Context(ctx).Element(attrSelector("img", newID))
	if err != nil {
		return nil, fmt.Errorf("browser: find materialized image: %w", err)
	}
	return &Element{id: newID, el: el}, nil
}

const subscribeJS = `(binding, secondary) => {
	if (window.__lazyload_detach) window.__lazyload_detach();
	const send = (e) => { try { window[binding](e.type); } catch (_) {} };
	const targets = [[window, ['scroll', 'resize', 'orientationchange']]];
	const extra = secondary ? document.querySelector(secondary) : null;
	if (extra) targets.push([extra, ['scroll', 'resize', 'orientationchange']]);
	for (const [t, kinds] of targets) for (const k of kinds) t.addEventListener(k, send, { passive: true });
	window.__lazyload_detach = () => {
		for (const [t, kinds] of targets) for (const k of kinds) t.removeEventListener(k, send);
		delete window.__lazyload_detach;
	};
	return !!extra || !secondary;
}`

// Subscribe forwards window (and secondaryScroll element) viewport events
// to fn through a CDP runtime binding. fn runs on the event goroutine.
func (h *Host) Subscribe(ctx context.Context, secondaryScroll string, fn func(lazyload.EventKind)) (func(), error) {
	h.bindOnce.Do(func() {
		h.bindErr = proto.RuntimeAddBinding{Name: bindingName}.Call(h.page)
	})
	if h.bindErr != nil {
		return nil, fmt.Errorf("browser: add binding: %w", h.bindErr)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	wait := h.page.Context(listenCtx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		fn(lazyload.EventKind(e.Payload))
	})
	go wait()

	res, err := h.page.Context(ctx).Eval(subscribeJS, bindingName, secondaryScroll)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("browser: attach listeners: %w", err)
	}
	if !res.Value.Bool() {
		h.logger.Warn("browser: secondary scroll element not found", "selector", secondaryScroll)
	}

	return func() {
		cancel()
		detachCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if _, err := h.page.Context(detachCtx).Eval(`() => window.__lazyload_detach && window.__lazyload_detach()`); err != nil {
			h.logger.Debug("browser: detach listeners", "error", err)
		}
	}, nil
}

// Element is a tracked <img> on the page.
type Element struct {
	id string
	el *rod.Element
}

var _ lazyload.Element = (*Element)(nil)

func (e *Element) ID() string { return e.id }

const boxJS = `() => {
	const r = this.getBoundingClientRect();
	return JSON.stringify({
		top: r.top + window.pageYOffset,
		left: r.left + window.pageXOffset,
		width: r.width,
		height: r.height
	});
}`

func (e *Element) Box(ctx context.Context) (lazyload.Box, error) {
	var box lazyload.Box
	res, err := e.el.Context(ctx).Eval(boxJS)
	if err != nil {
		return box, fmt.Errorf("browser: box: %w", err)
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &box); err != nil {
		return box, fmt.Errorf("browser: decode box: %w", err)
	}
	return box, nil
}

// Visible reports whether the element takes up layout space.
func (e *Element) Visible(ctx context.Context) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`() => !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length)`)
	if err != nil {
		return false, fmt.Errorf("browser: visible: %w", err)
	}
	return res.Value.Bool(), nil
}

func (e *Element) Dataset(ctx context.Context) (map[string]string, error) {
	return dataset(ctx, e.el)
}

func (e *Element) Src(ctx context.Context) (string, error) {
	src, err := e.el.Context(ctx).Attribute("src")
	if err != nil {
		return "", fmt.Errorf("browser: src: %w", err)
	}
	if src == nil {
		return "", nil
	}
	return *src, nil
}

const setSrcJS = `(src, fade) => {
	this.src = src;
	if (fade > 0) {
		this.style.transition = 'opacity ' + fade + 'ms';
		requestAnimationFrame(() => { this.style.opacity = '1'; });
	} else {
		this.style.transition = '';
		this.style.opacity = '1';
	}
}`

func (e *Element) SetSrc(ctx context.Context, src string, fade time.Duration) error {
	if _, err := e.el.Context(ctx).Eval(setSrcJS, src, fade.Milliseconds()); err != nil {
		return fmt.Errorf("browser: set src: %w", err)
	}
	return nil
}

func (e *Element) RemoveAttr(ctx context.Context, name string) error {
	if _, err := e.el.Context(ctx).Eval(`(name) => this.removeAttribute(name)`, name); err != nil {
		return fmt.Errorf("browser: remove %s: %w", name, err)
	}
	return nil
}

func (e *Element) AddClass(ctx context.Context, class string) error {
	if _, err := e.el.Context(ctx).Eval(`(c) => this.classList.add(c)`, class); err != nil {
		return fmt.Errorf("browser: add class: %w", err)
	}
	return nil
}

func (e *Element) Dim(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(`() => { this.style.opacity = '0.01'; }`); err != nil {
		return fmt.Errorf("browser: dim: %w", err)
	}
	return nil
}

// Placeholder is a <noscript> awaiting materialization.
type Placeholder struct {
	id string
	el *rod.Element
}

var _ lazyload.Placeholder = (*Placeholder)(nil)

func (p *Placeholder) ID() string { return p.id }

func (p *Placeholder) Dataset(ctx context.Context) (map[string]string, error) {
	return dataset(ctx, p.el)
}

const datasetJS = `() => JSON.stringify(Object.fromEntries(
	Array.from(this.attributes)
		.filter(a => a.name.startsWith('data-'))
		.map(a => [a.name.slice(5), a.value])
))`

func dataset(ctx context.Context, el *rod.Element) (map[string]string, error) {
	res, err := el.Context(ctx).Eval(datasetJS)
	if err != nil {
		return nil, fmt.Errorf("browser: dataset: %w", err)
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(res.Value.Str()), &data); err != nil {
		return nil, fmt.Errorf("browser: decode dataset: %w", err)
	}
	return cleanDataset(data), nil
}

// cleanDataset drops the host's own identity attribute.
func cleanDataset(data map[string]string) map[string]string {
	delete(data, strings.TrimPrefix(IDAttr, "data-"))
	if data == nil {
		data = map[string]string{}
	}
	return data
}

func attrSelector(tag, id string) string {
	return fmt.Sprintf(`%s[%s="%s"]`, tag, IDAttr, strings.ReplaceAll(id, `"`, `\"`))
}

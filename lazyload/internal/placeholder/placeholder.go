// Package placeholder turns <noscript class="lazy" data-...> placeholders
// into real <img> elements the scheduler can track, either in a live page
// (as a sanitized HTML fragment) or ahead of time in served markup.
package placeholder

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Options describes how placeholders are materialized.
type Options struct {
	LazyClass   string
	Placeholder string   // neutral src shown until the real source loads
	AttList     []string // data attributes promoted to real attributes
	MinHeight   int      // height applied when none was declared; 0 disables
}

// Materializer builds sanitized image elements from placeholder data.
type Materializer struct {
	opts   Options
	policy *bluemonday.Policy
}

// New creates a Materializer.
func New(opts Options) *Materializer {
	return &Materializer{opts: opts, policy: newPolicy(opts.AttList)}
}

// newPolicy only lets through an <img> with the promoted attributes, data
// attributes and http(s), relative or data:image URLs.
func newPolicy(attList []string) *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("src", "class", "height").OnElements("img")
	for _, a := range attList {
		if a == "" || strings.HasPrefix(strings.ToLower(a), "on") {
			continue
		}
		p.AllowAttrs(a).OnElements("img")
	}
	p.AllowDataAttributes()
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(true)
	p.AllowDataURIImages()
	return p
}

// Attrs returns the attributes of the image materialized from data, where
// data maps data-attribute names (without the "data-" prefix) to values.
// Promoted attributes come first in AttList order, then every data
// attribute, the lazy class, the placeholder src and, when configured and
// no height was declared, the minimum height.
func (m *Materializer) Attrs(data map[string]string) []html.Attribute {
	var attrs []html.Attribute
	set := func(key, val string) {
		for i := range attrs {
			if attrs[i].Key == key {
				attrs[i].Val = val
				return
			}
		}
		attrs = append(attrs, html.Attribute{Key: key, Val: val})
	}

	for _, name := range m.opts.AttList {
		if v := data[name]; v != "" {
			set(name, v)
		}
	}

	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		set("data-"+k, data[k])
	}

	set("class", addClass(attrValue(attrs, "class"), m.opts.LazyClass))
	set("src", m.opts.Placeholder)
	if attrValue(attrs, "height") == "" && m.opts.MinHeight > 0 {
		set("height", strconv.Itoa(m.opts.MinHeight))
	}
	return attrs
}

// Fragment renders the sanitized <img> markup for data.
func (m *Materializer) Fragment(data map[string]string) (string, error) {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Img, Data: "img", Attr: m.Attrs(data)}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("placeholder: render: %w", err)
	}
	return m.policy.Sanitize(buf.String()), nil
}

// node returns the sanitized image as a parsed node ready for insertion.
func (m *Materializer) node(data map[string]string) (*html.Node, error) {
	frag, err := m.Fragment(data)
	if err != nil {
		return nil, err
	}
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(frag), body)
	if err != nil {
		return nil, fmt.Errorf("placeholder: parse fragment: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			return n, nil
		}
	}
	return nil, fmt.Errorf("placeholder: sanitized fragment has no img")
}

// Rewrite copies the HTML document from r to w with every lazy noscript
// placeholder replaced by its materialized image. It returns how many
// placeholders were replaced.
func (m *Materializer) Rewrite(r io.Reader, w io.Writer) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("placeholder: parse: %w", err)
	}

	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Noscript &&
			hasClass(attrValue(n.Attr, "class"), m.opts.LazyClass) {
			found = append(found, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, ns := range found {
		img, err := m.node(DataAttrs(ns.Attr))
		if err != nil {
			return 0, err
		}
		img.Parent, img.PrevSibling, img.NextSibling = nil, nil, nil
		ns.Parent.InsertBefore(img, ns)
		ns.Parent.RemoveChild(ns)
	}

	if err := html.Render(w, doc); err != nil {
		return 0, fmt.Errorf("placeholder: render document: %w", err)
	}
	return len(found), nil
}

// DataAttrs extracts data-* attributes keyed by their lowercased suffix.
func DataAttrs(attrs []html.Attribute) map[string]string {
	out := make(map[string]string)
	for _, a := range attrs {
		if strings.HasPrefix(a.Key, "data-") && len(a.Key) > len("data-") {
			out[strings.ToLower(strings.TrimPrefix(a.Key, "data-"))] = a.Val
		}
	}
	return out
}

func attrValue(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(list, class string) bool {
	if class == "" {
		return false
	}
	for _, c := range strings.Fields(list) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(list, class string) string {
	if class == "" || hasClass(list, class) {
		return list
	}
	if list == "" {
		return class
	}
	return list + " " + class
}

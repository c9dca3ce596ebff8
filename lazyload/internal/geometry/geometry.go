// Package geometry decides whether an element is close enough to the
// viewport to start loading.
package geometry

import (
	"regexp"
	"strings"
)

// Box is the element's document offset as reported by the host layout.
type Box struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the visible rectangle plus scroll offsets, in CSS pixels.
type Viewport struct {
	Height           float64 `json:"height"`
	Width            float64 `json:"width"`
	ScrollTop        float64 `json:"scroll_top"`
	ScrollLeft       float64 `json:"scroll_left"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

// InBounds reports whether box starts before the bottom and right edges of
// vp extended by threshold+extra pixels.
//
// Elements above or left of the viewport are in bounds: once an image has
// been scrolled past it stays eligible, so fast scrolling never leaves it
// stuck on the placeholder.
func InBounds(box Box, vp Viewport, threshold, extra float64) bool {
	margin := threshold + extra
	if box.Top >= vp.ScrollTop+vp.Height+margin {
		return false
	}
	return box.Left < vp.ScrollLeft+vp.Width+margin
}

// PlatformRule adds Px to the load margin when Pattern matches the
// lowercased user agent.
type PlatformRule struct {
	Pattern string  `yaml:"pattern" json:"pattern"`
	Px      float64 `yaml:"px" json:"px"`
}

// DefaultPlatformRules compensates for the toolbar height iPhone and iPod
// Safari leave out of window.innerHeight.
var DefaultPlatformRules = []PlatformRule{{Pattern: "iphone|ipod", Px: 60}}

// PlatformExtra returns the Px of the first rule matching userAgent, or 0.
// Rules with an invalid pattern are skipped.
func PlatformExtra(userAgent string, rules []PlatformRule) float64 {
	ua := strings.ToLower(userAgent)
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			continue
		}
		if re.MatchString(ua) {
			return r.Px
		}
	}
	return 0
}

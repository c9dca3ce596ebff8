// Package event defines what lazyload emits when an image source is
// applied. Consumers import it to receive load notifications from sinks.
package event

// Load is emitted once per applied source.
type Load struct {
	ID        string `json:"id"`       // UUIDv7
	ImageID   string `json:"image_id"` // tracked image identity
	PageURL   string `json:"page_url,omitempty"`
	Src       string `json:"src"`
	Forced    bool   `json:"forced"`            // loadNow or cache hit: applied without fade
	Refresh   bool   `json:"refresh,omitempty"` // source swapped on an already loaded image
	Timestamp int64  `json:"timestamp"`         // epoch milliseconds
}

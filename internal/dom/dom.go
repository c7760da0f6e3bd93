// Package dom defines the page model the speed controller runs against.
// Every read is fallible: the comma-ok result is false when the underlying
// element is detached, cross-origin, or otherwise inaccessible. Callers
// treat a failed read as "absent" and move on — no DOM access ever panics
// or returns an error that stops a scan.
//
// Two implementations exist: cdppage (live Chrome tab over CDP) and
// domtest (in-memory fake for engine tests).
package dom

// NodeID is a stable synthetic identifier assigned by the page binding
// the first time it surfaces an element. IDs are never reused within a
// page's lifetime, so a stale ID simply fails the Contains check.
type NodeID string

// Rect is an element's rendered box in CSS pixels.
type Rect struct {
	X, Y, W, H float64
}

// Area returns W*H. Zero for degenerate boxes.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersects reports whether two rects overlap by any positive amount.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Style is the subset of computed style the eligibility predicates need.
type Style struct {
	Display    string
	Visibility string
	Opacity    float64
}

// HTMLMediaElement.readyState values.
const (
	HaveNothing     = 0
	HaveMetadata    = 1
	HaveCurrentData = 2
	HaveFutureData  = 3
	HaveEnoughData  = 4
)

// MediaState is a snapshot of a media element's playback state.
type MediaState struct {
	ReadyState  int
	Paused      bool
	Ended       bool
	CurrentTime float64
	Duration    float64 // +Inf for unbounded (live) streams
	Rate        float64
}

// Node is one element in a document tree.
type Node interface {
	ID() NodeID
	// Tag returns the lowercase tag name.
	Tag() (string, bool)
	Attr(name string) (string, bool)
	Children() []Node
	// ShadowRoot returns the element's open shadow root, if any.
	ShadowRoot() (Node, bool)
	// Box returns the rendered bounding box.
	Box() (Rect, bool)
	Style() (Style, bool)
	// Media returns playback state; ok is false for non-media elements.
	Media() (MediaState, bool)
	// SetRate sets playbackRate on a media element.
	SetRate(rate float64) error
}

// Document is one document tree: the top-level page or a same-origin frame.
type Document interface {
	Root() (Node, bool)
	URL() string
	// Frames returns reachable same-origin subdocuments. Cross-origin and
	// detached frames are omitted, never reported as errors.
	Frames() []Document
	// Contains reports whether the identified element is still attached
	// to this document or any of its reachable subdocuments.
	Contains(id NodeID) bool
}

// EventKind names a per-element media event the controller can subscribe to.
type EventKind string

const (
	EventPlaying    EventKind = "playing"
	EventRateChange EventKind = "ratechange"
)

// Event is a per-element media event delivery.
type Event struct {
	Kind EventKind
	Node NodeID
	// Rate carries the element's playbackRate for ratechange events.
	Rate float64
}

// KeyEvent is a capture-phase keydown seen at the document level.
type KeyEvent struct {
	Key              string
	Ctrl, Shift, Alt bool
	// TextEntry is true when focus was inside an input, textarea, select,
	// or contenteditable region at dispatch time.
	TextEntry bool
}

// Unlisten removes a subscription. Safe to call more than once.
type Unlisten func()

// Overlay corner/center positions.
const (
	PosTopLeft     = "top-left"
	PosTopRight    = "top-right"
	PosBottomLeft  = "bottom-left"
	PosBottomRight = "bottom-right"
	PosCenter      = "center"
)

// OverlaySpec describes the single speed indicator.
type OverlaySpec struct {
	Target   NodeID
	Position string
	Text     string
}

// Page is the full surface a controller drives. It embeds the top-level
// Document; registration methods may fail when the underlying observer
// machinery is unavailable, in which case the controller degrades to
// timer-driven operation.
type Page interface {
	Document

	// Visible reports whether the tab is currently visible.
	Visible() bool
	// Viewport returns the visual viewport rect in the same coordinate
	// space as Node.Box.
	Viewport() (Rect, bool)

	// OnMutation fires on any DOM mutation anywhere in the document,
	// including subtree replacements from SPA route changes.
	OnMutation(fn func()) (Unlisten, error)
	// OnVisibility fires when the tab transitions hidden/visible.
	OnVisibility(fn func(visible bool)) (Unlisten, error)
	// OnKey fires for capture-phase keydown events.
	OnKey(fn func(KeyEvent)) (Unlisten, error)
	// Listen subscribes to a media event on one element.
	Listen(id NodeID, kind EventKind, fn func(Event)) (Unlisten, error)

	ShowOverlay(spec OverlaySpec) error
	RemoveOverlay()
}

package controller

import (
	"strings"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// Discovered is one media element found during a scan, with the document
// context the eligibility filter needs.
type Discovered struct {
	Node dom.Node
	// InTopDoc is true when the element lives in the page's top-level
	// document rather than an embedded subdocument.
	InTopDoc bool
}

// playerContainerHints match class/id naming conventions of common player
// wrappers. Used as a fallback for custom elements that expose playback
// state without a <video> tag in the light tree.
var playerContainerHints = []string{
	"player", "video-js", "jwplayer", "jw-video", "plyr", "vjs-tech",
	"html5-video", "shaka-video",
}

// discoverAll enumerates every playable media element reachable from the
// page: descendant traversal, shadow trees, same-origin subdocuments, and
// the player-container heuristic. Results are deduplicated and returned in
// document order (depth first, subdocuments after the owning document).
// Each source is fault-isolated: one inaccessible frame or element never
// stops the rest of the scan.
func discoverAll(page dom.Page) []Discovered {
	var out []Discovered
	seen := map[dom.NodeID]bool{}

	add := func(n dom.Node, top bool) {
		if n == nil || seen[n.ID()] {
			return
		}
		seen[n.ID()] = true
		out = append(out, Discovered{Node: n, InTopDoc: top})
	}

	if root, ok := page.Root(); ok {
		walkMedia(root, true, add)
	}
	for _, frame := range page.Frames() {
		root, ok := frame.Root()
		if !ok {
			continue
		}
		walkMedia(root, false, add)
	}
	return out
}

// walkMedia visits an element tree depth first, descending into open
// shadow roots, and reports media elements to add.
func walkMedia(n dom.Node, top bool, add func(dom.Node, bool)) {
	if n == nil {
		return
	}
	if isMediaElement(n) {
		add(n, top)
	}
	if shadow, ok := n.ShadowRoot(); ok {
		walkMedia(shadow, top, add)
	}
	for _, c := range n.Children() {
		walkMedia(c, top, add)
	}
}

// isMediaElement recognizes <video>/<audio> tags, plus the heuristic
// layer: an element named like a player container that reports playback
// state is treated as a media element even without the tag.
func isMediaElement(n dom.Node) bool {
	tag, ok := n.Tag()
	if ok && (tag == "video" || tag == "audio") {
		return true
	}
	if !looksLikePlayerContainer(n) {
		return false
	}
	_, ok = n.Media()
	return ok
}

func looksLikePlayerContainer(n dom.Node) bool {
	for _, attr := range [...]string{"class", "id"} {
		v, ok := n.Attr(attr)
		if !ok || v == "" {
			continue
		}
		v = strings.ToLower(v)
		for _, hint := range playerContainerHints {
			if strings.Contains(v, hint) {
				return true
			}
		}
	}
	return false
}

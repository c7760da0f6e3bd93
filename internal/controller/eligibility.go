package controller

import (
	"math"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// Geometry thresholds. The candidate threshold approximates the smallest
// plausible 16:9 main player and is deliberately coarser than the bare
// visibility minimum, so grid thumbnails that are technically visible do
// not qualify.
const (
	minVisibleWidth  = 200.0
	minVisibleHeight = 150.0

	playerMinWidth  = 380.0
	playerMinHeight = 214.0
)

// Every predicate here is total: any failed DOM read means false, never a
// panic or an error.

// isMeaningfullyVisible reports whether the element is rendered, not
// hidden by style, and at least minW x minH.
func isMeaningfullyVisible(n dom.Node, minW, minH float64) bool {
	st, ok := n.Style()
	if !ok {
		return false
	}
	if st.Display == "none" || st.Visibility == "hidden" || st.Opacity < 0.01 {
		return false
	}
	box, ok := n.Box()
	if !ok {
		return false
	}
	return box.W >= minW && box.H >= minH
}

// isLive reports whether the element carries an unbounded-duration stream.
// Live streams are excluded from rate control and primary selection.
func isLive(n dom.Node) bool {
	m, ok := n.Media()
	if !ok {
		return false
	}
	return math.IsInf(m.Duration, 1)
}

// isLikelyMainPlayer reports whether the element has loaded metadata, has
// not ended, and is not sitting paused at time zero — the signature of an
// unstarted decoy or preview.
func isLikelyMainPlayer(n dom.Node) bool {
	m, ok := n.Media()
	if !ok {
		return false
	}
	if m.ReadyState < dom.HaveMetadata || m.Ended {
		return false
	}
	if m.Paused && m.CurrentTime == 0 {
		return false
	}
	return true
}

// isCandidate applies the coarse eligibility filter: top-document, not
// live, not ended, and visible at main-player scale.
func (t *trackedVideo) isCandidate() bool {
	if !t.inTopDoc {
		return false
	}
	m, ok := t.node.Media()
	if !ok || m.Ended {
		return false
	}
	if math.IsInf(m.Duration, 1) {
		return false
	}
	return isMeaningfullyVisible(t.node, playerMinWidth, playerMinHeight)
}

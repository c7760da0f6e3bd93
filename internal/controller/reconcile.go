package controller

import (
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// primaryState makes the reconciliation machine explicit instead of
// leaving it implied across event handlers. Stale is transient: a pass
// that marks the primary stale always resolves it before returning.
type primaryState int

const (
	stateUnset primaryState = iota
	stateActive
	stateStale
)

func (s primaryState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateStale:
		return "stale"
	default:
		return "unset"
	}
}

// reconcileLocked is one reconciliation pass: re-validate the current
// primary against the candidate set and perform at most one transition.
func (c *Controller) reconcileLocked() {
	cands := c.candidatesLocked()

	if c.primary != "" {
		cur := c.tracked[c.primary]
		if cur == nil || !cur.isCandidate() {
			c.state = stateStale
		}
	}

	next := selectPrimary(cands)
	switch {
	case next == nil:
		if c.primary != "" || c.state != stateUnset {
			c.transitionLocked(nil)
		}
	case next.id != c.primary:
		c.transitionLocked(next)
	default:
		c.state = stateActive
		c.refreshOverlayLocked()
	}
}

func (c *Controller) candidatesLocked() []*trackedVideo {
	var out []*trackedVideo
	for _, id := range c.order {
		if t := c.tracked[id]; t != nil && t.isCandidate() {
			out = append(out, t)
		}
	}
	return out
}

// transitionLocked is the only mutation point for the primary reference.
// Old state is detached fully before the new primary is installed, so no
// two overlays ever coexist, even transiently.
func (c *Controller) transitionLocked(next *trackedVideo) {
	if c.overlayShown {
		c.page.RemoveOverlay()
		c.overlayShown = false
	}

	old := c.primary
	if next == nil {
		c.primary = ""
		c.state = stateUnset
		if old != "" {
			c.log.Info("primary cleared", "was", old)
			c.notifyLocked(Notice{Kind: NoticePrimary})
		}
		return
	}

	c.primary = next.id
	c.state = stateActive
	c.applyRateLocked()
	c.refreshOverlayLocked()
	c.log.Info("primary video", "node", next.id, "was", old, "rate", c.target)
	c.notifyLocked(Notice{Kind: NoticePrimary, Primary: next.id, Speed: c.target})
}

// refreshOverlayLocked enforces the indicator contract: exactly one
// overlay, present iff a primary exists, the indicator is enabled, and
// the primary intersects the viewport.
func (c *Controller) refreshOverlayLocked() {
	t := c.tracked[c.primary]
	want := t != nil && c.showIndicator && c.inViewportLocked(t)
	if !want {
		if c.overlayShown {
			c.page.RemoveOverlay()
			c.overlayShown = false
			c.notifyLocked(Notice{Kind: NoticeOverlay})
		}
		return
	}

	spec := dom.OverlaySpec{
		Target:   t.id,
		Position: c.position,
		Text:     FormatSpeed(c.target),
	}
	if err := c.page.ShowOverlay(spec); err != nil {
		c.log.Debug("show overlay", "err", err)
		return
	}
	if !c.overlayShown {
		c.notifyLocked(Notice{Kind: NoticeOverlay, OverlayShown: true, Speed: c.target})
	}
	c.overlayShown = true
}

func (c *Controller) inViewportLocked(t *trackedVideo) bool {
	box, ok := t.node.Box()
	if !ok {
		return false
	}
	vp, ok := c.page.Viewport()
	if !ok {
		return false
	}
	return box.Intersects(vp)
}

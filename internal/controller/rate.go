package controller

import (
	"math"
	"strconv"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// FormatSpeed renders a rate for the indicator: one decimal, trailing "x".
func FormatSpeed(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64) + "x"
}

// applyRateLocked reapplies the target rate to the primary element if the
// live rate has drifted past epsilon. Non-primary videos are never touched
// — adjusting a decoy or ad would have audible side effects. Live streams
// are skipped: their rate is not meaningfully adjustable.
func (c *Controller) applyRateLocked() {
	t := c.tracked[c.primary]
	if t == nil || isLive(t.node) {
		return
	}
	m, ok := t.node.Media()
	if !ok {
		return
	}
	if math.Abs(m.Rate-c.target) <= c.cfg.RateEpsilon {
		return
	}
	if err := t.node.SetRate(c.target); err != nil {
		c.log.Debug("set rate", "node", t.id, "err", err)
		return
	}
	c.log.Debug("rate applied", "node", t.id, "rate", c.target, "was", m.Rate)
}

// enforceRate is the low-frequency drift defense: pages that reset
// playbackRate on internal events (quality change, ad boundary) get
// corrected within one tick without the controller hooking those events.
func (c *Controller) enforceRate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.applyRateLocked()
}

// correctRate runs after the correction delay for a ratechange event.
// Only the primary is corrected, and only if it still deviates.
func (c *Controller) correctRate(node dom.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || node != c.primary {
		return
	}
	c.applyRateLocked()
}

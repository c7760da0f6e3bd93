package controller

import (
	"context"
	"time"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// Keyboard chords, matching the classic speed-controller bindings. All of
// them funnel through SetSpeed so there is exactly one apply path.
const (
	keySlower = "s" // -0.1
	keyFaster = "d" // +0.1
	keyBigger = "g" // +1.0
	keyReset  = "r" // back to 1.0
)

const persistTimeout = 5 * time.Second

// handleKey services the capture-phase keyboard surface. Chords are inert
// while focus is inside a text-entry element.
func (c *Controller) handleKey(ev dom.KeyEvent) {
	if ev.TextEntry {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cur, show, pos, save := c.target, c.showIndicator, c.position, c.saveSpeed
	c.mu.Unlock()

	var next float64
	switch ev.Key {
	case keySlower:
		next = cur - 0.1
	case keyFaster:
		next = cur + 0.1
	case keyBigger:
		next = cur + 1.0
	case keyReset:
		next = 1.0
	default:
		return
	}

	c.SetSpeed(next, show, pos)
	if save {
		go c.persistSpeed()
	}
}

// persistSpeed writes the current speed back to the settings store. This
// is the only write path the controller owns; popup/background writes are
// the collaborators' business. Failures are logged and dropped — storage
// trouble never affects rate control.
func (c *Controller) persistSpeed() {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("reload settings before save", "err", err)
	}
	c.mu.Lock()
	s.Speed = c.target
	s.ShowIndicator = c.showIndicator
	s.IndicatorPosition = c.position
	c.mu.Unlock()

	if err := c.store.Save(ctx, s); err != nil {
		c.log.Warn("persist speed", "err", err)
	}
}

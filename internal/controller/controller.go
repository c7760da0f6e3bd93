// Package controller implements the per-page engine: discover every media
// element, elect a single primary, pin its playback rate to the target,
// and keep that choice correct while the DOM churns underneath.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

// Config holds the engine cadences. Zero fields take defaults.
type Config struct {
	// ReconcileInterval drives periodic primary re-evaluation, catching
	// geometry drift that produces no DOM mutation.
	ReconcileInterval time.Duration
	// RateInterval drives the drift-correction timer.
	RateInterval time.Duration
	// DebounceWindow coalesces bursts of DOM mutations into one rescan.
	DebounceWindow time.Duration
	// CorrectionDelay defers ratechange corrections so a page's own
	// transient rate animation isn't fought synchronously.
	CorrectionDelay time.Duration
	// RescanDelays schedules follow-up discovery passes after attach,
	// catching players that mount asynchronously.
	RescanDelays []time.Duration
	// RateEpsilon is the drift below which the live rate is left alone.
	RateEpsilon float64
}

// DefaultConfig returns the production cadences.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 800 * time.Millisecond,
		RateInterval:      500 * time.Millisecond,
		DebounceWindow:    250 * time.Millisecond,
		CorrectionDelay:   100 * time.Millisecond,
		RescanDelays: []time.Duration{
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			3 * time.Second,
			5 * time.Second,
		},
		RateEpsilon: 0.01,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = d.ReconcileInterval
	}
	if c.RateInterval <= 0 {
		c.RateInterval = d.RateInterval
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.CorrectionDelay <= 0 {
		c.CorrectionDelay = d.CorrectionDelay
	}
	if c.RescanDelays == nil {
		c.RescanDelays = d.RescanDelays
	}
	if c.RateEpsilon <= 0 {
		c.RateEpsilon = d.RateEpsilon
	}
	return c
}

// Notice kinds emitted through Controller.Notify.
const (
	NoticePrimary = "primary"
	NoticeSpeed   = "speed"
	NoticeOverlay = "overlay"
)

// Notice is a controller event for external observers.
type Notice struct {
	Kind         string     `json:"kind"`
	Primary      dom.NodeID `json:"primary,omitempty"`
	Speed        float64    `json:"speed,omitempty"`
	OverlayShown bool       `json:"overlayShown,omitempty"`
}

// trackedVideo is one entry in the tracked set: the element plus the
// listeners the controller placed on it. The entry exists iff the element
// is still reachable from the live document.
type trackedVideo struct {
	id       dom.NodeID
	node     dom.Node
	inTopDoc bool
	unlisten []dom.Unlisten
}

func (t *trackedVideo) detach() {
	for _, u := range t.unlisten {
		u()
	}
	t.unlisten = nil
}

// Status is a snapshot of one controller for the HTTP surface.
type Status struct {
	URL        string  `json:"url"`
	Speed      float64 `json:"speed"`
	HasPrimary bool    `json:"hasPrimary"`
	Primary    string  `json:"primary,omitempty"`
	Overlay    bool    `json:"overlay"`
	Tracked    int     `json:"tracked"`
}

// Controller owns all per-page state. Every pass runs to completion under
// c.mu, so a reconciliation transition is atomic with respect to any other
// entry point — the single-primary invariant holds at all times.
type Controller struct {
	page  dom.Page
	store settings.Store // may be nil: settings then stay at defaults
	cfg   Config
	log   *slog.Logger

	// Notify, when set, receives controller events. Called with internal
	// state held: implementations must be quick and must not call back
	// into the controller.
	Notify func(Notice)

	mu            sync.Mutex
	tracked       map[dom.NodeID]*trackedVideo
	order         []dom.NodeID // document order from the last scan
	primary       dom.NodeID   // "" = unset
	state         primaryState
	target        float64
	userSet       bool // an explicit SetSpeed happened; the async seed must not overwrite it
	showIndicator bool
	position      string
	saveSpeed     bool
	overlayShown  bool
	suspended     bool
	started       bool
	closed        bool
	lastURL       string

	unlisten  []dom.Unlisten // document-level subscriptions
	burst     []*time.Timer
	debounced func(func())
	stop      chan struct{}
	done      chan struct{}
}

// New creates a controller for one page. Call Start to attach it.
func New(page dom.Page, store settings.Store, cfg Config, log *slog.Logger) *Controller {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		page:          page,
		store:         store,
		cfg:           cfg,
		log:           log,
		tracked:       map[dom.NodeID]*trackedVideo{},
		target:        1.0,
		showIndicator: true,
		position:      dom.PosBottomLeft,
		saveSpeed:     true,
		lastURL:       page.URL(),
		debounced:     debounce.New(cfg.DebounceWindow),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start wires observers and timers and runs the initial discovery burst.
// Settings are seeded asynchronously; detection never waits on storage.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.loadSettings(ctx)
	c.observe()
	go c.run()

	c.Resync()
	c.mu.Lock()
	if !c.closed {
		for _, d := range c.cfg.RescanDelays {
			c.burst = append(c.burst, time.AfterFunc(d, c.Resync))
		}
	}
	c.mu.Unlock()
}

func (c *Controller) loadSettings(ctx context.Context) {
	if c.store == nil {
		return
	}
	s, err := c.store.Load(ctx)
	if err != nil {
		// Defaults came back alongside the error; proceed with them.
		c.log.Warn("settings load failed, using defaults", "err", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.saveSpeed = s.SaveSpeed
	if c.userSet {
		// An explicit SetSpeed landed while the load was in flight; the
		// caller's intent wins over the stored record.
		return
	}
	c.target = settings.ClampSpeed(s.Speed)
	c.showIndicator = s.ShowIndicator
	c.position = s.IndicatorPosition
	c.applyRateLocked()
	c.refreshOverlayLocked()
}

// observe registers the document-level triggers. Any observer that fails
// to attach is logged and skipped — the periodic timers still run, so the
// controller degrades instead of dying.
func (c *Controller) observe() {
	if u, err := c.page.OnMutation(c.onMutation); err != nil {
		c.log.Warn("mutation observer unavailable, periodic rescan only", "err", err)
	} else {
		c.addUnlisten(u)
	}
	if u, err := c.page.OnVisibility(c.onVisibility); err != nil {
		c.log.Warn("visibility observer unavailable", "err", err)
	} else {
		c.addUnlisten(u)
	}
	if u, err := c.page.OnKey(c.handleKey); err != nil {
		c.log.Warn("key listener unavailable", "err", err)
	} else {
		c.addUnlisten(u)
	}
}

func (c *Controller) addUnlisten(u dom.Unlisten) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		u()
		return
	}
	c.unlisten = append(c.unlisten, u)
}

func (c *Controller) onMutation() {
	c.debounced(c.Resync)
}

func (c *Controller) onVisibility(visible bool) {
	c.mu.Lock()
	c.suspended = !visible
	closed := c.closed
	c.mu.Unlock()
	if visible && !closed {
		// Catch drift accumulated while the tab was hidden.
		c.Resync()
	}
}

func (c *Controller) isSuspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended || c.closed
}

func (c *Controller) run() {
	defer close(c.done)
	recon := time.NewTicker(c.cfg.ReconcileInterval)
	defer recon.Stop()
	rate := time.NewTicker(c.cfg.RateInterval)
	defer rate.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-recon.C:
			if !c.isSuspended() {
				c.Resync()
			}
		case <-rate.C:
			if !c.isSuspended() {
				c.enforceRate()
			}
		}
	}
}

// Resync runs one full discovery + reconciliation pass. Passes are
// skipped while the tab is hidden; the return-to-visible handler forces
// one immediately, so nothing is missed.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.suspended {
		return
	}
	c.syncTrackedLocked()
	c.reconcileLocked()
}

// syncTrackedLocked re-runs discovery, refreshes tracked entries, and
// prunes entries whose element is no longer reachable from the document.
func (c *Controller) syncTrackedLocked() {
	found := discoverAll(c.page)
	if url := c.page.URL(); url != c.lastURL {
		c.log.Info("page url changed", "from", c.lastURL, "to", url)
		c.lastURL = url
	}

	c.order = c.order[:0]
	alive := map[dom.NodeID]bool{}
	for _, d := range found {
		id := d.Node.ID()
		alive[id] = true
		c.order = append(c.order, id)
		if t, ok := c.tracked[id]; ok {
			t.node = d.Node
			t.inTopDoc = d.InTopDoc
			continue
		}
		t := &trackedVideo{id: id, node: d.Node, inTopDoc: d.InTopDoc}
		c.listenLocked(t)
		c.tracked[id] = t
		c.log.Debug("tracking video", "node", id, "topDoc", d.InTopDoc)
	}

	for id, t := range c.tracked {
		if alive[id] || c.page.Contains(id) {
			continue
		}
		t.detach()
		delete(c.tracked, id)
		c.log.Debug("untracked video", "node", id)
		if c.primary == id {
			c.state = stateStale // resolved by reconcile within this pass
		}
	}
}

func (c *Controller) listenLocked(t *trackedVideo) {
	if u, err := c.page.Listen(t.id, dom.EventPlaying, c.onPlaying); err == nil {
		t.unlisten = append(t.unlisten, u)
	} else {
		c.log.Debug("playing listener", "node", t.id, "err", err)
	}
	if u, err := c.page.Listen(t.id, dom.EventRateChange, c.onRateChange); err == nil {
		t.unlisten = append(t.unlisten, u)
	} else {
		c.log.Debug("ratechange listener", "node", t.id, "err", err)
	}
}

// onPlaying handles the play-intent override: an element the user just
// started out-ranks the current primary regardless of geometry.
func (c *Controller) onPlaying(ev dom.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	t := c.tracked[ev.Node]
	if t == nil {
		return
	}
	if ev.Node == c.primary {
		c.refreshOverlayLocked()
		return
	}
	if !t.isCandidate() || !isLikelyMainPlayer(t.node) {
		return
	}
	c.log.Info("play intent override", "node", ev.Node, "was", c.primary)
	c.transitionLocked(t)
}

// onRateChange never corrects synchronously: the page may be running a
// legitimate transient rate animation. The deviation check happens after
// the correction delay.
func (c *Controller) onRateChange(ev dom.Event) {
	node := ev.Node
	time.AfterFunc(c.cfg.CorrectionDelay, func() {
		c.correctRate(node)
	})
}

// SetSpeed is the single apply path for user intent: clamp, remember, and
// apply to the current primary if one exists. Safe to call at any time —
// before a primary exists it only records intent, which takes visible
// effect once one appears.
func (c *Controller) SetSpeed(rate float64, showIndicator bool, position string) {
	clamped := settings.ClampSpeed(rate)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.target = clamped
	c.userSet = true
	c.showIndicator = showIndicator
	if settings.ValidPosition(position) {
		c.position = position
	}
	c.applyRateLocked()
	c.refreshOverlayLocked()
	c.notifyLocked(Notice{Kind: NoticeSpeed, Speed: clamped, Primary: c.primary})
}

// GetCurrentSpeed returns the target rate.
func (c *Controller) GetCurrentSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// HasPrimaryVideo reports whether a primary is currently elected.
func (c *Controller) HasPrimaryVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary != ""
}

// Status returns a snapshot for the HTTP surface.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		URL:        c.lastURL,
		Speed:      c.target,
		HasPrimary: c.primary != "",
		Primary:    string(c.primary),
		Overlay:    c.overlayShown,
		Tracked:    len(c.tracked),
	}
}

// Stop tears everything down: observers disconnected, timers cleared,
// per-element listeners detached, overlay removed. Idempotent — unload
// and explicit destroy can both fire.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	for _, tm := range c.burst {
		tm.Stop()
	}
	c.burst = nil
	unl := c.unlisten
	c.unlisten = nil
	for _, t := range c.tracked {
		t.detach()
	}
	c.tracked = map[dom.NodeID]*trackedVideo{}
	c.order = nil
	c.primary = ""
	c.state = stateUnset
	hadOverlay := c.overlayShown
	c.overlayShown = false
	c.mu.Unlock()

	if started {
		close(c.stop)
		<-c.done
	}
	for _, u := range unl {
		u()
	}
	if hadOverlay {
		c.page.RemoveOverlay()
	}
	c.log.Debug("controller stopped")
}

func (c *Controller) notifyLocked(n Notice) {
	if c.Notify != nil {
		c.Notify(n)
	}
}

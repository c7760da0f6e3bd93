// Package bridge tracks Chrome page targets and runs one speed controller
// per attached tab. The HTTP layer consults its registry through the API
// interface; controller events fan out through the Hub.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/cdppage"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/controller"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

// attachBackoff is the retry schedule for agent injection into a tab that
// is still mid-navigation.
var attachBackoff = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
}

// TabEntry is one attached tab: its chromedp context, the page binding,
// and the controller driving it.
type TabEntry struct {
	ID     string
	Ctx    context.Context
	Cancel context.CancelFunc
	Page   *cdppage.Page
	Ctl    *controller.Controller
	Title  string
}

type Bridge struct {
	BrowserCtx context.Context
	Events     *Hub

	cfg   *config.RuntimeConfig
	store settings.Store
	log   *slog.Logger

	mu     sync.RWMutex
	tabs   map[string]*TabEntry
	closed bool
}

func New(browserCtx context.Context, cfg *config.RuntimeConfig, store settings.Store, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		BrowserCtx: browserCtx,
		Events:     NewHub(),
		cfg:        cfg,
		store:      store,
		log:        log,
		tabs:       map[string]*TabEntry{},
	}
}

// engineConfig maps the daemon's millisecond knobs onto controller cadences.
func engineConfig(cfg *config.RuntimeConfig) controller.Config {
	c := controller.Config{}
	if cfg != nil {
		c.ReconcileInterval = time.Duration(cfg.ReconcileMs) * time.Millisecond
		c.RateInterval = time.Duration(cfg.RateMs) * time.Millisecond
		c.DebounceWindow = time.Duration(cfg.DebounceMs) * time.Millisecond
		c.CorrectionDelay = time.Duration(cfg.CorrectionMs) * time.Millisecond
	}
	return c
}

// ListTargets returns the current page targets.
func (b *Bridge) ListTargets() ([]*target.Info, error) {
	var targets []*target.Info
	if err := chromedp.Run(b.BrowserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			targets, err = target.GetTargets().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, err
	}

	pages := make([]*target.Info, 0, len(targets))
	for _, t := range targets {
		if t.Type == "page" && !skipURL(t.URL) {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

func skipURL(url string) bool {
	return strings.HasPrefix(url, "chrome://") ||
		strings.HasPrefix(url, "devtools://") ||
		strings.HasPrefix(url, "chrome-extension://")
}

// Watch polls targets and keeps the registry in sync: new page targets get
// a controller attached, closed targets get torn down. Blocks until ctx is
// cancelled.
func (b *Bridge) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	b.sync(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sync(ctx)
		}
	}
}

func (b *Bridge) sync(ctx context.Context) {
	targets, err := b.ListTargets()
	if err != nil {
		b.log.Warn("target listing failed", "err", err)
		return
	}

	alive := make(map[string]*target.Info, len(targets))
	for _, t := range targets {
		alive[string(t.TargetID)] = t
	}

	b.mu.Lock()
	var stale []*TabEntry
	for id, entry := range b.tabs {
		if t, ok := alive[id]; ok {
			entry.Title = t.Title
			continue
		}
		stale = append(stale, entry)
		delete(b.tabs, id)
	}
	b.mu.Unlock()

	for _, entry := range stale {
		b.log.Info("tab closed, detaching", "tab", entry.ID)
		entry.Ctl.Stop()
		entry.Cancel()
	}

	for id, t := range alive {
		b.mu.RLock()
		_, known := b.tabs[id]
		b.mu.RUnlock()
		if known {
			continue
		}
		if err := b.attach(ctx, id, t.Title); err != nil {
			b.log.Warn("attach failed", "tab", id, "url", t.URL, "err", err)
		}
	}
}

// attach connects to one target, injects the page agent (retrying with
// decaying backoff while the tab is mid-navigation), and starts its
// controller.
func (b *Bridge) attach(ctx context.Context, tabID, title string) error {
	tabCtx, cancel := chromedp.NewContext(b.BrowserCtx,
		chromedp.WithTargetID(target.ID(tabID)),
	)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("target %s: %w", tabID, err)
	}

	var (
		page *cdppage.Page
		err  error
	)
	for i, wait := range attachBackoff {
		page, err = cdppage.Attach(tabCtx, b.log.With("tab", tabID))
		if err == nil {
			break
		}
		b.log.Debug("agent injection retry", "tab", tabID, "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		cancel()
		return fmt.Errorf("inject agent into %s: %w", tabID, err)
	}

	ctl := controller.New(page, b.store, engineConfig(b.cfg), b.log.With("tab", tabID))
	ctl.Notify = func(n controller.Notice) {
		b.Events.Publish(Event{TabID: tabID, Notice: n})
	}

	entry := &TabEntry{ID: tabID, Ctx: tabCtx, Cancel: cancel, Page: page, Ctl: ctl, Title: title}
	if !b.register(entry) {
		cancel()
		return nil
	}

	ctl.Start(ctx)
	b.log.Info("controller attached", "tab", tabID, "title", title)
	return nil
}

// register adds an entry to the registry. It refuses duplicates and,
// after Shutdown, refuses everything — an attach racing the shutdown
// must not leave a running controller behind.
func (b *Bridge) register(entry *TabEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if _, dup := b.tabs[entry.ID]; dup {
		return false
	}
	b.tabs[entry.ID] = entry
	return true
}

func (b *Bridge) Tab(tabID string) (TabControl, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.tabs[tabID]
	if !ok {
		return nil, false
	}
	return entry.Ctl, true
}

func (b *Bridge) FirstTab() (TabControl, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, entry := range b.tabs {
		return entry.Ctl, id, true
	}
	return nil, "", false
}

func (b *Bridge) ListTabs() ([]TabStatus, error) {
	if _, err := b.ListTargets(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TabStatus, 0, len(b.tabs))
	for id, entry := range b.tabs {
		st := entry.Ctl.Status()
		out = append(out, TabStatus{
			ID:         id,
			URL:        st.URL,
			Title:      entry.Title,
			Speed:      st.Speed,
			HasPrimary: st.HasPrimary,
			Tracked:    st.Tracked,
			Overlay:    st.Overlay,
		})
	}
	return out, nil
}

// Shutdown stops every controller and releases tab contexts. Idempotent.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	b.closed = true
	tabs := b.tabs
	b.tabs = map[string]*TabEntry{}
	b.mu.Unlock()

	for _, entry := range tabs {
		entry.Ctl.Stop()
		entry.Cancel()
	}
	if len(tabs) > 0 {
		b.log.Info("all controllers detached", "count", len(tabs))
	}
}

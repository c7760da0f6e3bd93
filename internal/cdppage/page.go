// Package cdppage implements dom.Page for a live Chrome tab over the
// DevTools protocol. An injected agent (observer.js) keeps a stable element
// id registry inside the page; structure is read through whole-document
// snapshots and element state through targeted inspect calls. Events flow
// back through a runtime binding.
package cdppage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

//go:embed observer.js
var observerJS string

const (
	bindingName = "__speedtuneEmit"
	evalTimeout = 5 * time.Second
)

type subKey struct {
	node dom.NodeID
	kind dom.EventKind
}

// Page drives one attached tab. All dom.Page reads evaluate against the
// injected agent; failed evaluations surface as comma-ok false, never
// panics.
type Page struct {
	ctx context.Context
	log *slog.Logger

	mu      sync.Mutex
	snap    *snapshot
	visible bool
	mutFns  map[int]func()
	visFns  map[int]func(bool)
	keyFns  map[int]func(dom.KeyEvent)
	subs    map[subKey]map[int]func(dom.Event)
	nextReg int
}

// Attach injects the agent into the tab and wires the event binding.
// The tab context must stay alive for the lifetime of the Page.
func Attach(ctx context.Context, log *slog.Logger) (*Page, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Page{
		ctx:     ctx,
		log:     log,
		visible: true,
		mutFns:  map[int]func(){},
		visFns:  map[int]func(bool){},
		keyFns:  map[int]func(dom.KeyEvent){},
		subs:    map[subKey]map[int]func(dom.Event){},
	}

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			return runtime.AddBinding(bindingName).Do(c)
		}),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerJS).Do(c)
			return err
		}),
		// Install into the already-loaded document as well.
		chromedp.Evaluate(observerJS, nil),
	)
	if err != nil {
		return nil, fmt.Errorf("inject agent: %w", err)
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		bc, ok := ev.(*runtime.EventBindingCalled)
		if !ok || bc.Name != bindingName {
			return
		}
		payload := bc.Payload
		go p.dispatch(payload)
	})

	return p, nil
}

type emitMsg struct {
	Type      string  `json:"type"`
	Kind      string  `json:"kind"`
	ID        string  `json:"id"`
	Rate      float64 `json:"rate"`
	Visible   bool    `json:"visible"`
	Key       string  `json:"key"`
	Ctrl      bool    `json:"ctrl"`
	Shift     bool    `json:"shift"`
	Alt       bool    `json:"alt"`
	TextEntry bool    `json:"textEntry"`
}

func (p *Page) dispatch(payload string) {
	var msg emitMsg
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		p.log.Debug("bad agent event", "err", err)
		return
	}

	// Collect callbacks under the lock, invoke after releasing it.
	var fns []func()
	p.mu.Lock()
	switch msg.Type {
	case "mutation":
		for _, fn := range p.mutFns {
			fns = append(fns, fn)
		}
	case "visibility":
		p.visible = msg.Visible
		v := msg.Visible
		for _, fn := range p.visFns {
			f := fn
			fns = append(fns, func() { f(v) })
		}
	case "key":
		ke := dom.KeyEvent{
			Key: msg.Key, Ctrl: msg.Ctrl, Shift: msg.Shift, Alt: msg.Alt,
			TextEntry: msg.TextEntry,
		}
		for _, fn := range p.keyFns {
			f := fn
			fns = append(fns, func() { f(ke) })
		}
	case "media":
		ev := dom.Event{
			Kind: dom.EventKind(msg.Kind),
			Node: dom.NodeID(msg.ID),
			Rate: msg.Rate,
		}
		for _, fn := range p.subs[subKey{ev.Node, ev.Kind}] {
			f := fn
			fns = append(fns, func() { f(ev) })
		}
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (p *Page) eval(expr string, out any) error {
	ctx, cancel := context.WithTimeout(p.ctx, evalTimeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Evaluate(expr, out))
}

// refresh pulls a fresh whole-document snapshot from the agent.
func (p *Page) refresh() (*snapshot, error) {
	var raw string
	if err := p.eval(`window.__speedtune ? __speedtune.snapshot() : ""`, &raw); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("agent not installed")
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	p.mu.Lock()
	p.snap = &snap
	p.visible = snap.Visible
	p.mu.Unlock()
	return &snap, nil
}

func (p *Page) lastSnap() *snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Root refreshes the snapshot and returns the top document's root. Each
// scan therefore sees one coherent view of the page structure.
func (p *Page) Root() (dom.Node, bool) {
	snap, err := p.refresh()
	if err != nil {
		p.log.Debug("snapshot failed", "err", err)
		return nil, false
	}
	if len(snap.Docs) == 0 || snap.Docs[0].Root == nil {
		return nil, false
	}
	return &node{p: p, js: snap.Docs[0].Root}, true
}

func (p *Page) URL() string {
	snap := p.lastSnap()
	if snap != nil && len(snap.Docs) > 0 {
		return snap.Docs[0].URL
	}
	var href string
	if err := p.eval("location.href", &href); err != nil {
		return ""
	}
	return href
}

// Frames returns the same-origin subdocuments captured by the most recent
// snapshot. Inaccessible frames were already skipped by the agent.
func (p *Page) Frames() []dom.Document {
	snap := p.lastSnap()
	if snap == nil || len(snap.Docs) <= 1 {
		return nil
	}
	out := make([]dom.Document, 0, len(snap.Docs)-1)
	for i := range snap.Docs[1:] {
		out = append(out, &frameDoc{p: p, doc: &snap.Docs[i+1]})
	}
	return out
}

func (p *Page) Contains(id dom.NodeID) bool {
	var ok bool
	if err := p.eval(fmt.Sprintf(`window.__speedtune ? __speedtune.contains(%q) : false`, string(id)), &ok); err != nil {
		return false
	}
	return ok
}

func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Page) Viewport() (dom.Rect, bool) {
	snap := p.lastSnap()
	if snap == nil {
		return dom.Rect{}, false
	}
	v := snap.Viewport
	return dom.Rect{X: v.X, Y: v.Y, W: v.W, H: v.H}, true
}

func (p *Page) OnMutation(fn func()) (dom.Unlisten, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextReg
	p.nextReg++
	p.mutFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.mutFns, id)
		p.mu.Unlock()
	}, nil
}

func (p *Page) OnVisibility(fn func(bool)) (dom.Unlisten, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextReg
	p.nextReg++
	p.visFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.visFns, id)
		p.mu.Unlock()
	}, nil
}

func (p *Page) OnKey(fn func(dom.KeyEvent)) (dom.Unlisten, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextReg
	p.nextReg++
	p.keyFns[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.keyFns, id)
		p.mu.Unlock()
	}, nil
}

// Listen arms the agent's media listeners for the element and registers
// the callback. The in-page listener stays armed after unlisten; only the
// callback registration is removed.
func (p *Page) Listen(id dom.NodeID, kind dom.EventKind, fn func(dom.Event)) (dom.Unlisten, error) {
	var ok bool
	if err := p.eval(fmt.Sprintf(`window.__speedtune ? __speedtune.watch(%q) : false`, string(id)), &ok); err != nil {
		return nil, fmt.Errorf("watch %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("watch %s: element gone", id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := subKey{id, kind}
	if p.subs[key] == nil {
		p.subs[key] = map[int]func(dom.Event){}
	}
	reg := p.nextReg
	p.nextReg++
	p.subs[key][reg] = fn
	return func() {
		p.mu.Lock()
		if m := p.subs[key]; m != nil {
			delete(m, reg)
			if len(m) == 0 {
				delete(p.subs, key)
			}
		}
		p.mu.Unlock()
	}, nil
}

func (p *Page) ShowOverlay(spec dom.OverlaySpec) error {
	expr := fmt.Sprintf(`window.__speedtune ? __speedtune.showOverlay(%q, %q, %q) : false`,
		string(spec.Target), spec.Position, spec.Text)
	var ok bool
	if err := p.eval(expr, &ok); err != nil {
		return fmt.Errorf("show overlay: %w", err)
	}
	if !ok {
		return fmt.Errorf("show overlay: target %s gone", spec.Target)
	}
	return nil
}

func (p *Page) RemoveOverlay() {
	if err := p.eval(`window.__speedtune ? __speedtune.removeOverlay() : undefined`, nil); err != nil {
		p.log.Debug("remove overlay failed", "err", err)
	}
}

// frameDoc is a same-origin subdocument view from the last snapshot.
type frameDoc struct {
	p   *Page
	doc *jsDoc
}

func (f *frameDoc) Root() (dom.Node, bool) {
	if f.doc.Root == nil {
		return nil, false
	}
	return &node{p: f.p, js: f.doc.Root}, true
}

func (f *frameDoc) URL() string            { return f.doc.URL }
func (f *frameDoc) Frames() []dom.Document { return nil }

func (f *frameDoc) Contains(id dom.NodeID) bool {
	return f.p.Contains(id)
}

// Package domtest provides a scriptable in-memory dom.Page for engine
// tests: build a tree, mutate it, fire media/key/visibility events, and
// inspect what the controller attached or tore down.
//
// All dom.Page/Node reads take the page lock, so a running controller can
// be exercised concurrently with test-driven events. Structural setup
// helpers (Append, Remove, SetAttr, ...) do not lock: call them during
// single-goroutine setup or inside Mutate, which holds the lock for you.
package domtest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

var idCounter atomic.Int64

func nextID() dom.NodeID {
	return dom.NodeID(fmt.Sprintf("n_%04d", idCounter.Add(1)))
}

// Elem is a fake element. Zero-value reads succeed; set Inaccessible to
// make every read fail the comma-ok check.
type Elem struct {
	id       dom.NodeID
	tag      string
	attrs    map[string]string
	children []*Elem
	shadow   *Elem
	parent   *Elem

	Bounds dom.Rect
	CSS    dom.Style
	media  *dom.MediaState

	// Inaccessible makes all reads return ok=false, simulating a
	// detached or cross-origin element.
	Inaccessible bool
	// RateErr is returned from SetRate when non-nil.
	RateErr error

	page *Page
}

// NewElem creates a non-media element.
func NewElem(tag string) *Elem {
	return &Elem{
		id:    nextID(),
		tag:   tag,
		attrs: map[string]string{},
		CSS:   dom.Style{Display: "block", Visibility: "visible", Opacity: 1},
	}
}

// NewVideo creates a playing video element with the given rendered box.
func NewVideo(w, h float64) *Elem {
	e := NewElem("video")
	e.Bounds = dom.Rect{W: w, H: h}
	e.media = &dom.MediaState{
		ReadyState:  dom.HaveEnoughData,
		Paused:      false,
		CurrentTime: 10,
		Duration:    600,
		Rate:        1.0,
	}
	return e
}

// WithMedia gives any element playback state, modeling custom player
// elements that expose media behavior without a <video> tag.
func (e *Elem) WithMedia(m dom.MediaState) *Elem {
	e.media = &m
	return e
}

// MediaState exposes the mutable media state for test setup. Nil for
// non-media elements. Not safe against a running controller; use the
// Page event helpers once started.
func (e *Elem) MediaState() *dom.MediaState { return e.media }

func (e *Elem) lock() func() {
	if e.page == nil {
		return func() {}
	}
	e.page.mu.Lock()
	return e.page.mu.Unlock
}

func (e *Elem) ID() dom.NodeID { return e.id }

func (e *Elem) Tag() (string, bool) {
	defer e.lock()()
	if e.Inaccessible {
		return "", false
	}
	return e.tag, true
}

func (e *Elem) Attr(name string) (string, bool) {
	defer e.lock()()
	if e.Inaccessible {
		return "", false
	}
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets an attribute (class, id, ...).
func (e *Elem) SetAttr(name, value string) *Elem {
	e.attrs[name] = value
	return e
}

func (e *Elem) Children() []dom.Node {
	defer e.lock()()
	if e.Inaccessible {
		return nil
	}
	out := make([]dom.Node, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func (e *Elem) ShadowRoot() (dom.Node, bool) {
	defer e.lock()()
	if e.Inaccessible || e.shadow == nil {
		return nil, false
	}
	return e.shadow, true
}

func (e *Elem) Box() (dom.Rect, bool) {
	defer e.lock()()
	if e.Inaccessible {
		return dom.Rect{}, false
	}
	return e.Bounds, true
}

func (e *Elem) Style() (dom.Style, bool) {
	defer e.lock()()
	if e.Inaccessible {
		return dom.Style{}, false
	}
	return e.CSS, true
}

func (e *Elem) Media() (dom.MediaState, bool) {
	defer e.lock()()
	if e.Inaccessible || e.media == nil {
		return dom.MediaState{}, false
	}
	return *e.media, true
}

func (e *Elem) SetRate(rate float64) error {
	if e.RateErr != nil {
		return e.RateErr
	}
	if e.page == nil {
		if e.media == nil {
			return fmt.Errorf("node %s: not a media element", e.id)
		}
		e.media.Rate = rate
		return nil
	}

	e.page.mu.Lock()
	if e.Inaccessible || e.media == nil {
		e.page.mu.Unlock()
		return fmt.Errorf("node %s: not a media element", e.id)
	}
	e.media.Rate = rate
	fns := e.page.eventFnsLocked(dom.Event{Kind: dom.EventRateChange, Node: e.id, Rate: rate})
	e.page.mu.Unlock()

	for _, f := range fns {
		f(dom.Event{Kind: dom.EventRateChange, Node: e.id, Rate: rate})
	}
	return nil
}

// CurrentRate reads the live playback rate under the page lock.
func (e *Elem) CurrentRate() float64 {
	defer e.lock()()
	if e.media == nil {
		return 0
	}
	return e.media.Rate
}

// Append adds children.
func (e *Elem) Append(kids ...*Elem) *Elem {
	for _, k := range kids {
		k.parent = e
		k.adopt(e.page)
		e.children = append(e.children, k)
	}
	return e
}

// AttachShadow sets an open shadow root.
func (e *Elem) AttachShadow(root *Elem) *Elem {
	root.parent = e
	root.adopt(e.page)
	e.shadow = root
	return e
}

func (e *Elem) adopt(p *Page) {
	e.page = p
	for _, c := range e.children {
		c.adopt(p)
	}
	if e.shadow != nil {
		e.shadow.adopt(p)
	}
}

// Remove detaches the element from its parent.
func (e *Elem) Remove() {
	p := e.parent
	if p == nil {
		return
	}
	if p.shadow == e {
		p.shadow = nil
	}
	for i, c := range p.children {
		if c == e {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	e.parent = nil
}

// Doc is a fake document (top-level or same-origin frame).
type Doc struct {
	Addr   string
	root   *Elem
	frames []*Doc
	page   *Page
}

func (d *Doc) lock() func() {
	if d.page == nil {
		return func() {}
	}
	d.page.mu.Lock()
	return d.page.mu.Unlock
}

func (d *Doc) Root() (dom.Node, bool) {
	defer d.lock()()
	if d.root == nil {
		return nil, false
	}
	return d.root, true
}

func (d *Doc) URL() string {
	defer d.lock()()
	return d.Addr
}

func (d *Doc) Frames() []dom.Document {
	defer d.lock()()
	out := make([]dom.Document, len(d.frames))
	for i, f := range d.frames {
		out[i] = f
	}
	return out
}

func (d *Doc) Contains(id dom.NodeID) bool {
	defer d.lock()()
	return d.containsLocked(id)
}

func (d *Doc) containsLocked(id dom.NodeID) bool {
	if d.root != nil && treeContains(d.root, id) {
		return true
	}
	for _, f := range d.frames {
		if f.containsLocked(id) {
			return true
		}
	}
	return false
}

func treeContains(e *Elem, id dom.NodeID) bool {
	if e.id == id {
		return true
	}
	for _, c := range e.children {
		if treeContains(c, id) {
			return true
		}
	}
	if e.shadow != nil {
		return treeContains(e.shadow, id)
	}
	return false
}

// SetRoot installs the document root.
func (d *Doc) SetRoot(root *Elem) *Elem {
	d.root = root
	root.adopt(d.page)
	return root
}

// AddFrame attaches a same-origin subdocument.
func (d *Doc) AddFrame(url string) *Doc {
	f := &Doc{Addr: url, page: d.page}
	d.frames = append(d.frames, f)
	return f
}

type elemSub struct {
	node dom.NodeID
	kind dom.EventKind
	fn   func(dom.Event)
}

// Page is the fake dom.Page.
type Page struct {
	mu sync.Mutex
	Doc

	visible  bool
	viewport dom.Rect

	nextSub int
	mutFns  map[int]func()
	visFns  map[int]func(bool)
	keyFns  map[int]func(dom.KeyEvent)
	subs    map[int]elemSub

	overlay *dom.OverlaySpec
	shows   int
	removes int

	// ObserverErr makes OnMutation/OnVisibility/OnKey/Listen fail,
	// simulating an environment without observer support.
	ObserverErr error
}

// NewPage builds an empty visible page with a 1280x720 viewport.
func NewPage(url string) *Page {
	p := &Page{
		visible:  true,
		viewport: dom.Rect{W: 1280, H: 720},
		mutFns:   map[int]func(){},
		visFns:   map[int]func(bool){},
		keyFns:   map[int]func(dom.KeyEvent){},
		subs:     map[int]elemSub{},
	}
	p.Doc = Doc{Addr: url, page: p}
	return p
}

func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Page) Viewport() (dom.Rect, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, true
}

// SetViewport resizes the visual viewport.
func (p *Page) SetViewport(r dom.Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewport = r
}

func (p *Page) OnMutation(fn func()) (dom.Unlisten, error) {
	if p.ObserverErr != nil {
		return nil, p.ObserverErr
	}
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.mutFns[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.mutFns, id)
		p.mu.Unlock()
	}, nil
}

func (p *Page) OnVisibility(fn func(bool)) (dom.Unlisten, error) {
	if p.ObserverErr != nil {
		return nil, p.ObserverErr
	}
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.visFns[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.visFns, id)
		p.mu.Unlock()
	}, nil
}

func (p *Page) OnKey(fn func(dom.KeyEvent)) (dom.Unlisten, error) {
	if p.ObserverErr != nil {
		return nil, p.ObserverErr
	}
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.keyFns[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.keyFns, id)
		p.mu.Unlock()
	}, nil
}

func (p *Page) Listen(id dom.NodeID, kind dom.EventKind, fn func(dom.Event)) (dom.Unlisten, error) {
	if p.ObserverErr != nil {
		return nil, p.ObserverErr
	}
	p.mu.Lock()
	sid := p.nextSub
	p.nextSub++
	p.subs[sid] = elemSub{node: id, kind: kind, fn: fn}
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, sid)
		p.mu.Unlock()
	}, nil
}

func (p *Page) ShowOverlay(spec dom.OverlaySpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shows++
	p.overlay = &spec
	return nil
}

func (p *Page) RemoveOverlay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.overlay != nil {
		p.removes++
		p.overlay = nil
	}
}

// Overlay returns a copy of the currently attached overlay spec, or nil.
func (p *Page) Overlay() *dom.OverlaySpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.overlay == nil {
		return nil
	}
	cp := *p.overlay
	return &cp
}

// ShowCount reports how many times ShowOverlay was called.
func (p *Page) ShowCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shows
}

// RemoveCount reports how many times RemoveOverlay actually removed one.
func (p *Page) RemoveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removes
}

// NodeListeners counts active per-element subscriptions for one node.
func (p *Page) NodeListeners(id dom.NodeID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subs {
		if s.node == id {
			n++
		}
	}
	return n
}

// ActiveSubs counts all active subscriptions, document-level included.
func (p *Page) ActiveSubs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mutFns) + len(p.visFns) + len(p.keyFns) + len(p.subs)
}

// Mutate applies fn to the tree under the page lock, then fires mutation
// observers. Use only the structural helpers inside fn.
func (p *Page) Mutate(fn func()) {
	p.mu.Lock()
	fn()
	fns := make([]func(), 0, len(p.mutFns))
	for _, f := range p.mutFns {
		fns = append(fns, f)
	}
	p.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

// SetVisible flips tab visibility and fires visibility observers.
func (p *Page) SetVisible(v bool) {
	p.mu.Lock()
	p.visible = v
	fns := make([]func(bool), 0, len(p.visFns))
	for _, f := range p.visFns {
		fns = append(fns, f)
	}
	p.mu.Unlock()
	for _, f := range fns {
		f(v)
	}
}

// SetURL changes the document URL without firing mutations (use Mutate
// for SPA-style route changes that also churn the tree).
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Doc.Addr = url
}

// PressKey dispatches a capture-phase keydown.
func (p *Page) PressKey(ev dom.KeyEvent) {
	p.mu.Lock()
	fns := make([]func(dom.KeyEvent), 0, len(p.keyFns))
	for _, f := range p.keyFns {
		fns = append(fns, f)
	}
	p.mu.Unlock()
	for _, f := range fns {
		f(ev)
	}
}

// StartPlaying marks the element as playing and fires its playing event.
func (p *Page) StartPlaying(e *Elem) {
	p.mu.Lock()
	if e.media == nil {
		p.mu.Unlock()
		return
	}
	e.media.Paused = false
	if e.media.ReadyState < dom.HaveCurrentData {
		e.media.ReadyState = dom.HaveCurrentData
	}
	if e.media.CurrentTime == 0 {
		e.media.CurrentTime = 0.1
	}
	ev := dom.Event{Kind: dom.EventPlaying, Node: e.id}
	fns := p.eventFnsLocked(ev)
	p.mu.Unlock()
	for _, f := range fns {
		f(ev)
	}
}

// SetExternalRate simulates the page itself rewriting playbackRate.
func (p *Page) SetExternalRate(e *Elem, rate float64) {
	p.mu.Lock()
	if e.media == nil {
		p.mu.Unlock()
		return
	}
	e.media.Rate = rate
	ev := dom.Event{Kind: dom.EventRateChange, Node: e.id, Rate: rate}
	fns := p.eventFnsLocked(ev)
	p.mu.Unlock()
	for _, f := range fns {
		f(ev)
	}
}

func (p *Page) eventFnsLocked(ev dom.Event) []func(dom.Event) {
	var fns []func(dom.Event)
	for _, s := range p.subs {
		if s.node == ev.Node && s.kind == ev.Kind {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

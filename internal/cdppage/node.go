package cdppage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
)

// snapshot is the agent's whole-document view: the top document first,
// then reachable same-origin frame documents.
type snapshot struct {
	Docs     []jsDoc `json:"docs"`
	Visible  bool    `json:"visible"`
	Viewport jsBox   `json:"viewport"`
}

type jsDoc struct {
	URL  string  `json:"url"`
	Root *jsNode `json:"root"`
}

type jsNode struct {
	ID       string    `json:"id"`
	Tag      string    `json:"tag"`
	Class    string    `json:"class,omitempty"`
	AttrID   string    `json:"attrId,omitempty"`
	Box      *jsBox    `json:"box,omitempty"`
	Style    *jsStyle  `json:"style,omitempty"`
	Media    *jsMedia  `json:"media,omitempty"`
	Children []*jsNode `json:"children,omitempty"`
	Shadow   []*jsNode `json:"shadow,omitempty"`
}

type jsBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type jsStyle struct {
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    float64 `json:"opacity"`
}

// jsMedia uses duration -1 as the agent's encoding for Infinity, since
// JSON has no literal for it.
type jsMedia struct {
	ReadyState  int     `json:"readyState"`
	Paused      bool    `json:"paused"`
	Ended       bool    `json:"ended"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Rate        float64 `json:"rate"`
}

func (m *jsMedia) state() dom.MediaState {
	d := m.Duration
	if d < 0 {
		d = math.Inf(1)
	}
	return dom.MediaState{
		ReadyState:  m.ReadyState,
		Paused:      m.Paused,
		Ended:       m.Ended,
		CurrentTime: m.CurrentTime,
		Duration:    d,
		Rate:        m.Rate,
	}
}

// node is one element from a snapshot. Structure (tag, attrs, children)
// comes from the snapshot it was built from; playback state is read live
// so rate enforcement always sees the current value.
type node struct {
	p  *Page
	js *jsNode
}

func (n *node) ID() dom.NodeID { return dom.NodeID(n.js.ID) }

func (n *node) Tag() (string, bool) {
	if n.js.Tag == "" {
		return "", false
	}
	return n.js.Tag, true
}

func (n *node) Attr(name string) (string, bool) {
	switch name {
	case "class":
		if n.js.Class != "" {
			return n.js.Class, true
		}
	case "id":
		if n.js.AttrID != "" {
			return n.js.AttrID, true
		}
	}
	return "", false
}

func (n *node) Children() []dom.Node {
	out := make([]dom.Node, 0, len(n.js.Children))
	for _, c := range n.js.Children {
		out = append(out, &node{p: n.p, js: c})
	}
	return out
}

func (n *node) ShadowRoot() (dom.Node, bool) {
	if len(n.js.Shadow) == 0 {
		return nil, false
	}
	// Synthetic host for the shadow children; never a media element itself.
	root := &jsNode{ID: n.js.ID + "#shadow", Children: n.js.Shadow}
	return &node{p: n.p, js: root}, true
}

func (n *node) Box() (dom.Rect, bool) {
	if n.js.Box == nil {
		return dom.Rect{}, false
	}
	b := n.js.Box
	return dom.Rect{X: b.X, Y: b.Y, W: b.W, H: b.H}, true
}

func (n *node) Style() (dom.Style, bool) {
	if n.js.Style == nil {
		return dom.Style{}, false
	}
	s := n.js.Style
	return dom.Style{Display: s.Display, Visibility: s.Visibility, Opacity: s.Opacity}, true
}

func (n *node) Media() (dom.MediaState, bool) {
	js, ok := n.inspect()
	if !ok || js.Media == nil {
		return dom.MediaState{}, false
	}
	return js.Media.state(), true
}

// inspect re-reads the element live from the agent.
func (n *node) inspect() (*jsNode, bool) {
	var raw string
	expr := fmt.Sprintf(`window.__speedtune ? __speedtune.inspect(%q) : ""`, n.js.ID)
	if err := n.p.eval(expr, &raw); err != nil || raw == "" {
		return nil, false
	}
	var js jsNode
	if err := json.Unmarshal([]byte(raw), &js); err != nil {
		return nil, false
	}
	return &js, true
}

func (n *node) SetRate(rate float64) error {
	expr := fmt.Sprintf(`window.__speedtune ? __speedtune.setRate(%q, %s) : false`,
		n.js.ID, strconv.FormatFloat(rate, 'f', -1, 64))
	var ok bool
	if err := n.p.eval(expr, &ok); err != nil {
		return fmt.Errorf("set rate on %s: %w", n.js.ID, err)
	}
	if !ok {
		return fmt.Errorf("set rate on %s: element gone", n.js.ID)
	}
	return nil
}

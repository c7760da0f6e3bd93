package controller

import (
	"math"
	"testing"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom/domtest"
)

func TestIsMeaningfullyVisible(t *testing.T) {
	tests := []struct {
		name string
		prep func(*domtest.Elem)
		want bool
	}{
		{"plain visible", func(e *domtest.Elem) {}, true},
		{"display none", func(e *domtest.Elem) { e.CSS.Display = "none" }, false},
		{"visibility hidden", func(e *domtest.Elem) { e.CSS.Visibility = "hidden" }, false},
		{"transparent", func(e *domtest.Elem) { e.CSS.Opacity = 0.005 }, false},
		{"barely opaque", func(e *domtest.Elem) { e.CSS.Opacity = 0.01 }, true},
		{"too narrow", func(e *domtest.Elem) { e.Bounds.W = 150 }, false},
		{"too short", func(e *domtest.Elem) { e.Bounds.H = 100 }, false},
		{"inaccessible", func(e *domtest.Elem) { e.Inaccessible = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domtest.NewVideo(800, 450)
			tt.prep(e)
			if got := isMeaningfullyVisible(e, minVisibleWidth, minVisibleHeight); got != tt.want {
				t.Errorf("isMeaningfullyVisible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsLive(t *testing.T) {
	vod := domtest.NewVideo(800, 450)
	if isLive(vod) {
		t.Error("bounded duration reported live")
	}
	live := domtest.NewVideo(800, 450)
	live.MediaState().Duration = math.Inf(1)
	if !isLive(live) {
		t.Error("unbounded duration not reported live")
	}
	div := domtest.NewElem("div")
	if isLive(div) {
		t.Error("non-media element reported live")
	}
}

func TestIsLikelyMainPlayer(t *testing.T) {
	tests := []struct {
		name string
		prep func(*dom.MediaState)
		want bool
	}{
		{"playing mid-stream", func(m *dom.MediaState) {}, true},
		{"no metadata yet", func(m *dom.MediaState) { m.ReadyState = dom.HaveNothing }, false},
		{"ended", func(m *dom.MediaState) { m.Ended = true }, false},
		{"unstarted decoy", func(m *dom.MediaState) { m.Paused = true; m.CurrentTime = 0 }, false},
		{"paused mid-watch", func(m *dom.MediaState) { m.Paused = true; m.CurrentTime = 42 }, true},
		{"metadata only", func(m *dom.MediaState) { m.ReadyState = dom.HaveMetadata }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domtest.NewVideo(800, 450)
			tt.prep(e.MediaState())
			if got := isLikelyMainPlayer(e); got != tt.want {
				t.Errorf("isLikelyMainPlayer = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidateFilter(t *testing.T) {
	tests := []struct {
		name string
		make func() *trackedVideo
		want bool
	}{
		{
			"main-player scale in top doc",
			func() *trackedVideo {
				return &trackedVideo{node: domtest.NewVideo(800, 450), inTopDoc: true}
			},
			true,
		},
		{
			"exactly at threshold",
			func() *trackedVideo {
				return &trackedVideo{node: domtest.NewVideo(380, 214), inTopDoc: true}
			},
			true,
		},
		{
			"visible but thumbnail sized",
			func() *trackedVideo {
				return &trackedVideo{node: domtest.NewVideo(320, 180), inTopDoc: true}
			},
			false,
		},
		{
			"subdocument",
			func() *trackedVideo {
				return &trackedVideo{node: domtest.NewVideo(800, 450), inTopDoc: false}
			},
			false,
		},
		{
			"live stream",
			func() *trackedVideo {
				e := domtest.NewVideo(800, 450)
				e.MediaState().Duration = math.Inf(1)
				return &trackedVideo{node: e, inTopDoc: true}
			},
			false,
		},
		{
			"ended",
			func() *trackedVideo {
				e := domtest.NewVideo(800, 450)
				e.MediaState().Ended = true
				return &trackedVideo{node: e, inTopDoc: true}
			},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.make().isCandidate(); got != tt.want {
				t.Errorf("isCandidate = %v, want %v", got, tt.want)
			}
		})
	}
}

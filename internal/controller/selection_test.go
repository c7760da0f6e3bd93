package controller

import (
	"testing"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom/domtest"
)

func cand(e *domtest.Elem) *trackedVideo {
	return &trackedVideo{id: e.ID(), node: e, inTopDoc: true}
}

func TestSelectPrimaryEmpty(t *testing.T) {
	if got := selectPrimary(nil); got != nil {
		t.Errorf("selectPrimary(nil) = %v, want nil", got)
	}
}

func TestSelectPrimaryLargestArea(t *testing.T) {
	small := cand(domtest.NewVideo(640, 360))
	big := cand(domtest.NewVideo(1280, 720))
	got := selectPrimary([]*trackedVideo{small, big})
	if got != big {
		t.Error("largest area should win among equally likely players")
	}
}

func TestSelectPrimaryPrefersStartedOverBigger(t *testing.T) {
	// A huge autoplay decoy that never started loses to a smaller video
	// the user is actually watching.
	decoy := domtest.NewVideo(1920, 1080)
	decoy.MediaState().Paused = true
	decoy.MediaState().CurrentTime = 0
	watched := domtest.NewVideo(640, 360)

	got := selectPrimary([]*trackedVideo{cand(decoy), cand(watched)})
	if got == nil || got.node != watched {
		t.Error("a started player outranks a larger unstarted one")
	}
}

func TestSelectPrimaryFallsBackToSizeWhenNothingStarted(t *testing.T) {
	// Right after page load nothing has played; size decides.
	a := domtest.NewVideo(640, 360)
	a.MediaState().Paused = true
	a.MediaState().CurrentTime = 0
	b := domtest.NewVideo(1280, 720)
	b.MediaState().Paused = true
	b.MediaState().CurrentTime = 0

	got := selectPrimary([]*trackedVideo{cand(a), cand(b)})
	if got == nil || got.node != b {
		t.Error("size is the fallback when no candidate has started")
	}
}

func TestSelectPrimaryEqualAreaKeepsFirstSeen(t *testing.T) {
	a := cand(domtest.NewVideo(800, 450))
	b := cand(domtest.NewVideo(800, 450))
	for i := 0; i < 3; i++ {
		if got := selectPrimary([]*trackedVideo{a, b}); got != a {
			t.Fatal("equal area must keep the first candidate in document order")
		}
	}
}

func TestSelectPrimarySkipsUnreadableBoxes(t *testing.T) {
	broken := domtest.NewVideo(1920, 1080)
	broken.Inaccessible = true
	ok := domtest.NewVideo(640, 360)

	got := selectPrimary([]*trackedVideo{cand(broken), cand(ok)})
	if got == nil || got.node != ok {
		t.Error("candidates with failed box reads are skipped, not fatal")
	}
}

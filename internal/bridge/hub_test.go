package bridge

import (
	"testing"
	"time"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/controller"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(Event{TabID: "tab1", Notice: controller.Notice{Kind: controller.NoticeSpeed, Speed: 1.5}})

	select {
	case ev := <-ch:
		if ev.TabID != "tab1" || ev.Speed != 1.5 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // safe twice

	h.Publish(Event{TabID: "tab1"})
	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}
}

func TestHubSlowSubscriberDroppedNotBlocking(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{TabID: "tab1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestHubMultipleSubscribers(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	defer cancelA()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(Event{TabID: "t"})
	for _, ch := range []<-chan Event{a, b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := &config.RuntimeConfig{ReconcileMs: 900, RateMs: 400, DebounceMs: 300, CorrectionMs: 150}
	ec := engineConfig(cfg)
	if ec.ReconcileInterval != 900*time.Millisecond {
		t.Errorf("ReconcileInterval = %v", ec.ReconcileInterval)
	}
	if ec.RateInterval != 400*time.Millisecond {
		t.Errorf("RateInterval = %v", ec.RateInterval)
	}
	if ec.DebounceWindow != 300*time.Millisecond {
		t.Errorf("DebounceWindow = %v", ec.DebounceWindow)
	}
	if ec.CorrectionDelay != 150*time.Millisecond {
		t.Errorf("CorrectionDelay = %v", ec.CorrectionDelay)
	}

	zero := engineConfig(nil)
	if zero.ReconcileInterval != 0 {
		t.Errorf("nil config should leave defaults to the controller")
	}
}

func TestSkipURL(t *testing.T) {
	cases := []struct {
		url  string
		skip bool
	}{
		{"chrome://newtab/", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"chrome-extension://abc/popup.html", true},
		{"https://example.com/watch", false},
		{"about:blank", false},
	}
	for _, tc := range cases {
		if got := skipURL(tc.url); got != tc.skip {
			t.Errorf("skipURL(%q) = %v, want %v", tc.url, got, tc.skip)
		}
	}
}

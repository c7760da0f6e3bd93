package controller

import (
	"context"
	"testing"
	"time"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/dom/domtest"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

func startWithVideo(t *testing.T, store settings.Store) (*domtest.Page, *domtest.Elem, *Controller) {
	t.Helper()
	page := domtest.NewPage("https://example.com")
	body := page.SetRoot(domtest.NewElem("body"))
	vid := domtest.NewVideo(800, 450)
	body.Append(vid)

	c := New(page, store, fastConfig(), testLogger())
	t.Cleanup(c.Stop)
	c.Start(context.Background())
	waitFor(t, time.Second, "primary election", c.HasPrimaryVideo)
	return page, vid, c
}

func TestKeyboardChords(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want float64
	}{
		{"increment", []string{"d"}, 1.1},
		{"decrement", []string{"s"}, 0.9},
		{"big jump", []string{"g"}, 2.0},
		{"stacked then reset", []string{"d", "d", "g", "r"}, 1.0},
		{"clamped at floor", []string{"s", "s", "s", "s", "s", "s", "s", "s", "s", "s", "s"}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, vid, c := startWithVideo(t, nil)
			for _, k := range tt.keys {
				page.PressKey(dom.KeyEvent{Key: k})
			}
			if got := c.GetCurrentSpeed(); got != tt.want {
				t.Errorf("speed = %v, want %v", got, tt.want)
			}
			waitFor(t, time.Second, "rate applied to primary", func() bool {
				return vid.CurrentRate() == tt.want
			})
		})
	}
}

func TestKeyboardInertInTextEntry(t *testing.T) {
	page, _, c := startWithVideo(t, nil)
	page.PressKey(dom.KeyEvent{Key: "d", TextEntry: true})
	if got := c.GetCurrentSpeed(); got != 1.0 {
		t.Errorf("speed = %v, chords must be inert while typing", got)
	}
}

func TestKeyboardUnknownKeyIgnored(t *testing.T) {
	page, _, c := startWithVideo(t, nil)
	page.PressKey(dom.KeyEvent{Key: "q"})
	if got := c.GetCurrentSpeed(); got != 1.0 {
		t.Errorf("speed = %v, unmapped keys must do nothing", got)
	}
}

func TestKeyboardSpeedPersistedWhenSaveEnabled(t *testing.T) {
	store := &memStore{}
	page, _, _ := startWithVideo(t, store)

	page.PressKey(dom.KeyEvent{Key: "d"})
	waitFor(t, time.Second, "speed write-back", func() bool {
		return store.saveCount() > 0
	})
	if got := store.saved().Speed; got != 1.1 {
		t.Errorf("persisted speed = %v, want 1.1", got)
	}
}

func TestKeyboardPersistFailureIsNonFatal(t *testing.T) {
	store := &memStore{saveErr: errObserver}
	page, vid, c := startWithVideo(t, store)

	page.PressKey(dom.KeyEvent{Key: "g"})
	if got := c.GetCurrentSpeed(); got != 2.0 {
		t.Errorf("speed = %v, want 2.0 despite storage failure", got)
	}
	waitFor(t, time.Second, "rate applied despite storage failure", func() bool {
		return vid.CurrentRate() == 2.0
	})
}

package bridge

import (
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/controller"
)

// TabControl is the per-tab surface the HTTP layer drives.
type TabControl interface {
	SetSpeed(rate float64, showIndicator bool, position string)
	GetCurrentSpeed() float64
	HasPrimaryVideo() bool
	Status() controller.Status
}

// API abstracts the tab registry for handler testing.
type API interface {
	ListTabs() ([]TabStatus, error)
	Tab(tabID string) (TabControl, bool)
	// FirstTab returns any attached tab, for callers that omit tabId.
	FirstTab() (TabControl, string, bool)
}

// TabStatus is one attached tab plus its controller snapshot.
type TabStatus struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Speed      float64 `json:"speed"`
	HasPrimary bool    `json:"hasPrimary"`
	Tracked    int     `json:"tracked"`
	Overlay    bool    `json:"overlay"`
}

// Event is one controller notice tagged with its tab.
type Event struct {
	TabID string `json:"tabId"`
	controller.Notice
}

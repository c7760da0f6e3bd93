// Package server exposes the daemon's HTTP and WebSocket surface: tab
// listing, per-tab speed control, and the controller event stream.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/bridge"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

const maxBodySize = 1 << 20

type Handlers struct {
	Tabs   bridge.API
	Events *bridge.Hub
	Config *config.RuntimeConfig
}

func New(tabs bridge.API, events *bridge.Hub, cfg *config.RuntimeConfig) *Handlers {
	return &Handlers{Tabs: tabs, Events: events, Config: cfg}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /tabs", h.HandleTabs)
	mux.HandleFunc("GET /speed", h.HandleGetSpeed)
	mux.HandleFunc("POST /speed", h.HandleSetSpeed)
	mux.HandleFunc("GET /events", h.HandleEvents)
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.Tabs.ListTabs()
	if err != nil {
		jsonResp(w, 200, map[string]any{"status": "disconnected", "error": err.Error(), "cdp": h.Config.CdpURL})
		return
	}
	jsonResp(w, 200, map[string]any{"status": "ok", "tabs": len(tabs), "cdp": h.Config.CdpURL})
}

func (h *Handlers) HandleTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.Tabs.ListTabs()
	if err != nil {
		jsonErr(w, 500, err)
		return
	}
	jsonResp(w, 200, map[string]any{"tabs": tabs})
}

// resolveTab finds the controller for a tab id, falling back to any
// attached tab when the id is empty.
func (h *Handlers) resolveTab(tabID string) (bridge.TabControl, string, error) {
	if tabID == "" {
		ctl, id, ok := h.Tabs.FirstTab()
		if !ok {
			return nil, "", fmt.Errorf("no tabs attached")
		}
		return ctl, id, nil
	}
	ctl, ok := h.Tabs.Tab(tabID)
	if !ok {
		return nil, "", fmt.Errorf("tab %s not found", tabID)
	}
	return ctl, tabID, nil
}

func (h *Handlers) HandleGetSpeed(w http.ResponseWriter, r *http.Request) {
	ctl, tabID, err := h.resolveTab(r.URL.Query().Get("tabId"))
	if err != nil {
		jsonErr(w, 404, err)
		return
	}
	jsonResp(w, 200, map[string]any{
		"tabId":      tabID,
		"speed":      ctl.GetCurrentSpeed(),
		"hasPrimary": ctl.HasPrimaryVideo(),
	})
}

// HandleSetSpeed records speed intent for a tab. hasPrimary in the
// response is the caller's readiness probe: false means the rate is
// remembered and will apply once a primary video appears.
func (h *Handlers) HandleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID         string   `json:"tabId"`
		Speed         *float64 `json:"speed"`
		ShowIndicator *bool    `json:"showIndicator"`
		Position      string   `json:"position"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		jsonErr(w, 400, err)
		return
	}
	if req.Speed == nil {
		jsonResp(w, 400, map[string]string{"error": "speed required"})
		return
	}
	if req.Position != "" && !settings.ValidPosition(req.Position) {
		jsonResp(w, 400, map[string]string{"error": fmt.Sprintf("unknown position: %s", req.Position)})
		return
	}

	ctl, tabID, err := h.resolveTab(req.TabID)
	if err != nil {
		jsonErr(w, 404, err)
		return
	}

	show := true
	if req.ShowIndicator != nil {
		show = *req.ShowIndicator
	}
	ctl.SetSpeed(*req.Speed, show, req.Position)

	jsonResp(w, 200, map[string]any{
		"tabId":      tabID,
		"speed":      ctl.GetCurrentSpeed(),
		"hasPrimary": ctl.HasPrimaryVideo(),
	})
}

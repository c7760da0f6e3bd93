package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// HandleEvents upgrades to WebSocket and streams controller events as JSON
// text frames. Query param tabId (optional) filters to one tab.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Events.Subscribe()
	defer cancel()

	done := make(chan struct{})

	// Read pump — detect client disconnect.
	go func() {
		defer close(done)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if tabID != "" && ev.TabID != tabID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("event marshal", "err", err)
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		case <-done:
			return
		case <-time.After(10 * time.Second):
			// Keepalive ping while idle.
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/bridge"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/controller"
	"github.com/Aneesh-Madupalli/Speed-Tune/internal/settings"
)

type fakeTab struct {
	speed      float64
	hasPrimary bool
	show       bool
	pos        string
	url        string
}

func (f *fakeTab) SetSpeed(rate float64, show bool, pos string) {
	f.speed = settings.ClampSpeed(rate)
	f.show = show
	f.pos = pos
}

func (f *fakeTab) GetCurrentSpeed() float64 { return f.speed }
func (f *fakeTab) HasPrimaryVideo() bool    { return f.hasPrimary }

func (f *fakeTab) Status() controller.Status {
	return controller.Status{URL: f.url, Speed: f.speed, HasPrimary: f.hasPrimary}
}

type fakeRegistry struct {
	tabs    map[string]*fakeTab
	order   []string
	listErr error
}

func (r *fakeRegistry) ListTabs() ([]bridge.TabStatus, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]bridge.TabStatus, 0, len(r.order))
	for _, id := range r.order {
		t := r.tabs[id]
		out = append(out, bridge.TabStatus{ID: id, URL: t.url, Speed: t.speed, HasPrimary: t.hasPrimary})
	}
	return out, nil
}

func (r *fakeRegistry) Tab(tabID string) (bridge.TabControl, bool) {
	t, ok := r.tabs[tabID]
	return t, ok
}

func (r *fakeRegistry) FirstTab() (bridge.TabControl, string, bool) {
	if len(r.order) == 0 {
		return nil, "", false
	}
	return r.tabs[r.order[0]], r.order[0], true
}

func newTestHandlers(tabs ...*fakeTab) (*Handlers, *fakeRegistry) {
	reg := &fakeRegistry{tabs: map[string]*fakeTab{}}
	for i, t := range tabs {
		id := "tab" + string(rune('1'+i))
		reg.tabs[id] = t
		reg.order = append(reg.order, id)
	}
	h := New(reg, bridge.NewHub(), &config.RuntimeConfig{CdpURL: "ws://localhost:9222"})
	return h, reg
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json response: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	h, reg := newTestHandlers(&fakeTab{speed: 1})

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest("GET", "/health", nil))
	body := decode(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["tabs"].(float64) != 1 {
		t.Errorf("tabs = %v", body["tabs"])
	}

	reg.listErr = errors.New("browser gone")
	w = httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest("GET", "/health", nil))
	body = decode(t, w)
	if body["status"] != "disconnected" {
		t.Errorf("status = %v, want disconnected", body["status"])
	}
}

func TestHandleTabs(t *testing.T) {
	h, reg := newTestHandlers(&fakeTab{speed: 1.5, hasPrimary: true, url: "https://example.com/watch"})

	w := httptest.NewRecorder()
	h.HandleTabs(w, httptest.NewRequest("GET", "/tabs", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "example.com/watch") {
		t.Errorf("body = %s", w.Body.String())
	}

	reg.listErr = errors.New("browser gone")
	w = httptest.NewRecorder()
	h.HandleTabs(w, httptest.NewRequest("GET", "/tabs", nil))
	if w.Code != 500 {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandleGetSpeed(t *testing.T) {
	h, _ := newTestHandlers(&fakeTab{speed: 2, hasPrimary: true})

	// Explicit tab.
	w := httptest.NewRecorder()
	h.HandleGetSpeed(w, httptest.NewRequest("GET", "/speed?tabId=tab1", nil))
	body := decode(t, w)
	if body["speed"].(float64) != 2 || body["hasPrimary"] != true {
		t.Errorf("body = %v", body)
	}

	// Defaults to the first tab.
	w = httptest.NewRecorder()
	h.HandleGetSpeed(w, httptest.NewRequest("GET", "/speed", nil))
	if body := decode(t, w); body["tabId"] != "tab1" {
		t.Errorf("tabId = %v", body["tabId"])
	}

	// Unknown tab.
	w = httptest.NewRecorder()
	h.HandleGetSpeed(w, httptest.NewRequest("GET", "/speed?tabId=nope", nil))
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleGetSpeedNoTabs(t *testing.T) {
	h, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.HandleGetSpeed(w, httptest.NewRequest("GET", "/speed", nil))
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleSetSpeed(t *testing.T) {
	tab := &fakeTab{speed: 1}
	h, _ := newTestHandlers(tab)

	req := httptest.NewRequest("POST", "/speed",
		bytes.NewReader([]byte(`{"tabId": "tab1", "speed": 2.5, "position": "top-left"}`)))
	w := httptest.NewRecorder()
	h.HandleSetSpeed(w, req)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if tab.speed != 2.5 || tab.pos != "top-left" {
		t.Errorf("tab = %+v", tab)
	}
	if !tab.show {
		t.Error("showIndicator should default to true")
	}

	// hasPrimary in the response is the readiness probe.
	body := decode(t, w)
	if body["hasPrimary"] != false {
		t.Errorf("hasPrimary = %v", body["hasPrimary"])
	}
}

func TestHandleSetSpeedValidation(t *testing.T) {
	h, _ := newTestHandlers(&fakeTab{})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing speed", `{"tabId": "tab1"}`, 400},
		{"bad json", `{`, 400},
		{"bad position", `{"speed": 2, "position": "upper-middle"}`, 400},
		{"unknown tab", `{"tabId": "nope", "speed": 2}`, 404},
		{"oversize body", `{"speed": 2, "position": "` + strings.Repeat("x", 1<<21) + `"}`, 400},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/speed", bytes.NewReader([]byte(tc.body)))
		w := httptest.NewRecorder()
		h.HandleSetSpeed(w, req)
		if w.Code != tc.code {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.code)
		}
	}
}

func TestHandleSetSpeedClampsThroughController(t *testing.T) {
	tab := &fakeTab{}
	h, _ := newTestHandlers(tab)

	req := httptest.NewRequest("POST", "/speed", bytes.NewReader([]byte(`{"speed": 99}`)))
	w := httptest.NewRecorder()
	h.HandleSetSpeed(w, req)
	if body := decode(t, w); body["speed"].(float64) != settings.MaxSpeed {
		t.Errorf("speed = %v, want %v", body["speed"], settings.MaxSpeed)
	}
}

func TestHandleSetSpeedIndicatorOff(t *testing.T) {
	tab := &fakeTab{show: true}
	h, _ := newTestHandlers(tab)

	req := httptest.NewRequest("POST", "/speed",
		bytes.NewReader([]byte(`{"speed": 1.5, "showIndicator": false}`)))
	w := httptest.NewRecorder()
	h.HandleSetSpeed(w, req)
	if tab.show {
		t.Error("showIndicator false should pass through")
	}
}

func TestAuthMiddleware(t *testing.T) {
	h, _ := newTestHandlers(&fakeTab{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	protected := AuthMiddleware(&config.RuntimeConfig{Token: "sekrit"}, mux)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("good token: status = %d, want 200", w.Code)
	}

	open := AuthMiddleware(&config.RuntimeConfig{}, mux)
	req = httptest.NewRequest("GET", "/health", nil)
	w = httptest.NewRecorder()
	open.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Errorf("no auth configured: status = %d, want 200", w.Code)
	}
}

func TestCorsPreflight(t *testing.T) {
	h, _ := newTestHandlers(&fakeTab{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest("OPTIONS", "/speed", nil)
	w := httptest.NewRecorder()
	CorsMiddleware(mux).ServeHTTP(w, req)
	if w.Code != 204 {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestEventsStream(t *testing.T) {
	h, _ := newTestHandlers(&fakeTab{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(LoggingMiddleware(mux))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?tabId=tab1"
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer conn.Close()

	// Give the server loop a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	h.Events.Publish(bridge.Event{TabID: "tab2", Notice: controller.Notice{Kind: controller.NoticeSpeed, Speed: 3}})
	h.Events.Publish(bridge.Event{TabID: "tab1", Notice: controller.Notice{Kind: controller.NoticeSpeed, Speed: 1.5}})

	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev bridge.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if ev.TabID != "tab1" || ev.Speed != 1.5 {
		t.Errorf("event = %+v, filter should drop tab2", ev)
	}
}

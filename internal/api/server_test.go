package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/deckd/internal/broker"
	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/infrastructure/config"
	"github.com/nerrad567/deckd/internal/infrastructure/logging"
	"github.com/nerrad567/deckd/internal/protocol"
	"github.com/nerrad567/deckd/internal/store"
)

// fakeDev is an in-memory broker.DeviceOps recording every call.
type fakeDev struct {
	mu        sync.Mutex
	available bool
	open      bool
	events    chan hid.Event

	calls    []string
	displays []protocol.DisplayUpdate
}

func newFakeDev() *fakeDev {
	return &fakeDev{
		available: true,
		events:    make(chan hid.Event, 16),
	}
}

func (d *fakeDev) record(call string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	return nil
}

func (d *fakeDev) callCount(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (d *fakeDev) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

func (d *fakeDev) DeviceName() string { return "Deck MK1" }

func (d *fakeDev) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *fakeDev) Firmware() string { return "1.4.2" }

func (d *fakeDev) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "open")
	if !d.available {
		return hid.ErrNotFound
	}
	d.open = true
	return nil
}

func (d *fakeDev) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "close")
	d.open = false
}

func (d *fakeDev) Events() <-chan hid.Event { return d.events }

func (d *fakeDev) Ping() error { return d.record("ping") }

func (d *fakeDev) QueryVersion() (string, error) { return "1.4.2", d.record("version") }

func (d *fakeDev) SendDisplayUpdate(u protocol.DisplayUpdate) error {
	err := d.record("display")
	d.mu.Lock()
	d.displays = append(d.displays, u)
	d.mu.Unlock()
	return err
}

func (d *fakeDev) SendAlert(protocol.AlertRequest) error { return d.record("alert") }

func (d *fakeDev) ClearAlert(uint8) error { return d.record("clear_alert") }

func (d *fakeDev) SetBrightness(uint8, bool) error { return d.record("brightness") }

func (d *fakeDev) SetMode(protocol.DeviceMode) error { return d.record("mode") }

func (d *fakeDev) SetSoftKey(protocol.SoftKeyConfig, bool) error { return d.record("set_soft_key") }

func (d *fakeDev) GetSoftKey(index uint8) (protocol.SoftKeyConfig, error) {
	return protocol.SoftKeyConfig{Index: index}, d.record("get_soft_key")
}

func (d *fakeDev) ResetSoftKeys() ([]protocol.SoftKeyConfig, error) {
	return nil, d.record("reset_soft_keys")
}

// fakeHistory serves canned events for the history endpoint.
type fakeHistory struct {
	events []store.Event
	err    error
}

func (h *fakeHistory) History(_ context.Context, _ int) ([]store.Event, error) {
	return h.events, h.err
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Path:           "/ws",
		MaxMessageSize: 4096,
		PingInterval:   30,
		PongTimeout:    60,
	}
}

func newTestServer(t *testing.T, dev *fakeDev) (*Server, *broker.Broker, *httptest.Server) {
	t.Helper()

	b := broker.New(broker.Config{CommandTimeout: 2 * time.Second}, dev, nil, nil, nil)

	s, err := New(Deps{
		WS:      testWSConfig(),
		Logger:  logging.Default(),
		Broker:  b,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(ts.Close)
	return s, b, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) Error {
	t.Helper()
	defer resp.Body.Close()
	var e Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return e
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusSnapshot(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	b.State().Apply(hid.Event{Kind: hid.EventConnected, Name: "Deck MK1", Firmware: "1.4.2"})

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var status protocol.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.DeviceConnected || status.DeviceName != "Deck MK1" {
		t.Errorf("status = %+v", status)
	}
	if status.Locked {
		t.Error("expected unlocked with no persistent client")
	}

	// Status never touches the device.
	if got := dev.callCount("open"); got != 0 {
		t.Errorf("status opened the device %d times", got)
	}
}

func TestDisplayTransient(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	resp := postJSON(t, ts.URL+"/api/v1/display", protocol.DisplayUpdate{
		Session: "build",
		Tabs:    []uint8{protocol.TabStateWorking},
		Active:  0,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := dev.callCount("display"); got != 1 {
		t.Errorf("display calls = %d, want 1", got)
	}
	// Transient access opens and closes around the operation.
	if dev.callCount("open") != 1 || dev.callCount("close") != 1 {
		t.Errorf("calls = %v, want open/display/close", dev.calls)
	}
}

func TestDisplayValidation(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp := postJSON(t, ts.URL+"/api/v1/display", protocol.DisplayUpdate{
		Session: "build",
		Tabs:    make([]uint8, protocol.MaxTabs+1),
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeValidation)
	}
}

func TestDisplayMalformedJSON(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp, err := http.Post(ts.URL+"/api/v1/display", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDisplayLockedOut(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	if err := b.AcquireSession("holder"); err != nil {
		t.Fatalf("AcquireSession: %v", err)
	}
	defer b.ReleaseSession("holder")

	resp := postJSON(t, ts.URL+"/api/v1/display", protocol.DisplayUpdate{Session: "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeLocked {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeLocked)
	}

	// Status reflects the lock.
	sr, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer sr.Body.Close()
	var status protocol.Status
	if err := json.NewDecoder(sr.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Locked {
		t.Error("expected status locked=true while held")
	}
}

func TestDisplayDeviceUnavailable(t *testing.T) {
	dev := newFakeDev()
	dev.available = false
	_, _, ts := newTestServer(t, dev)

	resp := postJSON(t, ts.URL+"/api/v1/display", protocol.DisplayUpdate{Session: "x"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeDeviceUnavailable {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeDeviceUnavailable)
	}
}

func TestAlertEndpoint(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	resp := postJSON(t, ts.URL+"/api/v1/alert", protocol.AlertRequest{
		Tab:     2,
		Session: "build",
		Text:    "needs input",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := dev.callCount("alert"); got != 1 {
		t.Errorf("alert calls = %d, want 1", got)
	}
}

func TestClearAlertBadTab(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp := postJSON(t, ts.URL+"/api/v1/alert/clear", protocol.ClearAlertRequest{Tab: protocol.MaxTabs})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestBrightnessEndpoint(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	resp := postJSON(t, ts.URL+"/api/v1/brightness", protocol.BrightnessRequest{Level: 128, Save: true})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := dev.callCount("brightness"); got != 1 {
		t.Errorf("brightness calls = %d, want 1", got)
	}
}

func TestModeEndpoint(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	resp := postJSON(t, ts.URL+"/api/v1/mode", map[string]string{"mode": "plan"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := dev.callCount("mode"); got != 1 {
		t.Errorf("mode calls = %d, want 1", got)
	}
}

func TestModeUnknown(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp := postJSON(t, ts.URL+"/api/v1/mode", map[string]string{"mode": "turbo"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHistoryEndpoint(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeDev(), nil, nil, nil)
	s, err := New(Deps{
		WS:     testWSConfig(),
		Logger: logging.Default(),
		Broker: b,
		History: &fakeHistory{events: []store.Event{
			{ID: 2, Kind: "connected", CreatedAt: time.Now()},
			{ID: 1, Kind: "device_available", CreatedAt: time.Now().Add(-time.Minute)},
		}},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/history?limit=10")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Events []store.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 2 || body.Events[0].Kind != "connected" {
		t.Errorf("events = %+v", body.Events)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp, err := http.Get(ts.URL + "/api/v1/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHistoryBadLimit(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeDev(), nil, nil, nil)
	s, err := New(Deps{
		WS:      testWSConfig(),
		Logger:  logging.Default(),
		Broker:  b,
		History: &fakeHistory{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/history?limit=nope")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRequestIDHeader(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-Request-ID", "trace-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}

func TestWriteOpErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"locked", broker.ErrLocked, http.StatusConflict, ErrCodeLocked},
		{"unavailable", broker.ErrDeviceUnavailable, http.StatusServiceUnavailable, ErrCodeDeviceUnavailable},
		{"payload too large", fmt.Errorf("%w: 600 bytes, max 512", hid.ErrPayloadTooLarge), http.StatusBadRequest, ErrCodeValidation},
		{"bad tab index", protocol.ErrBadTabIndex, http.StatusBadRequest, ErrCodeValidation},
		{"io fault", hid.ErrIO, http.StatusBadGateway, ErrCodeDeviceError},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeOpError(w, tt.err)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var e Error
			if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
		})
	}
}

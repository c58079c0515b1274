package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/protocol"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads the next binary frame from the connection.
func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		f, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return f
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, f protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWSInitialStateOrdering(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	// Device already connected before the client arrives.
	b.State().Apply(hid.Event{Kind: hid.EventConnected, Name: "Deck MK1", Firmware: "1.4.2"})
	b.State().Apply(hid.Event{Kind: hid.EventStateChanged, State: protocol.DeviceState{
		Mode: protocol.ModePlan,
		Yolo: true,
	}})

	conn := dialWS(t, ts)

	first := readFrame(t, conn)
	if first.Tag != protocol.TagDeviceConnected {
		t.Fatalf("first frame tag = %s, want DeviceConnected", first.Tag)
	}
	var info protocol.DeviceInfo
	if err := json.Unmarshal(first.Payload, &info); err != nil {
		t.Fatalf("DeviceInfo payload: %v", err)
	}
	if info.Name != "Deck MK1" || info.Firmware != "1.4.2" {
		t.Errorf("info = %+v", info)
	}

	second := readFrame(t, conn)
	if second.Tag != protocol.TagStateChanged {
		t.Fatalf("second frame tag = %s, want StateChanged", second.Tag)
	}
	if len(second.Payload) != 1 {
		t.Fatalf("state payload length = %d, want 1", len(second.Payload))
	}
	state, _ := protocol.DeviceStateFromByte(second.Payload[0])
	if state.Mode != protocol.ModePlan || !state.Yolo {
		t.Errorf("state = %+v", state)
	}
}

func TestWSCommandAckEchoesSequence(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	conn := dialWS(t, ts)
	sendFrame(t, conn, protocol.Frame{Tag: protocol.TagPing, Seq: 42})

	resp := readFrame(t, conn)
	if resp.Tag != protocol.TagCommandAck {
		t.Fatalf("tag = %s, want CommandAck", resp.Tag)
	}
	if resp.Seq != 42 {
		t.Errorf("seq = %d, want 42", resp.Seq)
	}
	if got := dev.callCount("ping"); got != 1 {
		t.Errorf("ping calls = %d, want 1", got)
	}
}

func TestWSSecondConnectionRefused(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	_ = dialWS(t, ts)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err == nil {
		t.Fatal("expected second dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected HTTP 409, got %+v", resp)
	}
}

func TestWSUnknownTag(t *testing.T) {
	_, _, ts := newTestServer(t, newFakeDev())

	conn := dialWS(t, ts)

	// Unknown tag 0x7F, sequence 300 little-endian.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x7F, 0x2C, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp := readFrame(t, conn)
	if resp.Tag != protocol.TagCommandError {
		t.Fatalf("tag = %s, want CommandError", resp.Tag)
	}
	if resp.Seq != 300 {
		t.Errorf("seq = %d, want 300", resp.Seq)
	}
}

func TestWSMalformedFrameDropped(t *testing.T) {
	dev := newFakeDev()
	_, _, ts := newTestServer(t, dev)

	conn := dialWS(t, ts)

	// Truncated header: logged and dropped, connection stays up.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Command with sequence 0: also dropped.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x02, 0x00, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}

	sendFrame(t, conn, protocol.Frame{Tag: protocol.TagPing, Seq: 7})

	resp := readFrame(t, conn)
	if resp.Tag != protocol.TagCommandAck || resp.Seq != 7 {
		t.Fatalf("got %s seq %d, want CommandAck seq 7", resp.Tag, resp.Seq)
	}
}

func TestWSDisconnectReleasesLock(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	conn := dialWS(t, ts)

	// Lock held while connected.
	deadline := time.Now().Add(2 * time.Second)
	for !b.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("lock never acquired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	for b.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("lock never released after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Device interface closed with the session.
	for dev.IsOpen() {
		if time.Now().After(deadline) {
			t.Fatal("device never closed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSBroadcastEvents(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	ctx := testContext(t)
	go b.Run(ctx)

	conn := dialWS(t, ts)

	// Give the session a moment to subscribe before emitting.
	time.Sleep(50 * time.Millisecond)

	dev.events <- hid.Event{Kind: hid.EventKey, Keycode: 0x0204}

	f := readFrame(t, conn)
	if f.Tag != protocol.TagKeyEvent {
		t.Fatalf("tag = %s, want KeyEvent", f.Tag)
	}
	if len(f.Payload) != 2 || f.Payload[0] != 0x02 || f.Payload[1] != 0x04 {
		t.Errorf("payload = %v, want [0x02 0x04]", f.Payload)
	}
}

func TestWSLockExclusivityWithTransient(t *testing.T) {
	dev := newFakeDev()
	_, b, ts := newTestServer(t, dev)

	_ = dialWS(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for !b.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("lock never acquired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := postJSON(t, ts.URL+"/api/v1/display", protocol.DisplayUpdate{Session: "x"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("transient during session: status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

// testContext returns a context that is canceled when the test ends,
// matching the behavior of t.Context() from newer Go releases.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

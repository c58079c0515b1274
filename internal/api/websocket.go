package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/deckd/internal/broker"
	"github.com/nerrad567/deckd/internal/protocol"
)

// wsSendBufferSize is the outbound frame buffer for the persistent
// session.
const wsSendBufferSize = 256

// upgrader configures the WebSocket upgrader. The daemon binds to
// localhost, so origins are not restricted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWebSocket establishes the persistent session.
//
// The exclusive device lock is acquired before the upgrade so a second
// connection attempt is refused with plain HTTP 409 rather than a
// WebSocket close. On disconnect the lock is released unconditionally
// and all pending commands fail.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	holder := uuid.NewString()

	if err := s.broker.AcquireSession(holder); err != nil {
		writeError(w, http.StatusConflict, ErrCodeLocked, "device is locked by another client")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.broker.ReleaseSession(holder)
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := &wsSession{
		server:   s,
		conn:     conn,
		holder:   holder,
		mux:      s.broker.NewSessionMux(),
		outbound: make(chan protocol.Frame, wsSendBufferSize),
		done:     make(chan struct{}),
	}

	s.logger.Info("persistent client connected", "holder", holder)
	sess.run()
}

// wsSession is one persistent client connection holding the device
// lock.
type wsSession struct {
	server   *Server
	conn     *websocket.Conn
	holder   string
	mux      *broker.Mux
	outbound chan protocol.Frame
	done     chan struct{}
}

// run drives the session until the client disconnects. The read loop
// runs in the calling goroutine; a single writer goroutine owns the
// connection's write side.
func (sess *wsSession) run() {
	events := sess.server.broker.Subscribe()

	defer func() {
		sess.server.broker.Unsubscribe(events)
		sess.mux.Close()
		sess.server.broker.ReleaseSession(sess.holder)
		sess.conn.Close()
		sess.server.logger.Info("persistent client disconnected", "holder", sess.holder)
	}()

	// The device may already be connected when the session starts; the
	// client needs the connect event and current state before anything
	// else arrives on the channel.
	sess.sendInitialState()

	go sess.writePump(events)
	sess.readLoop()
	close(sess.done)
}

// sendInitialState queues DeviceConnected and StateChanged for an
// already-connected device, in that order, ahead of all other traffic.
func (sess *wsSession) sendInitialState() {
	snap := sess.server.broker.State().Snapshot()
	if !snap.DeviceConnected {
		return
	}

	info, err := json.Marshal(protocol.DeviceInfo{
		Name:     snap.DeviceName,
		Firmware: snap.FirmwareVersion,
	})
	if err != nil {
		return
	}

	state := protocol.DeviceState{
		Mode: snap.DeviceMode,
		Yolo: snap.DeviceYolo,
	}

	sess.queue(protocol.Frame{Tag: protocol.TagDeviceConnected, Payload: info})
	sess.queue(protocol.Frame{Tag: protocol.TagStateChanged, Payload: []byte{state.Byte()}})
}

// readLoop reads binary frames from the client and submits commands to
// the mux. Malformed frames are logged and dropped; unknown tags get a
// CommandError echoing the sequence.
func (sess *wsSession) readLoop() {
	logger := sess.server.logger
	cfg := sess.server.wsCfg

	sess.conn.SetReadLimit(cfg.MaxMessageSize)
	deadline := cfg.GetPingInterval() + cfg.GetPongTimeout()
	//nolint:errcheck // Best-effort deadline on connection setup
	sess.conn.SetReadDeadline(time.Now().Add(deadline))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "error", err)
			} else {
				logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		sess.conn.SetReadDeadline(time.Now().Add(deadline))

		if msgType != websocket.BinaryMessage {
			logger.Debug("ignoring non-binary websocket message")
			continue
		}

		sess.handleFrame(data)
	}
}

// handleFrame processes one inbound wire frame.
func (sess *wsSession) handleFrame(data []byte) {
	logger := sess.server.logger

	if len(data) >= protocol.HeaderSize && !protocol.Tag(data[0]).Known() {
		// An unknown tag still has a readable sequence; answer it so the
		// client's pending command does not hang until timeout.
		seq := uint16(data[1]) | uint16(data[2])<<8
		sess.queue(protocol.Frame{
			Tag:     protocol.TagCommandError,
			Seq:     seq,
			Payload: []byte("unknown command tag"),
		})
		return
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		logger.Warn("dropping malformed frame", "error", err)
		return
	}

	if !frame.Tag.IsCommand() {
		logger.Warn("dropping non-command frame from client", "tag", frame.Tag.String())
		return
	}

	respCh, err := sess.mux.Submit(frame)
	if err != nil {
		if errors.Is(err, broker.ErrConnectionClosed) {
			return
		}
		// Duplicate sequence or pending limit reached.
		sess.queue(protocol.Frame{
			Tag:     protocol.TagCommandError,
			Seq:     frame.Seq,
			Payload: []byte(err.Error()),
		})
		return
	}

	go func() {
		select {
		case resp := <-respCh:
			sess.queue(resp)
		case <-sess.done:
		}
	}()
}

// queue drops the frame if the outbound buffer is full; a client that
// slow has bigger problems than a lost event.
func (sess *wsSession) queue(f protocol.Frame) {
	select {
	case sess.outbound <- f:
	default:
		sess.server.logger.Warn("outbound buffer full, dropping frame", "tag", f.Tag.String())
	}
}

// writePump owns the connection's write side: queued frames, broadcast
// events, and protocol-level pings.
func (sess *wsSession) writePump(events chan protocol.Frame) {
	cfg := sess.server.wsCfg
	ticker := time.NewTicker(cfg.GetPingInterval())
	defer ticker.Stop()

	for {
		select {
		case f := <-sess.outbound:
			if !sess.writeFrame(f) {
				return
			}
		case f, ok := <-events:
			if !ok {
				return
			}
			if !sess.writeFrame(f) {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			sess.conn.SetWriteDeadline(time.Now().Add(cfg.GetPongTimeout()))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.done:
			return
		}
	}
}

// writeFrame encodes and writes one frame, reporting whether the
// connection is still usable.
func (sess *wsSession) writeFrame(f protocol.Frame) bool {
	data, err := protocol.Encode(f)
	if err != nil {
		sess.server.logger.Error("frame encode failed", "tag", f.Tag.String(), "error", err)
		return true
	}

	//nolint:errcheck // Best-effort deadline; write error caught below
	sess.conn.SetWriteDeadline(time.Now().Add(sess.server.wsCfg.GetPongTimeout()))
	if err := sess.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return false
	}
	return true
}

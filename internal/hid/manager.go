package hid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/deckd/internal/protocol"
)

// Logger is the subset of logging used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds manager tunables. Zero values fall back to defaults.
type Config struct {
	VendorID  uint16
	ProductID uint16

	// PingInterval is the keepalive period while the interface is open.
	PingInterval time.Duration

	// ResponseTimeout bounds a single command/response exchange.
	ResponseTimeout time.Duration

	// PollInitial and PollMax bound the presence-poll backoff.
	PollInitial time.Duration
	PollMax     time.Duration
}

func (c *Config) applyDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 2 * time.Second
	}
	if c.PollInitial <= 0 {
		c.PollInitial = 500 * time.Millisecond
	}
	if c.PollMax <= 0 {
		c.PollMax = 5 * time.Second
	}
}

// disconnectThreshold is the number of consecutive failed keepalive
// pings before the interface is declared lost.
const disconnectThreshold = 3

// readPoll is the per-read timeout used inside a transaction and by
// the idle reader between pings.
const readPoll = 50 * time.Millisecond

// Response is a completed firmware response to one command.
type Response struct {
	Cmd  byte
	Data []byte
}

// Manager owns the HID interface: presence polling, open/close,
// serialized command transactions and keepalive. All device I/O goes
// through the manager mutex, so at most one command is in flight.
type Manager struct {
	cfg    Config
	opener Opener
	logger Logger
	events chan Event

	mu          sync.Mutex // serializes open/close and all device I/O
	dev         Device
	devInfo     Info
	firmware    string
	lastDisplay []byte // last display payload sent, for dedup
	incoming    Reassembler
	sessionStop chan struct{}

	availMu   sync.RWMutex
	available bool
	availName string

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewManager creates a manager. Run must be called to start presence
// polling; Open/Close are driven by the caller.
func NewManager(cfg Config, opener Opener, logger Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		cfg:    cfg,
		opener: opener,
		logger: logger,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events returns the device event channel. Events are dropped with a
// warning when the channel is full.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Available reports whether the deck is physically present.
func (m *Manager) Available() bool {
	m.availMu.RLock()
	defer m.availMu.RUnlock()
	return m.available
}

// DeviceName returns the product name from the last enumeration, or
// "" when the deck has never been seen.
func (m *Manager) DeviceName() string {
	m.availMu.RLock()
	defer m.availMu.RUnlock()
	return m.availName
}

// IsOpen reports whether the HID interface is currently open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev != nil
}

// Firmware returns the firmware version reported at open, or "".
func (m *Manager) Firmware() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firmware
}

// Run polls for device presence until ctx is cancelled. The poll
// interval backs off while the deck is absent and resets when it
// appears.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.PollInitial
	m.poll()
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.done:
			return
		case <-time.After(interval):
		}
		if m.poll() {
			interval = m.cfg.PollInitial
		} else {
			interval = interval * 3 / 2
			if interval > m.cfg.PollMax {
				interval = m.cfg.PollMax
			}
		}
	}
}

// Stop shuts the manager down: closes the interface if open and stops
// background work. Safe to call more than once.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.done)
	})
	m.Close()
	m.wg.Wait()
}

// poll performs one presence check and reports whether the deck is
// present.
func (m *Manager) poll() bool {
	info, ok := m.opener.Find()

	m.availMu.Lock()
	was := m.available
	m.available = ok
	if ok {
		m.availName = info.Name
	}
	m.availMu.Unlock()

	switch {
	case ok && !was:
		m.logger.Info("device detected", "name", info.Name, "path", info.Path)
		m.emit(Event{Kind: EventDeviceAvailable, Name: info.Name})
	case !ok && was:
		m.logger.Info("device removed")
		m.mu.Lock()
		wasOpen := m.dev != nil
		m.closeLocked()
		m.mu.Unlock()
		if wasOpen {
			m.emit(Event{Kind: EventDisconnected})
		}
		m.emit(Event{Kind: EventDeviceUnavailable})
	}
	return ok
}

// Open opens the HID interface and queries the firmware version. It is
// a no-op when already open. Returns ErrNotFound when the deck is not
// present.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev != nil {
		return nil
	}
	info, ok := m.opener.Find()
	if !ok {
		return fmt.Errorf("open: %w", ErrNotFound)
	}
	dev, err := m.opener.Open(info)
	if err != nil {
		return fmt.Errorf("open %s: %w", info.Path, err)
	}
	m.dev = dev
	m.devInfo = info
	m.incoming.Reset()
	m.lastDisplay = nil

	version := "unknown"
	if resp, err := m.transactLocked(CmdGetVersion, nil); err != nil {
		m.logger.Warn("version query failed", "error", err)
	} else {
		version = string(resp.Data)
	}
	m.firmware = version

	stop := make(chan struct{})
	m.sessionStop = stop
	m.wg.Add(1)
	go m.sessionLoop(stop)

	m.logger.Info("device connected", "name", info.Name, "firmware", version)
	m.emit(Event{Kind: EventConnected, Name: info.Name, Firmware: version})
	return nil
}

// Close closes the HID interface if open and emits Disconnected.
func (m *Manager) Close() {
	m.mu.Lock()
	wasOpen := m.dev != nil
	m.closeLocked()
	m.mu.Unlock()
	if wasOpen {
		m.emit(Event{Kind: EventDisconnected})
	}
}

// closeLocked tears down the open interface. Caller holds m.mu.
func (m *Manager) closeLocked() {
	if m.sessionStop != nil {
		close(m.sessionStop)
		m.sessionStop = nil
	}
	if m.dev != nil {
		if err := m.dev.Close(); err != nil {
			m.logger.Warn("device close", "error", err)
		}
		m.dev = nil
		m.firmware = ""
		m.lastDisplay = nil
		m.incoming.Reset()
		m.logger.Info("device closed", "path", m.devInfo.Path)
	}
}

// Transact sends one command and waits for its response. Commands are
// serialized; device-initiated packets that interleave with the
// response are dispatched as events.
func (m *Manager) Transact(cmd byte, payload []byte) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactLocked(cmd, payload)
}

func (m *Manager) transactLocked(cmd byte, payload []byte) (*Response, error) {
	if m.dev == nil {
		return nil, ErrNotOpen
	}

	reports, err := Chunk(cmd, payload)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		if err := m.dev.WriteReport(r); err != nil {
			m.lostLocked(err)
			return nil, fmt.Errorf("write 0x%02x: %w (%v)", cmd, ErrIO, err)
		}
	}

	var resp Reassembler
	deadline := time.Now().Add(m.cfg.ResponseTimeout)
	for time.Now().Before(deadline) {
		r, ok, err := m.dev.ReadReport(readPoll)
		if err != nil {
			m.lostLocked(err)
			return nil, fmt.Errorf("read 0x%02x: %w (%v)", cmd, ErrIO, err)
		}
		if !ok {
			continue
		}
		if deviceInitiated(r.Cmd()) {
			m.feedIncomingLocked(r)
			continue
		}
		msg, ferr := resp.Feed(r)
		if ferr != nil {
			m.logger.Warn("response framing", "cmd", fmt.Sprintf("0x%02x", cmd), "error", ferr)
		}
		if msg == nil {
			continue
		}
		return decodeResponse(cmd, msg)
	}
	return nil, fmt.Errorf("command 0x%02x: %w", cmd, ErrResponseTimeout)
}

// decodeResponse interprets a reassembled response message. The first
// payload byte is the firmware status; non-zero means failure.
func decodeResponse(cmd byte, msg *Message) (*Response, error) {
	status := byte(0)
	data := msg.Payload
	if len(data) > 0 {
		status = data[0]
		data = data[1:]
	}
	if msg.Cmd == CmdError || status != 0 {
		return nil, fmt.Errorf("command 0x%02x: %w: %s", cmd, ErrFirmware, firmwareErrorMessage(status))
	}
	return &Response{Cmd: msg.Cmd, Data: data}, nil
}

// lostLocked handles an I/O failure on the open interface: close it
// and emit Disconnected. Caller holds m.mu.
func (m *Manager) lostLocked(err error) {
	m.logger.Error("device i/o failed", "error", err)
	wasOpen := m.dev != nil
	m.closeLocked()
	if wasOpen {
		m.emit(Event{Kind: EventDisconnected})
	}
}

// sessionLoop drains unsolicited packets and sends keepalive pings
// while the interface is open.
func (m *Manager) sessionLoop(stop chan struct{}) {
	defer m.wg.Done()

	nextPing := time.Now().Add(m.cfg.PingInterval)
	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-m.done:
			return
		default:
		}

		if time.Now().After(nextPing) {
			nextPing = time.Now().Add(m.cfg.PingInterval)
			if err := m.Ping(); err != nil {
				if err == ErrNotOpen {
					return
				}
				failures++
				m.logger.Warn("keepalive ping failed", "failures", failures, "error", err)
				if failures >= disconnectThreshold {
					m.logger.Error("keepalive threshold reached, dropping device")
					m.Close()
					return
				}
				continue
			}
			failures = 0
			continue
		}

		m.drainOnce()
	}
}

// drainOnce reads one unsolicited report if the interface is idle.
// TryLock keeps the reader from stalling an in-flight transaction.
func (m *Manager) drainOnce() {
	if !m.mu.TryLock() {
		time.Sleep(readPoll)
		return
	}
	defer m.mu.Unlock()

	if m.dev == nil {
		return
	}
	r, ok, err := m.dev.ReadReport(readPoll)
	if err != nil {
		m.lostLocked(err)
		return
	}
	if ok {
		m.feedIncomingLocked(r)
	}
}

// feedIncomingLocked routes one device-initiated report through the
// shared reassembler and dispatches completed messages.
func (m *Manager) feedIncomingLocked(r Report) {
	msg, err := m.incoming.Feed(r)
	if err != nil {
		m.logger.Warn("incoming framing", "error", err)
	}
	if msg != nil {
		m.dispatch(msg)
	}
}

// dispatch turns one device-initiated message into an event.
func (m *Manager) dispatch(msg *Message) {
	switch msg.Cmd {
	case CmdStateReport:
		if len(msg.Payload) < 1 {
			m.logger.Warn("empty state report")
			return
		}
		state, reserved := protocol.DeviceStateFromByte(msg.Payload[0])
		if reserved != 0 {
			m.logger.Warn("state report has reserved bits set", "bits", fmt.Sprintf("0x%02x", reserved))
		}
		m.emit(Event{Kind: EventStateChanged, State: state})
	case CmdKeyEvent:
		if len(msg.Payload) < 2 {
			m.logger.Warn("short key event", "len", len(msg.Payload))
			return
		}
		code := uint16(msg.Payload[0])<<8 | uint16(msg.Payload[1])
		m.emit(Event{Kind: EventKey, Keycode: code})
	case CmdTypeString:
		if len(msg.Payload) < 1 {
			m.logger.Warn("empty type-string packet")
			return
		}
		m.emit(Event{
			Kind:      EventTypeString,
			Text:      string(msg.Payload[1:]),
			SendEnter: msg.Payload[0]&0x01 != 0,
		})
	case CmdPing:
		m.logger.Debug("device ping")
	default:
		m.logger.Warn("unexpected device packet", "cmd", fmt.Sprintf("0x%02x", msg.Cmd))
	}
}

// emit sends an event without blocking; full channel drops with a log.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event channel full, dropping", "kind", ev.Kind.String())
	}
}

// Package broker owns device access policy: the exclusive lock, the
// shared state cache, command execution and event fan-out. It sits
// between the API surfaces and the HID layer so neither ever touches
// the hardware directly.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/protocol"
	"github.com/nerrad567/deckd/internal/store"
)

// Logger is the subset of logging used by the broker.
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

// DeviceOps is the device surface the broker drives. Implemented by
// *hid.Manager; faked in tests.
type DeviceOps interface {
	Available() bool
	DeviceName() string
	IsOpen() bool
	Firmware() string
	Open() error
	Close()
	Events() <-chan hid.Event

	Ping() error
	QueryVersion() (string, error)
	SendDisplayUpdate(protocol.DisplayUpdate) error
	SendAlert(protocol.AlertRequest) error
	ClearAlert(tab uint8) error
	SetBrightness(level uint8, save bool) error
	SetMode(protocol.DeviceMode) error
	SetSoftKey(cfg protocol.SoftKeyConfig, save bool) error
	GetSoftKey(index uint8) (protocol.SoftKeyConfig, error)
	ResetSoftKeys() ([]protocol.SoftKeyConfig, error)
}

// Store persists device preferences and the event history. Optional;
// a nil store disables persistence.
type Store interface {
	Preferences(ctx context.Context) (store.Preferences, error)
	SaveBrightness(ctx context.Context, level uint8) error
	SaveMode(ctx context.Context, mode string) error
	RecordEvent(ctx context.Context, kind, detail string) error
}

// StatusPublisher mirrors state transitions to an external bus.
// Optional; a nil publisher disables mirroring.
type StatusPublisher interface {
	PublishStatus(protocol.Status)
}

// Config holds broker tunables.
type Config struct {
	// CommandTimeout bounds a submitted command's life in the mux.
	CommandTimeout time.Duration
}

// Broker coordinates exclusive and transient device access.
type Broker struct {
	cfg       Config
	dev       DeviceOps
	store     Store
	publisher StatusPublisher
	logger    Logger

	arbiter *Arbiter
	state   *StateCache

	// statusCh carries the latest snapshot to the publish loop. A slow
	// external bus must not stall event handling, so a pending snapshot
	// is replaced rather than queued.
	statusCh chan protocol.Status

	subMu sync.Mutex
	subs  map[chan protocol.Frame]struct{}
}

// New creates a broker. store and publisher may be nil.
func New(cfg Config, dev DeviceOps, store Store, publisher StatusPublisher, logger Logger) *Broker {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Broker{
		cfg:       cfg,
		dev:       dev,
		store:     store,
		publisher: publisher,
		logger:    logger,
		arbiter:   &Arbiter{},
		state:     NewStateCache(),
		statusCh:  make(chan protocol.Status, 1),
	}
}

// State returns the shared state cache.
func (b *Broker) State() *StateCache {
	return b.state
}

// Locked reports whether a persistent client holds the lock.
func (b *Broker) Locked() bool {
	return b.arbiter.Locked()
}

// Run consumes device events until ctx is cancelled: updates the state
// cache, records history, restores preferences on connect and fans
// events out to subscribers.
func (b *Broker) Run(ctx context.Context) {
	if b.publisher != nil {
		go b.publishLoop(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.dev.Events():
			if !ok {
				return
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Broker) handleEvent(ctx context.Context, ev hid.Event) {
	b.state.Apply(ev)
	b.recordEvent(ctx, ev)

	switch ev.Kind {
	case hid.EventConnected:
		// Only a persistent session gets preference restore; transient
		// opens are too short-lived to justify the extra transactions.
		if b.arbiter.Locked() {
			b.restorePreferences(ctx)
		}
	}

	if frame, ok := eventFrame(ev); ok {
		b.broadcast(frame)
	}
	if b.publisher != nil {
		switch ev.Kind {
		case hid.EventDeviceAvailable, hid.EventDeviceUnavailable,
			hid.EventConnected, hid.EventDisconnected, hid.EventStateChanged:
			b.queueStatus()
		}
	}
}

// queueStatus hands the current snapshot to the publish loop without
// blocking. handleEvent is the only producer, so drain-then-retry
// cannot race another send.
func (b *Broker) queueStatus() {
	snap := b.state.Snapshot()
	for {
		select {
		case b.statusCh <- snap:
			return
		default:
			select {
			case <-b.statusCh:
			default:
			}
		}
	}
}

// publishLoop mirrors status snapshots to the external bus off the
// event-handling goroutine, so a slow publish never backs up into the
// device event channel.
func (b *Broker) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-b.statusCh:
			b.publisher.PublishStatus(snap)
		}
	}
}

func (b *Broker) recordEvent(ctx context.Context, ev hid.Event) {
	if b.store == nil {
		return
	}
	detail := ""
	switch ev.Kind {
	case hid.EventConnected:
		detail = fmt.Sprintf("%s fw %s", ev.Name, ev.Firmware)
	case hid.EventStateChanged:
		detail = fmt.Sprintf("mode=%s yolo=%t", ev.State.Mode, ev.State.Yolo)
	case hid.EventKey, hid.EventTypeString:
		// Input traffic is not history.
		return
	}
	if err := b.store.RecordEvent(ctx, ev.Kind.String(), detail); err != nil {
		b.logger.Warn("record event", "kind", ev.Kind.String(), "error", err)
	}
}

// restorePreferences pushes persisted brightness and mode to a freshly
// connected deck.
func (b *Broker) restorePreferences(ctx context.Context) {
	if b.store == nil {
		return
	}
	prefs, err := b.store.Preferences(ctx)
	if err != nil {
		b.logger.Warn("load preferences", "error", err)
		return
	}
	if prefs.Brightness != nil {
		if err := b.dev.SetBrightness(*prefs.Brightness, false); err != nil {
			b.logger.Warn("restore brightness", "error", err)
		}
	}
	if prefs.Mode != nil {
		if err := b.dev.SetMode(*prefs.Mode); err != nil {
			b.logger.Warn("restore mode", "error", err)
		} else {
			b.state.SetMode(*prefs.Mode)
		}
	}
}

// eventFrame maps a device event to its wire frame for persistent
// clients. Availability transitions update state only.
func eventFrame(ev hid.Event) (protocol.Frame, bool) {
	switch ev.Kind {
	case hid.EventConnected:
		payload, _ := json.Marshal(protocol.DeviceInfo{Name: ev.Name, Firmware: ev.Firmware})
		return protocol.Frame{Tag: protocol.TagDeviceConnected, Payload: payload}, true
	case hid.EventDisconnected:
		return protocol.Frame{Tag: protocol.TagDeviceDisconnected}, true
	case hid.EventStateChanged:
		return protocol.Frame{Tag: protocol.TagStateChanged, Payload: []byte{ev.State.Byte()}}, true
	case hid.EventKey:
		return protocol.Frame{
			Tag:     protocol.TagKeyEvent,
			Payload: []byte{byte(ev.Keycode >> 8), byte(ev.Keycode)},
		}, true
	case hid.EventTypeString:
		flags := byte(0)
		if ev.SendEnter {
			flags = 0x01
		}
		return protocol.Frame{
			Tag:     protocol.TagTypeString,
			Payload: append([]byte{flags}, ev.Text...),
		}, true
	default:
		return protocol.Frame{}, false
	}
}

// Subscribe registers an event frame channel. Events are dropped per
// subscriber when its channel is full.
func (b *Broker) Subscribe() chan protocol.Frame {
	ch := make(chan protocol.Frame, 64)
	b.subMu.Lock()
	if b.subs == nil {
		b.subs = make(map[chan protocol.Frame]struct{})
	}
	b.subs[ch] = struct{}{}
	b.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan protocol.Frame) {
	b.subMu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.subMu.Unlock()
}

func (b *Broker) broadcast(f protocol.Frame) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- f:
		default:
			b.logger.Warn("subscriber channel full, dropping event", "tag", f.Tag.String())
		}
	}
}

// AnnounceShutdown tells persistent clients the daemon is going away.
func (b *Broker) AnnounceShutdown() {
	b.broadcast(protocol.Frame{
		Tag:     protocol.TagAppControl,
		Payload: []byte(`{"action":"shutdown"}`),
	})
}

// AcquireSession grants the exclusive lock to a persistent connection
// and opens the device if it is present. The lock is granted even when
// the deck is absent; the session then waits for a connect event.
func (b *Broker) AcquireSession(holder string) error {
	if err := b.arbiter.Acquire(holder); err != nil {
		return err
	}
	b.state.SetLocked(true)
	b.logger.Info("exclusive lock acquired", "holder", holder)

	if b.dev.Available() {
		if err := b.dev.Open(); err != nil {
			b.logger.Warn("device open on session start", "error", err)
		}
	}
	return nil
}

// ReleaseSession drops the lock and closes the device. Unconditional:
// safe on abnormal client termination and on a holder that never
// finished connecting.
func (b *Broker) ReleaseSession(holder string) {
	if b.arbiter.Holder() != holder {
		return
	}
	b.dev.Close()
	b.arbiter.Release(holder)
	b.state.SetLocked(false)
	b.logger.Info("exclusive lock released", "holder", holder)
}

// NewSessionMux creates the command multiplexer for one persistent
// connection, executing commands against the broker.
func (b *Broker) NewSessionMux() *Mux {
	return NewMux(b.Execute, b.cfg.CommandTimeout)
}

// Transient runs op inside a transient open-operate-close section.
// Fails with ErrLocked against a persistent holder and with
// ErrDeviceUnavailable when the deck is absent, before any hardware
// I/O. The interface is always closed afterwards, even if the caller
// has gone away.
func (b *Broker) Transient(op func(DeviceOps) error) error {
	if !b.dev.Available() {
		return ErrDeviceUnavailable
	}
	if err := b.arbiter.beginTransient(); err != nil {
		return err
	}
	defer b.arbiter.endTransient()

	if err := b.dev.Open(); err != nil {
		if errors.Is(err, hid.ErrNotFound) {
			return ErrDeviceUnavailable
		}
		return err
	}
	defer b.dev.Close()
	return op(b.dev)
}

package broker

import (
	"sync"

	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/protocol"
)

// StateCache is the daemon's single shared view of the deck. Snapshot
// never touches hardware; Apply is the only mutation path for device
// fields and is atomic with respect to concurrent snapshots.
type StateCache struct {
	mu sync.RWMutex
	s  protocol.Status
}

// NewStateCache returns an empty cache: device absent, unlocked,
// default mode.
func NewStateCache() *StateCache {
	return &StateCache{}
}

// Snapshot returns the current state by value.
func (c *StateCache) Snapshot() protocol.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// Apply folds one device event into the cache.
//
// Invariant maintained here: connected implies available. An open
// interface proves presence even if a poll has not caught up yet.
func (c *StateCache) Apply(ev hid.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case hid.EventDeviceAvailable:
		c.s.DeviceAvailable = true
		if ev.Name != "" {
			c.s.DeviceName = ev.Name
		}
	case hid.EventDeviceUnavailable:
		c.s.DeviceAvailable = false
		c.s.DeviceConnected = false
	case hid.EventConnected:
		c.s.DeviceAvailable = true
		c.s.DeviceConnected = true
		c.s.DeviceName = ev.Name
		c.s.FirmwareVersion = ev.Firmware
	case hid.EventDisconnected:
		c.s.DeviceConnected = false
		c.s.DeviceName = ""
		c.s.FirmwareVersion = ""
	case hid.EventStateChanged:
		c.s.DeviceMode = ev.State.Mode
		c.s.DeviceYolo = ev.State.Yolo
	}
}

// SetLocked mirrors the arbiter's holder presence. Called synchronously
// with acquire and release, never independently.
func (c *StateCache) SetLocked(locked bool) {
	c.mu.Lock()
	c.s.Locked = locked
	c.mu.Unlock()
}

// SetMode records a mode pushed by the host, so the snapshot reflects
// it before the deck confirms with a state report.
func (c *StateCache) SetMode(mode protocol.DeviceMode) {
	c.mu.Lock()
	c.s.DeviceMode = mode
	c.mu.Unlock()
}

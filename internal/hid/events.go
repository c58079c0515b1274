package hid

import "github.com/nerrad567/deckd/internal/protocol"

// EventKind discriminates device events emitted by the Manager.
type EventKind int

// Device event kinds.
const (
	// EventDeviceAvailable: the deck is physically present (enumerated,
	// interface not opened).
	EventDeviceAvailable EventKind = iota

	// EventDeviceUnavailable: the deck was physically removed.
	EventDeviceUnavailable

	// EventConnected: the HID interface was opened and is communicating.
	EventConnected

	// EventDisconnected: the HID interface was closed or lost.
	EventDisconnected

	// EventStateChanged: the deck reported a mode/yolo change.
	EventStateChanged

	// EventKey: a single key event from the deck.
	EventKey

	// EventTypeString: the deck asked the host to type a string.
	EventTypeString
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventDeviceAvailable:
		return "device_available"
	case EventDeviceUnavailable:
		return "device_unavailable"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStateChanged:
		return "state_changed"
	case EventKey:
		return "key"
	case EventTypeString:
		return "type_string"
	default:
		return "unknown"
	}
}

// Event is one device event. Fields beyond Kind are populated per kind.
type Event struct {
	Kind EventKind

	// Name and Firmware are set for EventDeviceAvailable and EventConnected.
	Name     string
	Firmware string

	// State is set for EventStateChanged.
	State protocol.DeviceState

	// Keycode is set for EventKey.
	Keycode uint16

	// Text and SendEnter are set for EventTypeString.
	Text      string
	SendEnter bool
}

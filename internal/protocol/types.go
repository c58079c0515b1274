package protocol

import (
	"encoding/json"
	"fmt"
)

// DeviceMode is the deck's operating mode, shown by its LED indicator.
//
// Cycle order on the device: Default -> Accept -> Plan -> Default.
type DeviceMode uint8

// Device modes.
const (
	ModeDefault DeviceMode = 0
	ModeAccept  DeviceMode = 1
	ModePlan    DeviceMode = 2
)

// DeviceModeFromByte parses a mode byte; unknown values map to Default.
func DeviceModeFromByte(b byte) DeviceMode {
	switch b {
	case 1:
		return ModeAccept
	case 2:
		return ModePlan
	default:
		return ModeDefault
	}
}

// String returns the mode's JSON/API name.
func (m DeviceMode) String() string {
	switch m {
	case ModeAccept:
		return "accept"
	case ModePlan:
		return "plan"
	default:
		return "default"
	}
}

// DeviceModeFromString parses a mode name as used by the API surfaces.
func DeviceModeFromString(s string) (DeviceMode, error) {
	switch s {
	case "default":
		return ModeDefault, nil
	case "accept":
		return ModeAccept, nil
	case "plan":
		return ModePlan, nil
	default:
		return ModeDefault, fmt.Errorf("unknown device mode %q", s)
	}
}

// MarshalJSON encodes the mode as its string name.
func (m DeviceMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts the string names used by the API surfaces.
func (m *DeviceMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := DeviceModeFromString(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// State byte layout reported by the firmware:
// bits 1:0 = mode, bit 2 = yolo, bits 7:3 reserved (must be zero).
const (
	stateModeMask     = 0x03
	stateYoloBit      = 0x04
	stateReservedMask = 0xF8
)

// DeviceState is the mode/yolo pair carried in a state byte.
type DeviceState struct {
	Mode DeviceMode `json:"mode"`
	Yolo bool       `json:"yolo"`
}

// DeviceStateFromByte decodes a state byte. The second return value is the
// reserved bits 7:3; non-zero reserved bits are tolerated but callers
// should log them.
func DeviceStateFromByte(b byte) (DeviceState, byte) {
	return DeviceState{
		Mode: DeviceModeFromByte(b & stateModeMask),
		Yolo: b&stateYoloBit != 0,
	}, b & stateReservedMask
}

// Byte encodes the state to a single state byte.
func (s DeviceState) Byte() byte {
	b := byte(s.Mode)
	if s.Yolo {
		b |= stateYoloBit
	}
	return b
}

// SoftKeyType describes how the deck interprets a soft key slot.
type SoftKeyType uint8

// Soft key types.
const (
	SoftKeyDefault  SoftKeyType = 0
	SoftKeyKeycode  SoftKeyType = 1
	SoftKeyString   SoftKeyType = 2
	SoftKeySequence SoftKeyType = 3
)

// SoftKeyTypeFromByte parses a soft key type byte.
func SoftKeyTypeFromByte(b byte) (SoftKeyType, error) {
	if b > byte(SoftKeySequence) {
		return SoftKeyDefault, fmt.Errorf("%w: 0x%02X", ErrUnknownSoftKeyType, b)
	}
	return SoftKeyType(b), nil
}

// SoftKeyConfig is the assignment of one of the deck's soft keys.
type SoftKeyConfig struct {
	Index   uint8       `json:"index"`
	KeyType SoftKeyType `json:"key_type"`
	Data    []byte      `json:"data"`
}

// DisplayUpdate is the JSON payload of an UpdateDisplay command, matching
// the firmware's display format.
type DisplayUpdate struct {
	// Session is the session name shown in the header.
	Session string `json:"session"`
	// Task is the current task line; empty when idle.
	Task string `json:"task,omitempty"`
	// Task2 is a second task line, pre-split by the client; empty when unused.
	Task2 string `json:"task2,omitempty"`
	// Tabs holds one state byte per tab.
	Tabs []uint8 `json:"tabs"`
	// Active is the index into Tabs of the focused tab.
	Active int `json:"active"`
}

// Tab state values used in DisplayUpdate.Tabs.
const (
	TabStateInactive uint8 = 0
	TabStateStarted  uint8 = 1
	TabStateWorking  uint8 = 2
)

// AlertRequest is the JSON payload of an Alert command.
type AlertRequest struct {
	Tab     int    `json:"tab"`
	Session string `json:"session"`
	Text    string `json:"text"`
	Details string `json:"details,omitempty"`
}

// ClearAlertRequest is the JSON body for clearing an alert overlay.
type ClearAlertRequest struct {
	Tab int `json:"tab"`
}

// BrightnessRequest is the JSON body for setting display brightness.
type BrightnessRequest struct {
	Level uint8 `json:"level"`
	Save  bool  `json:"save,omitempty"`
}

// SetModeRequest is the JSON body for setting the device mode.
type SetModeRequest struct {
	Mode DeviceMode `json:"mode"`
}

// DeviceInfo is the payload of a DeviceConnected event.
type DeviceInfo struct {
	Name     string `json:"name"`
	Firmware string `json:"firmware"`
}

// Status is the response body of the read-only status query. It is a
// point-in-time snapshot and never requires device I/O to produce.
type Status struct {
	// DeviceAvailable is true when the deck is physically present
	// (enumerated), whether or not the interface is open.
	DeviceAvailable bool `json:"device_available"`
	// DeviceConnected is true when the HID interface is open and the
	// daemon is communicating with the deck.
	DeviceConnected bool       `json:"device_connected"`
	DeviceName      string     `json:"device_name,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	DeviceMode      DeviceMode `json:"device_mode"`
	DeviceYolo      bool       `json:"device_yolo"`
	// Locked is true while a persistent client holds the exclusive lock.
	Locked bool `json:"locked"`
}

package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies the kind of message carried by a frame.
//
// The tag space is partitioned: 0x01-0x0A are commands (app to daemon),
// 0x80-0x84 and 0x89 are events (daemon to app, unsolicited, seq 0),
// 0x85-0x88 are responses (daemon to app, seq echoed from the command).
type Tag uint8

// Command tags (app → daemon).
const (
	TagUpdateDisplay Tag = 0x01
	TagPing          Tag = 0x02
	TagSetBrightness Tag = 0x03
	TagSetSoftKey    Tag = 0x04
	TagGetSoftKey    Tag = 0x05
	TagResetSoftKeys Tag = 0x06
	TagSetMode       Tag = 0x07
	TagAlert         Tag = 0x08
	TagGetVersion    Tag = 0x09
	TagClearAlert    Tag = 0x0A
)

// Event tags (daemon → app, unsolicited, sequence always zero).
const (
	TagDeviceConnected    Tag = 0x80
	TagDeviceDisconnected Tag = 0x81
	TagStateChanged       Tag = 0x82
	TagKeyEvent           Tag = 0x83
	TagTypeString         Tag = 0x84
	TagAppControl         Tag = 0x89
)

// Response tags (daemon → app, sequence echoed from the originating command).
const (
	TagSoftKeyResponse Tag = 0x85
	TagVersionResponse Tag = 0x86
	TagCommandAck      Tag = 0x87
	TagCommandError    Tag = 0x88
)

// HeaderSize is the fixed frame header length: tag plus 16-bit sequence.
const HeaderSize = 3

// IsCommand reports whether the tag is in the command partition.
func (t Tag) IsCommand() bool {
	return t >= TagUpdateDisplay && t <= TagClearAlert
}

// IsEvent reports whether the tag is in the event partition.
func (t Tag) IsEvent() bool {
	return (t >= TagDeviceConnected && t <= TagTypeString) || t == TagAppControl
}

// IsResponse reports whether the tag is in the response partition.
func (t Tag) IsResponse() bool {
	return t >= TagSoftKeyResponse && t <= TagCommandError
}

// Known reports whether the tag belongs to any partition.
func (t Tag) Known() bool {
	return t.IsCommand() || t.IsEvent() || t.IsResponse()
}

// String returns the tag name for logging.
func (t Tag) String() string {
	switch t {
	case TagUpdateDisplay:
		return "UpdateDisplay"
	case TagPing:
		return "Ping"
	case TagSetBrightness:
		return "SetBrightness"
	case TagSetSoftKey:
		return "SetSoftKey"
	case TagGetSoftKey:
		return "GetSoftKey"
	case TagResetSoftKeys:
		return "ResetSoftKeys"
	case TagSetMode:
		return "SetMode"
	case TagAlert:
		return "Alert"
	case TagGetVersion:
		return "GetVersion"
	case TagClearAlert:
		return "ClearAlert"
	case TagDeviceConnected:
		return "DeviceConnected"
	case TagDeviceDisconnected:
		return "DeviceDisconnected"
	case TagStateChanged:
		return "StateChanged"
	case TagKeyEvent:
		return "KeyEvent"
	case TagTypeString:
		return "TypeString"
	case TagAppControl:
		return "AppControl"
	case TagSoftKeyResponse:
		return "SoftKeyResponse"
	case TagVersionResponse:
		return "VersionResponse"
	case TagCommandAck:
		return "CommandAck"
	case TagCommandError:
		return "CommandError"
	default:
		return fmt.Sprintf("Tag(0x%02X)", uint8(t))
	}
}

// Frame is one tagged, sequenced message on the persistent channel.
//
// Sequence 0 is reserved for events. Commands must use 1..65535 and
// responses echo the sequence of the command they resolve.
type Frame struct {
	Tag     Tag
	Seq     uint16
	Payload []byte
}

// Encode serialises a frame to wire format: [tag][seq_lo][seq_hi][payload].
//
// It enforces the sequence discipline: a command frame with sequence 0 or
// an event frame with a non-zero sequence is rejected rather than put on
// the wire.
//
// Returns:
//   - []byte: Encoded frame
//   - error: ErrInvalidFrame on an unknown tag or sequence violation
func Encode(f Frame) ([]byte, error) {
	if !f.Tag.Known() {
		return nil, fmt.Errorf("%w: unknown tag 0x%02X", ErrInvalidFrame, uint8(f.Tag))
	}
	if f.Tag.IsCommand() && f.Seq == 0 {
		return nil, fmt.Errorf("%w: command %s with sequence 0", ErrInvalidFrame, f.Tag)
	}
	if f.Tag.IsEvent() && f.Seq != 0 {
		return nil, fmt.Errorf("%w: event %s with sequence %d", ErrInvalidFrame, f.Tag, f.Seq)
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	buf[0] = byte(f.Tag)
	binary.LittleEndian.PutUint16(buf[1:HeaderSize], f.Seq)
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// Decode parses a wire frame and validates its sequence discipline.
//
// Sequence violations are frame-local: the caller logs and drops the
// frame, the connection stays up.
//
// Returns:
//   - Frame: Decoded frame (payload aliases the input slice)
//   - error: ErrInvalidFrame on truncated header, unknown tag, or
//     sequence violation
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidFrame, len(data), HeaderSize)
	}

	tag := Tag(data[0])
	if !tag.Known() {
		return Frame{}, fmt.Errorf("%w: unknown tag 0x%02X", ErrInvalidFrame, data[0])
	}

	seq := binary.LittleEndian.Uint16(data[1:HeaderSize])
	if tag.IsCommand() && seq == 0 {
		return Frame{}, fmt.Errorf("%w: command %s with sequence 0", ErrInvalidFrame, tag)
	}
	if tag.IsEvent() && seq != 0 {
		return Frame{}, fmt.Errorf("%w: event %s with sequence %d", ErrInvalidFrame, tag, seq)
	}

	return Frame{Tag: tag, Seq: seq, Payload: data[HeaderSize:]}, nil
}

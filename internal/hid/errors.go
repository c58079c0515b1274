package hid

import "errors"

// Domain errors for the hid package.
var (
	// ErrNotFound is returned when no deck is enumerated on the system.
	ErrNotFound = errors.New("hid: device not found")

	// ErrNotOpen is returned when an operation requires an open interface
	// but the device is not open.
	ErrNotOpen = errors.New("hid: device not open")

	// ErrIO is returned when report I/O against the open interface fails
	// mid-operation. The operation is aborted and the interface closed.
	ErrIO = errors.New("hid: i/o error")

	// ErrPayloadTooLarge is returned when an outbound message exceeds
	// MaxMessageSize. The message is rejected before any report is
	// written, never partially delivered.
	ErrPayloadTooLarge = errors.New("hid: payload exceeds message size limit")

	// ErrReassemblyOverflow is returned when inbound chunks exceed the
	// MaxMessageSize reassembly cap. The partial buffer is discarded.
	ErrReassemblyOverflow = errors.New("hid: reassembly buffer overflow")

	// ErrFraming is returned when the chunk continuation sequence is
	// broken: a continuation report without a start, or a new message
	// starting before the previous one completed.
	ErrFraming = errors.New("hid: chunk framing error")

	// ErrResponseTimeout is returned when the device does not complete a
	// response within the transaction deadline.
	ErrResponseTimeout = errors.New("hid: timeout waiting for device response")

	// ErrFirmware is returned when the device reports a protocol error
	// for a command (non-zero status byte).
	ErrFirmware = errors.New("hid: firmware error")
)

// Firmware status codes carried in the first byte of an error response.
const (
	firmwareStatusOK          = 0x00
	firmwareErrOverflow       = 0x01
	firmwareErrBadSequence    = 0x02
	firmwareErrUnknownCommand = 0x03
)

// firmwareErrorMessage maps a non-zero firmware status byte to a
// human-readable message for CommandError payloads.
func firmwareErrorMessage(status byte) string {
	switch status {
	case firmwareErrOverflow:
		return "payload overflow"
	case firmwareErrBadSequence:
		return "bad packet sequence"
	case firmwareErrUnknownCommand:
		return "unknown command"
	default:
		return "unspecified device error"
	}
}

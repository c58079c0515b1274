package hid

import "fmt"

// Report and chunk framing constants.
//
// Every report is exactly ReportSize bytes with a 2-byte header:
//
//	Byte 0: flags — START (0x80) | END (0x40) | chunk payload length (low 6 bits)
//	Byte 1: command ID
//	Bytes 2..31: chunk payload, zero padded
//
// The length field makes reassembly exact: padding bytes are never
// mistaken for payload, so arbitrary binary payloads round-trip.
const (
	// ReportSize is the fixed size of every low-level report.
	ReportSize = 32

	// headerSize is the flags byte plus the command byte.
	headerSize = 2

	// MaxChunkPayload is the payload capacity of a single report.
	MaxChunkPayload = ReportSize - headerSize

	// MaxMessageSize is the reassembly cap for one logical message.
	MaxMessageSize = 512

	// FlagStart marks the first report of a message.
	FlagStart = 0x80

	// FlagEnd marks the last report of a message.
	FlagEnd = 0x40

	// lenMask extracts the chunk payload length from the flags byte.
	lenMask = 0x3F
)

// Device command IDs on the chunk transport. Command IDs 0x01-0x0A mirror
// the frame protocol's command tags; 0x10-0x12 are device-initiated.
const (
	CmdUpdateDisplay = 0x01
	CmdPing          = 0x02
	CmdSetBrightness = 0x03
	CmdSetSoftKey    = 0x04
	CmdGetSoftKey    = 0x05
	CmdResetSoftKeys = 0x06
	CmdSetMode       = 0x07
	CmdAlert         = 0x08
	CmdGetVersion    = 0x09
	CmdClearAlert    = 0x0A

	CmdStateReport = 0x10
	CmdTypeString  = 0x11
	CmdKeyEvent    = 0x12

	CmdError = 0xFF
)

// Report is one fixed-size low-level transport unit.
type Report [ReportSize]byte

// Flags returns the report's flags byte.
func (r Report) Flags() byte { return r[0] }

// IsStart reports whether this is the first report of a message.
func (r Report) IsStart() bool { return r[0]&FlagStart != 0 }

// IsEnd reports whether this is the last report of a message.
func (r Report) IsEnd() bool { return r[0]&FlagEnd != 0 }

// Cmd returns the command ID byte.
func (r Report) Cmd() byte { return r[1] }

// chunkLen returns the declared payload length of this report, clamped to
// the physical capacity.
func (r Report) chunkLen() int {
	n := int(r[0] & lenMask)
	if n > MaxChunkPayload {
		n = MaxChunkPayload
	}
	return n
}

// Payload returns the report's declared payload bytes.
func (r Report) Payload() []byte { return r[headerSize : headerSize+r.chunkLen()] }

// deviceInitiated reports whether the command ID belongs to traffic the
// deck originates on its own.
func deviceInitiated(cmd byte) bool {
	return cmd == CmdStateReport || cmd == CmdTypeString || cmd == CmdKeyEvent || cmd == CmdPing
}

// Chunk splits a message payload into transmit-ready reports.
//
// An empty payload yields a single START|END report. Payloads above
// MaxMessageSize are rejected outright; nothing is ever partially
// transmitted.
func Chunk(cmd byte, payload []byte) ([]Report, error) {
	if len(payload) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxMessageSize)
	}

	if len(payload) == 0 {
		var r Report
		r[0] = FlagStart | FlagEnd
		r[1] = cmd
		return []Report{r}, nil
	}

	count := (len(payload) + MaxChunkPayload - 1) / MaxChunkPayload
	reports := make([]Report, 0, count)

	for i := 0; i < count; i++ {
		chunk := payload[i*MaxChunkPayload:]
		if len(chunk) > MaxChunkPayload {
			chunk = chunk[:MaxChunkPayload]
		}

		var r Report
		r[0] = byte(len(chunk))
		if i == 0 {
			r[0] |= FlagStart
		}
		if i == count-1 {
			r[0] |= FlagEnd
		}
		r[1] = cmd
		copy(r[headerSize:], chunk)
		reports = append(reports, r)
	}

	return reports, nil
}

// Reassembler accumulates the chunks of one logical message.
//
// It is not safe for concurrent use; the Manager owns one per traffic
// direction and feeds it from a single goroutine at a time.
type Reassembler struct {
	buf    []byte
	cmd    byte
	active bool
}

// Message is a fully reassembled inbound message.
type Message struct {
	Cmd     byte
	Payload []byte
}

// Feed consumes one report.
//
// It returns a non-nil Message when the report completes a message.
// Framing violations return ErrFraming: a continuation without a start is
// dropped; a new START arriving mid-message discards the stale buffer and
// begins the new message (the error still surfaces so the caller can log
// the lost message). Exceeding the cap returns ErrReassemblyOverflow and
// discards the buffer; no partial message is ever surfaced.
func (a *Reassembler) Feed(r Report) (*Message, error) {
	var framingErr error

	if r.IsStart() {
		if a.active {
			framingErr = fmt.Errorf("%w: new message for cmd 0x%02X before cmd 0x%02X completed",
				ErrFraming, r.Cmd(), a.cmd)
		}
		a.buf = a.buf[:0]
		a.cmd = r.Cmd()
		a.active = true
	} else if !a.active {
		return nil, fmt.Errorf("%w: continuation for cmd 0x%02X without start", ErrFraming, r.Cmd())
	}

	if len(a.buf)+r.chunkLen() > MaxMessageSize {
		a.Reset()
		return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrReassemblyOverflow, MaxMessageSize)
	}
	a.buf = append(a.buf, r.Payload()...)

	if !r.IsEnd() {
		return nil, framingErr
	}

	msg := &Message{Cmd: a.cmd, Payload: append([]byte(nil), a.buf...)}
	a.Reset()
	return msg, framingErr
}

// Reset discards any partially assembled message.
func (a *Reassembler) Reset() {
	a.buf = a.buf[:0]
	a.active = false
	a.cmd = 0
}

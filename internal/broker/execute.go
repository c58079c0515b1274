package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/protocol"
)

// Execute runs one command frame against the device and returns its
// response frame: CommandAck, a typed response, or CommandError. It is
// called by the session mux worker, one command at a time.
func (b *Broker) Execute(f protocol.Frame) protocol.Frame {
	resp, err := b.execute(f)
	if err != nil {
		b.logger.Warn("command failed", "tag", f.Tag.String(), "seq", f.Seq, "error", err)
		return errorFrame(f.Seq, commandErrorMessage(err))
	}
	return resp
}

func (b *Broker) execute(f protocol.Frame) (protocol.Frame, error) {
	switch f.Tag {
	case protocol.TagPing:
		return ack(f, b.dev.Ping())

	case protocol.TagUpdateDisplay:
		var u protocol.DisplayUpdate
		if err := json.Unmarshal(f.Payload, &u); err != nil {
			return protocol.Frame{}, fmt.Errorf("decode display update: %w", err)
		}
		if err := u.Normalize(); err != nil {
			return protocol.Frame{}, err
		}
		return ack(f, b.dev.SendDisplayUpdate(u))

	case protocol.TagAlert:
		var a protocol.AlertRequest
		if err := json.Unmarshal(f.Payload, &a); err != nil {
			return protocol.Frame{}, fmt.Errorf("decode alert: %w", err)
		}
		if err := a.Normalize(); err != nil {
			return protocol.Frame{}, err
		}
		return ack(f, b.dev.SendAlert(a))

	case protocol.TagClearAlert:
		if len(f.Payload) < 1 {
			return protocol.Frame{}, errors.New("clear alert: missing tab byte")
		}
		return ack(f, b.dev.ClearAlert(f.Payload[0]))

	case protocol.TagSetBrightness:
		if len(f.Payload) < 1 {
			return protocol.Frame{}, errors.New("set brightness: missing level byte")
		}
		level := f.Payload[0]
		save := len(f.Payload) > 1 && f.Payload[1] != 0
		if err := b.dev.SetBrightness(level, save); err != nil {
			return protocol.Frame{}, err
		}
		if save {
			b.saveBrightness(level)
		}
		return ackFrame(f.Seq), nil

	case protocol.TagSetMode:
		if len(f.Payload) < 1 {
			return protocol.Frame{}, errors.New("set mode: missing mode byte")
		}
		mode := protocol.DeviceModeFromByte(f.Payload[0])
		if err := b.dev.SetMode(mode); err != nil {
			return protocol.Frame{}, err
		}
		b.state.SetMode(mode)
		b.saveMode(mode)
		return ackFrame(f.Seq), nil

	case protocol.TagSetSoftKey:
		cfg, save, err := decodeSetSoftKey(f.Payload)
		if err != nil {
			return protocol.Frame{}, err
		}
		return ack(f, b.dev.SetSoftKey(cfg, save))

	case protocol.TagGetSoftKey:
		if len(f.Payload) < 1 {
			return protocol.Frame{}, errors.New("get soft key: missing index byte")
		}
		cfg, err := b.dev.GetSoftKey(f.Payload[0])
		if err != nil {
			return protocol.Frame{}, err
		}
		payload := append([]byte{cfg.Index, byte(cfg.KeyType)}, cfg.Data...)
		return protocol.Frame{Tag: protocol.TagSoftKeyResponse, Seq: f.Seq, Payload: payload}, nil

	case protocol.TagResetSoftKeys:
		keys, err := b.dev.ResetSoftKeys()
		if err != nil {
			return protocol.Frame{}, err
		}
		// [type, keycode_hi, keycode_lo] per key.
		payload := make([]byte, 0, len(keys)*3)
		for _, k := range keys {
			hi, lo := byte(0), byte(0)
			if len(k.Data) >= 2 {
				hi, lo = k.Data[0], k.Data[1]
			}
			payload = append(payload, byte(k.KeyType), hi, lo)
		}
		return protocol.Frame{Tag: protocol.TagSoftKeyResponse, Seq: f.Seq, Payload: payload}, nil

	case protocol.TagGetVersion:
		version, err := b.dev.QueryVersion()
		if err != nil {
			return protocol.Frame{}, err
		}
		return protocol.Frame{Tag: protocol.TagVersionResponse, Seq: f.Seq, Payload: []byte(version)}, nil

	default:
		return protocol.Frame{}, fmt.Errorf("unknown command tag %s", f.Tag)
	}
}

// ack collapses the common "device op then empty ack" pattern.
func ack(f protocol.Frame, err error) (protocol.Frame, error) {
	if err != nil {
		return protocol.Frame{}, err
	}
	return ackFrame(f.Seq), nil
}

// decodeSetSoftKey parses [index][type][save][data...].
func decodeSetSoftKey(payload []byte) (protocol.SoftKeyConfig, bool, error) {
	if len(payload) < 3 {
		return protocol.SoftKeyConfig{}, false, fmt.Errorf("set soft key: %d payload bytes, need 3", len(payload))
	}
	kt, err := protocol.SoftKeyTypeFromByte(payload[1])
	if err != nil {
		return protocol.SoftKeyConfig{}, false, err
	}
	cfg := protocol.SoftKeyConfig{Index: payload[0], KeyType: kt}
	if len(payload) > 3 {
		cfg.Data = append([]byte(nil), payload[3:]...)
	}
	if err := cfg.Validate(); err != nil {
		return protocol.SoftKeyConfig{}, false, err
	}
	return cfg, payload[2] != 0, nil
}

func (b *Broker) saveBrightness(level uint8) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveBrightness(context.Background(), level); err != nil {
		b.logger.Warn("persist brightness", "error", err)
	}
}

func (b *Broker) saveMode(mode protocol.DeviceMode) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveMode(context.Background(), mode.String()); err != nil {
		b.logger.Warn("persist mode", "error", err)
	}
}

// commandErrorMessage maps an execution error to the message carried in
// a CommandError payload.
func commandErrorMessage(err error) string {
	switch {
	case errors.Is(err, hid.ErrNotOpen), errors.Is(err, hid.ErrNotFound):
		return "device unavailable"
	case errors.Is(err, hid.ErrResponseTimeout):
		return "command timed out"
	case errors.Is(err, hid.ErrIO):
		return "device i/o error"
	case errors.Is(err, hid.ErrFirmware):
		return err.Error()
	default:
		return err.Error()
	}
}

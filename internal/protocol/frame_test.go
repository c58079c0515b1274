package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		payload []byte
	}{
		{name: "command with payload", frame: Frame{Tag: TagUpdateDisplay, Seq: 42, Payload: []byte(`{"session":"x"}`)}},
		{name: "command max sequence", frame: Frame{Tag: TagPing, Seq: 65535}},
		{name: "event empty payload", frame: Frame{Tag: TagDeviceDisconnected, Seq: 0}},
		{name: "event with payload", frame: Frame{Tag: TagStateChanged, Seq: 0, Payload: []byte{0x05}}},
		{name: "response echoes sequence", frame: Frame{Tag: TagCommandAck, Seq: 7}},
		{name: "response seq zero allowed", frame: Frame{Tag: TagCommandError, Seq: 0, Payload: []byte("boom")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(wire)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Tag != tt.frame.Tag || got.Seq != tt.frame.Seq {
				t.Errorf("Decode() = %v/%d, want %v/%d", got.Tag, got.Seq, tt.frame.Tag, tt.frame.Seq)
			}
			if !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Errorf("Decode() payload = %x, want %x", got.Payload, tt.frame.Payload)
			}
		})
	}
}

func TestEncodeSequenceDiscipline(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{name: "command with sequence zero", frame: Frame{Tag: TagUpdateDisplay, Seq: 0}},
		{name: "event with nonzero sequence", frame: Frame{Tag: TagKeyEvent, Seq: 3}},
		{name: "unknown tag", frame: Frame{Tag: Tag(0x50), Seq: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.frame); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Encode() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "one byte", data: []byte{0x01}},
		{name: "two bytes", data: []byte{0x01, 0x05}},
		{name: "unknown tag", data: []byte{0x7F, 0x01, 0x00}},
		{name: "command sequence zero", data: []byte{0x01, 0x00, 0x00}},
		{name: "event nonzero sequence", data: []byte{0x82, 0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Decode(%x) error = %v, want ErrInvalidFrame", tt.data, err)
			}
		})
	}
}

func TestDecodeSequenceLittleEndian(t *testing.T) {
	// seq 0x0102 on the wire is [lo=0x02, hi=0x01]
	f, err := Decode([]byte{byte(TagPing), 0x02, 0x01})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Seq != 0x0102 {
		t.Errorf("Seq = 0x%04X, want 0x0102", f.Seq)
	}
}

func TestTagPartitions(t *testing.T) {
	for b := 0; b < 256; b++ {
		tag := Tag(b)
		command := b >= 0x01 && b <= 0x0A
		event := (b >= 0x80 && b <= 0x84) || b == 0x89
		response := b >= 0x85 && b <= 0x88

		if tag.IsCommand() != command {
			t.Errorf("Tag(0x%02X).IsCommand() = %v, want %v", b, tag.IsCommand(), command)
		}
		if tag.IsEvent() != event {
			t.Errorf("Tag(0x%02X).IsEvent() = %v, want %v", b, tag.IsEvent(), event)
		}
		if tag.IsResponse() != response {
			t.Errorf("Tag(0x%02X).IsResponse() = %v, want %v", b, tag.IsResponse(), response)
		}
		if tag.Known() != (command || event || response) {
			t.Errorf("Tag(0x%02X).Known() = %v", b, tag.Known())
		}
	}
}

package hid

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/deckd/internal/protocol"
)

// High-level device operations. Each wraps one command transaction and
// encodes the payload the firmware expects.

// Ping sends a keepalive ping.
func (m *Manager) Ping() error {
	_, err := m.Transact(CmdPing, nil)
	return err
}

// QueryVersion asks the firmware for its version string.
func (m *Manager) QueryVersion() (string, error) {
	resp, err := m.Transact(CmdGetVersion, nil)
	if err != nil {
		return "", err
	}
	return string(resp.Data), nil
}

// SendDisplayUpdate pushes a display update. Identical consecutive
// updates are skipped so a chatty client does not saturate the wire.
func (m *Manager) SendDisplayUpdate(u protocol.DisplayUpdate) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode display update: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if bytes.Equal(payload, m.lastDisplay) {
		m.logger.Debug("display update unchanged, skipping")
		return nil
	}
	if _, err := m.transactLocked(CmdUpdateDisplay, payload); err != nil {
		return err
	}
	m.lastDisplay = payload
	return nil
}

// SendAlert raises an alert on the deck.
func (m *Manager) SendAlert(a protocol.AlertRequest) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = m.Transact(CmdAlert, payload)
	return err
}

// ClearAlert dismisses the alert on one tab.
func (m *Manager) ClearAlert(tab uint8) error {
	_, err := m.Transact(CmdClearAlert, []byte{tab})
	return err
}

// SetBrightness sets the panel brightness, optionally persisting it to
// the deck's flash.
func (m *Manager) SetBrightness(level uint8, save bool) error {
	payload := []byte{level, 0}
	if save {
		payload[1] = 1
	}
	_, err := m.Transact(CmdSetBrightness, payload)
	return err
}

// SetMode switches the deck's mode.
func (m *Manager) SetMode(mode protocol.DeviceMode) error {
	_, err := m.Transact(CmdSetMode, []byte{byte(mode)})
	return err
}

// SetSoftKey programs one soft key, optionally persisting it.
func (m *Manager) SetSoftKey(cfg protocol.SoftKeyConfig, save bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload := make([]byte, 0, 3+len(cfg.Data))
	saveByte := byte(0)
	if save {
		saveByte = 1
	}
	payload = append(payload, cfg.Index, byte(cfg.KeyType), saveByte)
	payload = append(payload, cfg.Data...)
	_, err := m.Transact(CmdSetSoftKey, payload)
	return err
}

// GetSoftKey reads one soft key's current configuration.
func (m *Manager) GetSoftKey(index uint8) (protocol.SoftKeyConfig, error) {
	resp, err := m.Transact(CmdGetSoftKey, []byte{index})
	if err != nil {
		return protocol.SoftKeyConfig{}, err
	}
	if len(resp.Data) < 2 {
		return protocol.SoftKeyConfig{}, fmt.Errorf("soft key response: %w (%d bytes)", ErrFraming, len(resp.Data))
	}
	kt, err := protocol.SoftKeyTypeFromByte(resp.Data[1])
	if err != nil {
		return protocol.SoftKeyConfig{}, err
	}
	cfg := protocol.SoftKeyConfig{
		Index:   resp.Data[0],
		KeyType: kt,
	}
	if len(resp.Data) > 2 {
		cfg.Data = append([]byte(nil), resp.Data[2:]...)
	}
	return cfg, nil
}

// ResetSoftKeys restores the deck's three soft keys to their factory
// keycodes and returns the resulting configurations.
func (m *Manager) ResetSoftKeys() ([]protocol.SoftKeyConfig, error) {
	resp, err := m.Transact(CmdResetSoftKeys, nil)
	if err != nil {
		return nil, err
	}
	// Three [type, keycode_hi, keycode_lo] triplets.
	if len(resp.Data) != 9 {
		return nil, fmt.Errorf("reset response: %w (%d bytes)", ErrFraming, len(resp.Data))
	}
	keys := make([]protocol.SoftKeyConfig, 3)
	for i := range keys {
		off := i * 3
		kt, err := protocol.SoftKeyTypeFromByte(resp.Data[off])
		if err != nil {
			return nil, err
		}
		keys[i] = protocol.SoftKeyConfig{
			Index:   uint8(i),
			KeyType: kt,
			Data:    []byte{resp.Data[off+1], resp.Data[off+2]},
		}
	}
	return keys, nil
}

package broker

import "github.com/nerrad567/deckd/internal/protocol"

// One-shot operations for the REST surface. Each validates its input,
// then runs inside a transient access section.

// UpdateDisplay pushes a display update transiently.
func (b *Broker) UpdateDisplay(u protocol.DisplayUpdate) error {
	if err := u.Normalize(); err != nil {
		return err
	}
	return b.Transient(func(dev DeviceOps) error {
		return dev.SendDisplayUpdate(u)
	})
}

// Alert raises an alert transiently.
func (b *Broker) Alert(a protocol.AlertRequest) error {
	if err := a.Normalize(); err != nil {
		return err
	}
	return b.Transient(func(dev DeviceOps) error {
		return dev.SendAlert(a)
	})
}

// ClearAlertTab dismisses the alert on one tab transiently.
func (b *Broker) ClearAlertTab(tab uint8) error {
	return b.Transient(func(dev DeviceOps) error {
		return dev.ClearAlert(tab)
	})
}

// Brightness sets the panel brightness transiently, persisting the
// preference when save is set.
func (b *Broker) Brightness(level uint8, save bool) error {
	err := b.Transient(func(dev DeviceOps) error {
		return dev.SetBrightness(level, save)
	})
	if err == nil && save {
		b.saveBrightness(level)
	}
	return err
}

// Mode switches the deck's mode transiently and records it in the
// state cache and preference store.
func (b *Broker) Mode(mode protocol.DeviceMode) error {
	err := b.Transient(func(dev DeviceOps) error {
		return dev.SetMode(mode)
	})
	if err == nil {
		b.state.SetMode(mode)
		b.saveMode(mode)
	}
	return err
}

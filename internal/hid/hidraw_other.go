//go:build !linux

package hid

import "fmt"

// RawOpener is the hardware opener. Only the Linux hidraw backend is
// implemented; on other platforms the deck is never found.
type RawOpener struct {
	VendorID  uint16
	ProductID uint16
}

// Find reports that no device is present on unsupported platforms.
func (o RawOpener) Find() (Info, bool) {
	return Info{}, false
}

// Open fails on unsupported platforms.
func (o RawOpener) Open(Info) (Device, error) {
	return nil, fmt.Errorf("%w: hidraw unsupported on this platform", ErrNotFound)
}

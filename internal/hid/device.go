package hid

import "time"

// Info describes an enumerated deck interface, available without opening
// the device.
type Info struct {
	// Path is the platform device node (e.g. /dev/hidraw3).
	Path string
	// Name is the device's product string from the HID descriptor.
	Name string
}

// Device is an open HID interface capable of fixed-size report I/O.
//
// Implementations must tolerate concurrent Close during a blocked read;
// all other access is serialised by the Manager.
type Device interface {
	// WriteReport sends one output report to the device.
	WriteReport(Report) error

	// ReadReport reads one input report, waiting up to timeout. The
	// second return value is false when the timeout elapsed without
	// data; that is not an error.
	ReadReport(timeout time.Duration) (Report, bool, error)

	// Close releases the interface back to the system.
	Close() error
}

// Opener enumerates and opens the deck's raw HID interface. It exists as
// an interface so tests can substitute a scripted device for hardware.
type Opener interface {
	// Find checks whether the deck is physically present. It must not
	// open the device.
	Find() (Info, bool)

	// Open opens the enumerated interface for report I/O.
	Open(Info) (Device, error)
}

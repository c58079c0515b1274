package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrInvalidFrame is returned when a binary frame cannot be decoded:
	// truncated header, unknown tag, or a sequence number that violates
	// the tag's discipline.
	ErrInvalidFrame = errors.New("protocol: invalid frame")

	// ErrTooManyTabs is returned when a display update carries more tab
	// entries than the device can render.
	ErrTooManyTabs = errors.New("protocol: too many tab entries")

	// ErrBadTabIndex is returned when the active tab index does not point
	// into the tabs array.
	ErrBadTabIndex = errors.New("protocol: active index out of range")

	// ErrSoftKeyDataTooLong is returned when soft key data exceeds the
	// device's per-key storage.
	ErrSoftKeyDataTooLong = errors.New("protocol: soft key data too long")

	// ErrSoftKeySequenceTooLong is returned when a sequence-type soft key
	// carries more keycodes than the device supports.
	ErrSoftKeySequenceTooLong = errors.New("protocol: soft key sequence too long")

	// ErrUnknownSoftKeyType is returned when a soft key type byte is not
	// one of the defined types.
	ErrUnknownSoftKeyType = errors.New("protocol: unknown soft key type")
)

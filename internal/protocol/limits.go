package protocol

import (
	"fmt"
	"unicode/utf8"
)

// Boundary limits enforced before any payload is encoded for the device.
// These mirror the firmware's fixed buffers.
const (
	// MaxTextBytes is the firmware's text buffer size, including its NUL
	// terminator. Text fields are truncated to MaxTextBytes-1 content
	// bytes so the terminator always fits.
	MaxTextBytes = 128

	// MaxTabs is the maximum number of tab entries the deck can render.
	MaxTabs = 16

	// MaxSoftKeyData is the per-key storage for soft key data.
	MaxSoftKeyData = 128

	// MaxSequenceKeycodes is the maximum keycode count for a
	// sequence-type soft key (two bytes per keycode).
	MaxSequenceKeycodes = 63
)

// TruncateText truncates s so that it and a NUL terminator fit in max
// bytes, cutting at a UTF-8 rune boundary. Strings already within the
// limit are returned unchanged.
func TruncateText(s string, max int) string {
	limit := max - 1 // terminator accounting
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// Normalize truncates the update's text fields and validates its tab
// array. Oversized tabs are a validation error, not a truncation; a
// silently shortened tab list would desynchronise the client's and the
// deck's idea of tab indices.
func (d *DisplayUpdate) Normalize() error {
	d.Session = TruncateText(d.Session, MaxTextBytes)
	d.Task = TruncateText(d.Task, MaxTextBytes)
	d.Task2 = TruncateText(d.Task2, MaxTextBytes)

	if len(d.Tabs) > MaxTabs {
		return fmt.Errorf("%w: %d entries, max %d", ErrTooManyTabs, len(d.Tabs), MaxTabs)
	}
	if len(d.Tabs) > 0 && (d.Active < 0 || d.Active >= len(d.Tabs)) {
		return fmt.Errorf("%w: active %d with %d tabs", ErrBadTabIndex, d.Active, len(d.Tabs))
	}
	if len(d.Tabs) == 0 && d.Active != 0 {
		return fmt.Errorf("%w: active %d with no tabs", ErrBadTabIndex, d.Active)
	}
	return nil
}

// Normalize truncates the alert's text fields and validates the tab index.
func (a *AlertRequest) Normalize() error {
	a.Session = TruncateText(a.Session, MaxTextBytes)
	a.Text = TruncateText(a.Text, MaxTextBytes)
	a.Details = TruncateText(a.Details, MaxTextBytes)

	if a.Tab < 0 || a.Tab >= MaxTabs {
		return fmt.Errorf("%w: tab %d", ErrBadTabIndex, a.Tab)
	}
	return nil
}

// Validate checks a soft key assignment against the device limits.
func (c SoftKeyConfig) Validate() error {
	if c.KeyType > SoftKeySequence {
		return fmt.Errorf("%w: 0x%02X", ErrUnknownSoftKeyType, uint8(c.KeyType))
	}
	if len(c.Data) > MaxSoftKeyData {
		return fmt.Errorf("%w: %d bytes, max %d", ErrSoftKeyDataTooLong, len(c.Data), MaxSoftKeyData)
	}
	if c.KeyType == SoftKeySequence && len(c.Data) > MaxSequenceKeycodes*2 {
		return fmt.Errorf("%w: %d keycodes, max %d",
			ErrSoftKeySequenceTooLong, len(c.Data)/2, MaxSequenceKeycodes)
	}
	return nil
}

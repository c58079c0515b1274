package broker

import "errors"

// Domain errors for the broker package.
var (
	// ErrDeviceUnavailable is returned when the deck is not physically
	// present. No hardware is touched.
	ErrDeviceUnavailable = errors.New("broker: device unavailable")

	// ErrLocked is returned when a persistent client holds the exclusive
	// lock and another caller wants device access.
	ErrLocked = errors.New("broker: device locked by another client")

	// ErrCommandTimeout is returned when a submitted command is not
	// resolved within the command timeout.
	ErrCommandTimeout = errors.New("broker: command timed out")

	// ErrConnectionClosed resolves every pending command when its
	// connection drops.
	ErrConnectionClosed = errors.New("broker: connection closed")

	// ErrPendingLimit is returned when a connection has too many
	// unresolved commands in flight.
	ErrPendingLimit = errors.New("broker: too many commands in flight")

	// ErrDuplicateSequence is returned when a command reuses a sequence
	// number that is still pending.
	ErrDuplicateSequence = errors.New("broker: sequence already in flight")
)

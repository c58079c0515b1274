// Package hid implements the low-level transport to the deck: fixed-size
// HID reports, the chunked message codec layered on top of them, and the
// Manager that owns the device interface.
//
// The chunk codec fragments a logical message across 32-byte reports with
// a 2-byte header and reassembles inbound reports into complete payloads,
// bounded at MaxMessageSize. The Manager tracks physical presence without
// opening the device, opens and closes the interface on demand, serialises
// all report I/O, sends keepalive pings while the interface is open, and
// surfaces device-initiated traffic (state reports, key events, typed
// strings) as Events.
//
// Exclusivity and locking policy live above this package in
// internal/broker; the Manager only guarantees that one transaction
// touches the hardware at a time.
package hid

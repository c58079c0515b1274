// Package protocol defines the wire contract shared by the deckd daemon,
// the persistent app client, and the deck firmware.
//
// It contains:
//   - The tagged, sequenced binary frame format used on the WebSocket
//     channel (Frame, Encode, Decode)
//   - Device types shared across surfaces (DeviceMode, device state byte,
//     SoftKeyType, SoftKeyConfig)
//   - JSON request/response bodies for the REST surface
//   - Boundary limits enforced before anything reaches the device
//
// The package is intentionally dependency-free so both API surfaces and
// the HID layer can import it without cycles.
package protocol

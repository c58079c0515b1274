// Package api provides the HTTP surface of the daemon: a REST API for
// one-shot transient callers and a WebSocket endpoint for the single
// persistent client.
//
// The REST endpoints under /api/v1 execute against the device through
// transient access sections and never block behind the persistent
// holder; they fail fast with 409 when the device is locked. The
// WebSocket endpoint carries the binary frame protocol and owns the
// exclusive device lock for the lifetime of the connection.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

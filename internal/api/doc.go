// Package api provides the HTTP REST API and WebSocket server for the
// Canvas controller.
//
// It exposes device status and control operations, gallery browsing
// and uploads, sync runs with persisted history, and a WebSocket event
// stream for real-time sync progress and device state changes.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

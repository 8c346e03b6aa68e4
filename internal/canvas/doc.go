// Package canvas drives a networked e-ink photo display over its
// vendor HTTP API.
//
// The package is layered leaf-first:
//
//   - Transport: one request/response exchange per call, with the
//     error taxonomy (connection refused, timeout, malformed response,
//     device busy) and pre-send payload-size enforcement. No retries.
//   - Session: the connectivity state machine (unknown, probing,
//     awake, unreachable) with bounded wake probes, the
//     single-operation gate matching the device's single-connection
//     hardware, and timeout retries for idempotent operations only.
//   - StatusCache: last-known device status with an explicit
//     staleness contract; reads never block on the network.
//   - Facade: one method per human-level action (show next, sleep,
//     reboot, clear, wake, settings, show, upload, gallery listing)
//     with a documented idempotency class each.
//
// The device sleeps aggressively to save its battery and accepts one
// connection at a time; everything in this package exists to make
// that hardware tractable for concurrent callers.
package canvas

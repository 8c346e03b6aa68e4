// Package announce bridges the device onto MQTT: it publishes status
// snapshots, availability transitions, and sync run activity, and
// dispatches inbound command messages to the device controller.
//
// Topic layout and payload conventions live in the infrastructure mqtt
// package; this package decides when to publish and what goes in each
// payload.
package announce

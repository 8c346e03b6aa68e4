// Package mqtt provides the broker connection used for announcing
// canvas state to the wider home network.
//
// The client wraps paho.mqtt.golang with connection lifecycle
// management, automatic reconnection with subscription restoration,
// and a Last Will and Testament on canvas/system/status so
// subscribers can distinguish a crash from a graceful shutdown.
//
// Topic builders in topics.go keep the canvas/* namespace consistent.
// Higher layers (the announce package) decide what to publish and
// when; this package only moves bytes.
package mqtt

package mqtt

import "fmt"

// Topic prefixes for the canvas MQTT namespace.
//
// Device topics use the scheme: canvas/device/{name}/{channel} where
// name is the configured friendly device name.
const (
	// TopicPrefix is the base for all canvas topics.
	TopicPrefix = "canvas"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "canvas/device"

	// TopicPrefixSync is the base for sync engine topics.
	TopicPrefixSync = "canvas/sync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "canvas/system"
)

// Topics provides builders for canvas MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("hallway-frame")
//	// Returns: "canvas/device/hallway-frame/status"
type Topics struct{}

// DeviceStatus returns the topic for device status snapshots.
//
// Example: canvas/device/hallway-frame/status
func (Topics) DeviceStatus(name string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, name)
}

// DeviceAvailability returns the topic for device reachability changes.
//
// Example: canvas/device/hallway-frame/availability
func (Topics) DeviceAvailability(name string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefixDevice, name)
}

// DeviceCommand returns the topic for inbound device commands.
//
// Example: canvas/device/hallway-frame/command
func (Topics) DeviceCommand(name string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, name)
}

// SyncRun returns the topic for completed sync run summaries.
//
// Example: canvas/sync/hallway-frame/run
func (Topics) SyncRun(name string) string {
	return fmt.Sprintf("%s/%s/run", TopicPrefixSync, name)
}

// SyncProgress returns the topic for per-item sync progress events.
//
// Example: canvas/sync/hallway-frame/progress
func (Topics) SyncProgress(name string) string {
	return fmt.Sprintf("%s/%s/progress", TopicPrefixSync, name)
}

// SystemStatus returns the controller status topic. The LWT is
// registered on this topic so subscribers see crashes as well as
// graceful shutdowns.
//
// Example: canvas/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns a pattern matching command topics for
// every device.
//
// Pattern: canvas/device/+/command
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefixDevice)
}

// AllDeviceStatus returns a pattern matching status topics for every
// device.
//
// Pattern: canvas/device/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevice)
}

// AllTopics returns a pattern matching all canvas topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: canvas/#
func (Topics) AllTopics() string {
	return "canvas/#"
}

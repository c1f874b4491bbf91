package mqtt

import "fmt"

// Topic prefixes for the FleetGuard MQTT scheme.
//
// Device traffic uses the flat scheme: fleetguard/{category}/{device_id}.
// Request/response exchanges carry a request id in the final segment so
// each requester gets a private response topic.
const (
	// TopicPrefix is the base for all FleetGuard topics.
	TopicPrefix = "fleetguard"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "fleetguard/system"
)

// Topics provides builders for FleetGuard MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.DeviceCommand("plug-01")
//	// Returns: "fleetguard/command/plug-01"
type Topics struct{}

// DeviceCommand returns the topic for commands to a device.
//
// Example: fleetguard/command/plug-01
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// DeviceAck returns the topic for command acknowledgements from a device.
//
// Example: fleetguard/ack/plug-01
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// DeviceTelemetry returns the topic for telemetry readings from a device.
//
// Example: fleetguard/telemetry/plug-01
func (Topics) DeviceTelemetry(deviceID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, deviceID)
}

// Request returns the topic for a request of the given kind.
//
// Example: fleetguard/request/status/req-abc123
func (Topics) Request(kind, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, kind, requestID)
}

// Response returns the topic for the response to a request.
//
// Example: fleetguard/response/status/req-abc123
func (Topics) Response(kind, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, kind, requestID)
}

// SystemStatus returns the system status topic.
//
// Example: fleetguard/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: fleetguard/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllTelemetry returns a pattern matching telemetry from every device.
//
// Pattern: fleetguard/telemetry/+
func (Topics) AllTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", TopicPrefix)
}

// AllAcks returns a pattern matching all command acknowledgements.
//
// Pattern: fleetguard/ack/+
func (Topics) AllAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// AllResponses returns a pattern matching all responses of a kind.
//
// Pattern: fleetguard/response/status/+
func (Topics) AllResponses(kind string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, kind)
}

// AllTopics returns a pattern matching all FleetGuard topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: fleetguard/#
func (Topics) AllTopics() string {
	return "fleetguard/#"
}

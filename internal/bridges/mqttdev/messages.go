package mqttdev

import (
	"time"

	"github.com/nerrad567/fleetguard-core/internal/device"
)

// MQTT message types exchanged between FleetGuard Core and the device fleet.
// All payloads are JSON.

// CommandMessage is sent from Core to a device to execute a command.
// Topic: fleetguard/command/{deviceID}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Action is the operation to perform (e.g., "turn_on", "set_value").
	Action device.Action `json:"action"`

	// Params carries action-specific parameters.
	Params map[string]any `json:"params,omitempty"`
}

// AckMessage is sent from a device to Core to acknowledge a command.
// Topic: fleetguard/ack/{deviceID}
type AckMessage struct {
	// CommandID matches the ID of the acknowledged CommandMessage.
	CommandID string `json:"command_id"`

	// Success reports whether the device executed the command.
	Success bool `json:"success"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// RegisterRequest announces a device to the fleet controller.
// Topic: fleetguard/request/register/{requestID}
type RegisterRequest struct {
	DeviceID   string            `json:"device_id"`
	DeviceType device.DeviceType `json:"device_type"`
}

// RegisterResponse carries the canonical device record, or an error.
// Topic: fleetguard/response/register/{requestID}
type RegisterResponse struct {
	Device *device.Device `json:"device,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// DiscoverRequest asks the fleet controller for all known devices.
// Topic: fleetguard/request/discover/{requestID}
type DiscoverRequest struct{}

// DiscoverResponse lists the devices currently known to the fleet.
// Topic: fleetguard/response/discover/{requestID}
type DiscoverResponse struct {
	Devices []device.Device `json:"devices"`
	Error   string          `json:"error,omitempty"`
}

// StatusRequest asks for the current status of a single device.
// Topic: fleetguard/request/status/{requestID}
type StatusRequest struct {
	DeviceID string `json:"device_id"`
}

// StatusResponse carries the device status, or an error.
// Topic: fleetguard/response/status/{requestID}
type StatusResponse struct {
	Status *device.Status `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
}

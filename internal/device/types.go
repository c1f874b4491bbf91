package device

import (
	"context"
	"time"
)

// Device represents a remote fleet member reachable through a Channel.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// Classification
	Type DeviceType `json:"type"`

	// Capabilities declared at registration (e.g. "on_off", "set_value").
	Capabilities []Capability `json:"capabilities"`

	// NormalPowerRange is the expected operating envelope in watts.
	// The anomaly interlock derives its shutoff threshold from Max.
	NormalPowerRange PowerRange `json:"normal_power_range"`

	// Connectivity
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PowerRange is the expected operating envelope for a device, in watts.
type PowerRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DeepCopy creates an independent copy of the Device.
// The Capabilities slice is cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	return &cpy
}

// HasCapability reports whether the device declared the given capability.
func (d *Device) HasCapability(c Capability) bool {
	for _, cap := range d.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// DeviceType represents the specific kind of device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	DeviceTypeSmartPlug      DeviceType = "smart_plug"
	DeviceTypeLight          DeviceType = "light"
	DeviceTypeThermostat     DeviceType = "thermostat"
	DeviceTypeHVACUnit       DeviceType = "hvac_unit"
	DeviceTypeWaterHeater    DeviceType = "water_heater"
	DeviceTypeEVCharger      DeviceType = "ev_charger"
	DeviceTypeEnergyMeter    DeviceType = "energy_meter"
	DeviceTypeSolarInverter  DeviceType = "solar_inverter"
	DeviceTypeBatteryStorage DeviceType = "battery_storage"
	DeviceTypeSensor         DeviceType = "sensor"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeSmartPlug, DeviceTypeLight, DeviceTypeThermostat,
		DeviceTypeHVACUnit, DeviceTypeWaterHeater, DeviceTypeEVCharger,
		DeviceTypeEnergyMeter, DeviceTypeSolarInverter,
		DeviceTypeBatteryStorage, DeviceTypeSensor,
	}
}

// ValidDeviceType reports whether t is a recognised device type.
func ValidDeviceType(t DeviceType) bool {
	for _, known := range AllDeviceTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Capability represents what a device can do.
type Capability string

// Capability constants.
const (
	CapOnOff     Capability = "on_off"
	CapSetValue  Capability = "set_value"
	CapSetMode   Capability = "set_mode"
	CapDim       Capability = "dim"
	CapPowerRead Capability = "power_read"
	CapTempRead  Capability = "temperature_read"
	CapTempSet   Capability = "temperature_set"
)

// Action identifies the operation a Command performs.
type Action string

// Action constants. These are the only actions the dispatch layer
// will accept; forward-compatible extension data travels in Params.
const (
	ActionTurnOn   Action = "turn_on"
	ActionTurnOff  Action = "turn_off"
	ActionToggle   Action = "toggle"
	ActionSetValue Action = "set_value"
	ActionSetMode  Action = "set_mode"
)

// AllActions returns all valid command actions.
func AllActions() []Action {
	return []Action{
		ActionTurnOn, ActionTurnOff, ActionToggle,
		ActionSetValue, ActionSetMode,
	}
}

// ValidAction reports whether a is a recognised command action.
func ValidAction(a Action) bool {
	for _, known := range AllActions() {
		if a == known {
			return true
		}
	}
	return false
}

// Command is an immutable instruction for a device.
// Construct one per dispatch; never reuse a Command after mutation
// of its Params map.
type Command struct {
	Action Action `json:"action"`

	// Params carries action-specific parameters, e.g.
	// {"value": 72.5} for set_value or {"mode": "eco"} for set_mode.
	Params map[string]any `json:"params,omitempty"`
}

// DeepCopy creates an independent copy of the Command.
func (c Command) DeepCopy() Command {
	cpy := c
	if c.Params != nil {
		cpy.Params = make(map[string]any, len(c.Params))
		for k, v := range c.Params {
			cpy.Params[k] = v
		}
	}
	return cpy
}

// Status is the last reported state of a device.
type Status struct {
	DeviceID   string         `json:"device_id"`
	Online     bool           `json:"online"`
	PowerWatts float64        `json:"power_watts"`
	State      map[string]any `json:"state,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Reading is a single telemetry sample from a device.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryHandler receives telemetry readings for a subscription.
//
// Handlers may be invoked from transport goroutines and should not
// block for extended periods.
type TelemetryHandler func(reading Reading)

// Channel is the base device channel: the contract with the underlying
// cloud/device transport. Any operation may fail with an opaque error;
// callers treat errors from this layer as success/failure only.
type Channel interface {
	// Register announces a device to the remote API and returns
	// its canonical record.
	Register(ctx context.Context, deviceID string, deviceType DeviceType) (*Device, error)

	// Discover lists the devices currently known to the remote API.
	Discover(ctx context.Context) ([]Device, error)

	// GetStatus fetches the current status of a device.
	GetStatus(ctx context.Context, deviceID string) (*Status, error)

	// SendCommand dispatches a command to a device.
	SendCommand(ctx context.Context, deviceID string, cmd Command) error

	// SubscribeTelemetry registers a handler for telemetry from a device.
	SubscribeTelemetry(ctx context.Context, deviceID string, handler TelemetryHandler) error
}

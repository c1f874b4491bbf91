package override

import "time"

// Type identifies what an override suppresses.
type Type string

// Type constants.
const (
	TypeDeviceControl     Type = "device_control"
	TypeScheduleBypass    Type = "schedule_bypass"
	TypeAnomalyIgnore     Type = "anomaly_ignore"
	TypeSystemMaintenance Type = "system_maintenance"
	TypeEmergencyShutdown Type = "emergency_shutdown"
)

// AllTypes returns all valid override types.
func AllTypes() []Type {
	return []Type{
		TypeDeviceControl, TypeScheduleBypass, TypeAnomalyIgnore,
		TypeSystemMaintenance, TypeEmergencyShutdown,
	}
}

// ValidType reports whether t is a recognised override type.
func ValidType(t Type) bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the lifecycle state of an override.
type Status string

// Status constants.
const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Override is a time-bounded operator grant.
// Once expired or revoked an override is immutable.
type Override struct {
	ID string `json:"id"`

	Type Type `json:"type"`

	// DeviceID scopes the override to a single device.
	// Empty means system-wide.
	DeviceID string `json:"device_id,omitempty"`

	UserID string `json:"user_id"`
	Reason string `json:"reason"`

	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the expiry deadline. Nil means no expiry.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Status Status `json:"status"`
}

// SystemWide reports whether the override applies to the whole fleet.
func (o *Override) SystemWide() bool {
	return o.DeviceID == ""
}

// CreateRequest describes a new override grant.
type CreateRequest struct {
	Type     Type
	DeviceID string // empty = system-wide
	UserID   string
	Reason   string

	// Duration bounds the override lifetime. Zero selects the
	// manager's configured default (which may be "no expiry").
	Duration time.Duration
}

// Statistics is a point-in-time summary of override state.
type Statistics struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	ByType   map[Type]int   `json:"by_type"`
	ByStatus map[Status]int `json:"by_status"`
}

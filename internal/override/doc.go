// Package override implements the manual override authority for
// FleetGuard Core.
//
// An override is an explicit, time-bounded operator grant that
// suppresses automated device control for safety or maintenance
// reasons. The authority is consulted before any automated action;
// its answer always wins.
//
// # Override Types and Precedence
//
//   - emergency_shutdown: dominates everything; blocks device control
//     and schedules system-wide or per-device
//   - device_control: locks out automated control of a device (or all)
//   - schedule_bypass: suspends schedule execution
//   - anomaly_ignore: suppresses the anomaly interlock's autonomous
//     shutoff for a device
//   - system_maintenance: marks maintenance windows for bookkeeping
//
// Callers compose precedence through IsDeviceControlBlocked and
// IsScheduleBlocked rather than querying raw types.
//
// # Lifecycle
//
// active → expired happens lazily at query time once the expiry
// passes; no background sweep is required for correctness (ExpireSweep
// exists for bookkeeping). active → revoked is explicit and requires
// authorisation: only the creating user or a configured admin may
// revoke. Expired and revoked overrides are immutable.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use.
package override

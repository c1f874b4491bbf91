// Package device defines the shared device model for FleetGuard Core.
//
// It contains the types that every other package in the system speaks:
// the Device entity, the Command value object, status and telemetry
// structures, and the Channel interface that abstracts the underlying
// cloud transport.
//
// # The Channel Contract
//
// Channel is the boundary between FleetGuard and the physical/cloud
// device transport. Implementations live elsewhere (for example
// internal/bridges/mqttdev); the resilience layer wraps any Channel
// and never inspects errors returned by it beyond success/failure.
//
// # Key Types
//
//   - Device: a fleet member with declared capabilities and a normal
//     power range used as the safety baseline
//   - Command: an immutable action plus optional parameters
//   - Status: last reported state of a device
//   - Reading: a single telemetry sample
//
// # Thread Safety
//
// The types in this package are plain values. Device carries reference
// fields (Capabilities, and Params on Command); use DeepCopy when a
// value crosses a cache boundary.
package device

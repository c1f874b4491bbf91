// Package anomaly implements the anomaly safety interlock for
// FleetGuard Core.
//
// The interlock watches per-device power readings against the device's
// declared normal operating envelope. A reading strictly above
// 1.5 × normal max triggers an autonomous turn_off dispatch and a
// high-severity report; readings at or below the threshold are normal
// (the boundary itself is not anomalous).
//
// Shutoff dispatches are deliberately NOT wrapped in graceful
// degradation: a failed shutdown is reported loudly, never silently
// replaced with a fallback. The anomaly is recorded and notified
// whether or not the shutdown command succeeds.
//
// Repeated violations (three or more anomalies inside a rolling
// 24-hour window) produce a standing disable recommendation via
// ShouldDisableDevice.
//
// An active anomaly_ignore override suppresses the autonomous shutoff
// (the manual authority always wins) but the event is still recorded.
package anomaly

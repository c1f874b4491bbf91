package anomaly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/fleetguard-core/internal/device"
	"github.com/nerrad567/fleetguard-core/internal/faults"
)

// Logger defines the logging interface used by the Detector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceLookup resolves a device record, typically served from the
// resilience layer's cache.
type DeviceLookup interface {
	GetDevice(ctx context.Context, deviceID string) (*device.Device, error)
}

// Shutoff dispatches the autonomous shutdown command. Implemented by
// the resilient device manager.
type Shutoff interface {
	SendCommand(ctx context.Context, deviceID string, cmd device.Command) error
}

// OverrideChecker answers whether the interlock is suppressed for a
// device. Implemented by the override manager.
type OverrideChecker interface {
	IsAnomalyIgnored(deviceID string) bool
}

// MetricsSink receives anomaly measurements for time-series storage.
// Optional; typically backed by InfluxDB.
type MetricsSink interface {
	WriteAnomalyMetric(deviceID string, actualValue, threshold float64)
}

// Auditor receives anomaly events for the persistent audit trail.
// Optional; implemented by the audit trail.
type Auditor interface {
	RecordAnomaly(deviceID, actionTaken string, actualValue, threshold float64)
}

// Action taken in response to an anomaly.
const (
	ActionShutdown           = "shutdown"
	ActionShutdownFailed     = "shutdown_failed"
	ActionSuppressedOverride = "suppressed_by_override"
)

// Event is one recorded anomaly. The per-device history is append-only.
type Event struct {
	DeviceID    string            `json:"device_id"`
	Timestamp   time.Time         `json:"timestamp"`
	NormalRange device.PowerRange `json:"normal_range"`
	ActualValue float64           `json:"actual_value"`
	ActionTaken string            `json:"action_taken"`
}

// Result is the outcome of a single anomaly check.
type Result struct {
	IsAnomaly bool            `json:"is_anomaly"`
	Severity  faults.Severity `json:"severity"`
	Reason    string          `json:"reason,omitempty"`
}

// Default interlock parameters.
const (
	defaultThresholdMultiplier = 1.5
	defaultDisableWindow       = 24 * time.Hour
	defaultDisableCount        = 3
)

// Config configures a Detector.
type Config struct {
	// ThresholdMultiplier scales a device's normal max to the shutoff
	// threshold. Default: 1.5.
	ThresholdMultiplier float64

	// DisableWindow is the rolling window for repeated violations.
	// Default: 24 hours.
	DisableWindow time.Duration

	// DisableCount is how many anomalies inside the window trigger a
	// disable recommendation. Default: 3.
	DisableCount int
}

// Detector performs per-device statistical bound checking and drives
// the autonomous shutoff.
//
// All methods are thread-safe.
type Detector struct {
	mu     sync.Mutex
	events map[string][]Event

	lookup    DeviceLookup
	shutoff   Shutoff
	overrides OverrideChecker
	metrics   MetricsSink
	auditor   Auditor
	handler   *faults.Handler

	multiplier    float64
	disableWindow time.Duration
	disableCount  int

	logger Logger
}

// NewDetector creates an anomaly detector.
//
// lookup and shutoff are required. handler records anomaly reports and
// shutdown failures (and drives notifications).
func NewDetector(cfg Config, lookup DeviceLookup, shutoff Shutoff, handler *faults.Handler) *Detector {
	multiplier := cfg.ThresholdMultiplier
	if multiplier <= 0 {
		multiplier = defaultThresholdMultiplier
	}
	window := cfg.DisableWindow
	if window <= 0 {
		window = defaultDisableWindow
	}
	count := cfg.DisableCount
	if count <= 0 {
		count = defaultDisableCount
	}

	return &Detector{
		events:        make(map[string][]Event),
		lookup:        lookup,
		shutoff:       shutoff,
		handler:       handler,
		multiplier:    multiplier,
		disableWindow: window,
		disableCount:  count,
		logger:        noopLogger{},
	}
}

// SetLogger sets the logger for the detector.
func (d *Detector) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// SetOverrideChecker wires the manual override authority. When set, an
// active anomaly_ignore override suppresses the autonomous shutoff.
func (d *Detector) SetOverrideChecker(c OverrideChecker) {
	d.mu.Lock()
	d.overrides = c
	d.mu.Unlock()
}

// SetMetricsSink wires an optional time-series sink for anomaly values.
func (d *Detector) SetMetricsSink(s MetricsSink) {
	d.mu.Lock()
	d.metrics = s
	d.mu.Unlock()
}

// SetAuditor wires an optional audit sink for anomaly events.
func (d *Detector) SetAuditor(a Auditor) {
	d.mu.Lock()
	d.auditor = a
	d.mu.Unlock()
}

// Check evaluates a power reading against the device's safety bound.
//
// The threshold is NormalPowerRange.Max × multiplier, closed below and
// open above: a value exactly at the threshold is NOT anomalous. On an
// anomaly the detector attempts an autonomous turn_off; a failed
// dispatch is reported but never suppresses the anomaly record or its
// notification.
func (d *Detector) Check(ctx context.Context, deviceID string, currentValue float64) (Result, error) {
	dev, err := d.lookup.GetDevice(ctx, deviceID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving device %q: %w", deviceID, err)
	}

	threshold := dev.NormalPowerRange.Max * d.multiplier
	if currentValue <= threshold {
		return Result{IsAnomaly: false, Severity: faults.SeverityLow}, nil
	}

	reason := fmt.Sprintf("power %.2fW exceeds safety threshold %.2fW (normal max %.2fW)",
		currentValue, threshold, dev.NormalPowerRange.Max)

	d.mu.Lock()
	overrides := d.overrides
	metrics := d.metrics
	auditor := d.auditor
	logger := d.logger
	d.mu.Unlock()

	action := ActionShutdown
	suppressed := overrides != nil && overrides.IsAnomalyIgnored(deviceID)

	switch {
	case suppressed:
		action = ActionSuppressedOverride
		logger.Warn("anomaly shutoff suppressed by override", "device_id", deviceID, "value", currentValue)
	default:
		if err := d.shutoff.SendCommand(ctx, deviceID, device.Command{Action: device.ActionTurnOff}); err != nil {
			// The shutdown failing makes things worse, not quieter.
			action = ActionShutdownFailed
			d.handler.Handle(faults.CategoryDeviceCommunication, faults.SeverityCritical,
				"anomaly shutdown dispatch failed",
				faults.Context{Component: "anomaly", Operation: "shutoff", DeviceID: deviceID},
				err,
			)
		}
	}

	event := Event{
		DeviceID:    deviceID,
		Timestamp:   time.Now().UTC(),
		NormalRange: dev.NormalPowerRange,
		ActualValue: currentValue,
		ActionTaken: action,
	}

	d.mu.Lock()
	d.events[deviceID] = append(d.events[deviceID], event)
	d.mu.Unlock()

	// Report the anomaly itself regardless of shutdown outcome.
	d.handler.Handle(faults.CategoryAnomalyDetection, faults.SeverityHigh, reason,
		faults.Context{
			Component: "anomaly",
			Operation: "check",
			DeviceID:  deviceID,
			Metadata: map[string]any{
				"actual_value": currentValue,
				"threshold":    threshold,
				"action":       action,
			},
		}, nil)

	if metrics != nil {
		metrics.WriteAnomalyMetric(deviceID, currentValue, threshold)
	}
	if auditor != nil {
		auditor.RecordAnomaly(deviceID, action, currentValue, threshold)
	}

	return Result{IsAnomaly: true, Severity: faults.SeverityHigh, Reason: reason}, nil
}

// ShouldDisableDevice reports whether the device has accumulated enough
// anomalies inside the rolling window to warrant a standing disable
// recommendation: some run of disableCount consecutive events whose
// span (latest - earliest) is within the window, boundary inclusive.
func (d *Detector) ShouldDisableDevice(deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.events[deviceID]
	if len(events) < d.disableCount {
		return false
	}

	// History is append-only and therefore time-ordered.
	for i := 0; i+d.disableCount <= len(events); i++ {
		earliest := events[i].Timestamp
		latest := events[i+d.disableCount-1].Timestamp
		if latest.Sub(earliest) <= d.disableWindow {
			return true
		}
	}

	return false
}

// History returns a copy of the recorded anomaly events for a device.
func (d *Detector) History(deviceID string) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	events := d.events[deviceID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

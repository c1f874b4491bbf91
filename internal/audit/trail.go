package audit

import (
	"context"
	"time"

	"github.com/nerrad567/fleetguard-core/internal/override"
)

// Logger defines the logging interface used by the Trail.
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

// writeTimeout bounds each audit insert so a stalled database never
// blocks the calling subsystem.
const writeTimeout = 5 * time.Second

// Trail is the write-side facade over the audit repository. Writes are
// best-effort: failures are logged and swallowed so audit persistence
// never propagates into safety or control paths.
type Trail struct {
	repo   Repository
	logger Logger
}

// NewTrail creates an audit trail over the given repository.
func NewTrail(repo Repository) *Trail {
	return &Trail{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the trail.
func (t *Trail) SetLogger(logger Logger) {
	t.logger = logger
}

// RecordOverride persists an override lifecycle event. Implements the
// override manager's Auditor interface.
func (t *Trail) RecordOverride(action string, o override.Override, actor string) {
	details := map[string]any{
		"type":   string(o.Type),
		"reason": o.Reason,
	}
	if o.ExpiresAt != nil {
		details["expires_at"] = o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if o.DeviceID != "" {
		details["device_id"] = o.DeviceID
	}

	t.write(&Event{
		Action:     action,
		EntityType: EntityOverride,
		EntityID:   o.ID,
		Actor:      actor,
		Details:    details,
	})
}

// RecordAnomaly persists an anomaly interlock action for a device.
func (t *Trail) RecordAnomaly(deviceID, actionTaken string, actualValue, threshold float64) {
	t.write(&Event{
		Action:     actionTaken,
		EntityType: EntityAnomaly,
		EntityID:   deviceID,
		Details: map[string]any{
			"actual_value": actualValue,
			"threshold":    threshold,
		},
	})
}

// RecordCommandDrop persists the loss of a queued command, either by
// queue eviction or by exhausting delivery retries.
func (t *Trail) RecordCommandDrop(commandID, deviceID, action, cause string) {
	t.write(&Event{
		Action:     "drop",
		EntityType: EntityCommand,
		EntityID:   commandID,
		Details: map[string]any{
			"device_id": deviceID,
			"action":    action,
			"cause":     cause,
		},
	})
}

func (t *Trail) write(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := t.repo.Create(ctx, event); err != nil {
		t.logger.Error("audit write failed",
			"action", event.Action,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}

var _ override.Auditor = (*Trail)(nil)

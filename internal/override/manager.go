package override

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Manager.
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

// Auditor receives override lifecycle events for external bookkeeping
// (typically the SQLite audit trail). Calls are best-effort; the
// manager never blocks on audit failures.
type Auditor interface {
	RecordOverride(action string, o Override, actor string)
}

// Default lifetime for emergency shutdown overrides.
const defaultEmergencyDuration = 60 * time.Minute

// Config configures a Manager.
type Config struct {
	// AdminUserIDs may revoke any override regardless of creator.
	AdminUserIDs []string

	// DefaultDuration applies when a CreateRequest has no duration.
	// Zero means such overrides do not expire.
	DefaultDuration time.Duration

	// EmergencyDuration is the lifetime of emergency shutdown
	// overrides. Default: 60 minutes.
	EmergencyDuration time.Duration
}

// Manager is the registry of override grants.
//
// All methods are thread-safe. Expiry is evaluated lazily on query,
// so a Manager is correct without any background task.
type Manager struct {
	mu        sync.Mutex
	overrides map[string]*Override

	admins            map[string]struct{}
	defaultDuration   time.Duration
	emergencyDuration time.Duration

	auditor Auditor
	logger  Logger
}

// NewManager creates an override manager.
func NewManager(cfg Config) *Manager {
	emergency := cfg.EmergencyDuration
	if emergency <= 0 {
		emergency = defaultEmergencyDuration
	}

	admins := make(map[string]struct{}, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = struct{}{}
	}

	return &Manager{
		overrides:         make(map[string]*Override),
		admins:            admins,
		defaultDuration:   cfg.DefaultDuration,
		emergencyDuration: emergency,
		logger:            noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// SetAuditor sets the audit sink for override lifecycle events.
func (m *Manager) SetAuditor(a Auditor) {
	m.mu.Lock()
	m.auditor = a
	m.mu.Unlock()
}

// Create registers a new override grant.
func (m *Manager) Create(req CreateRequest) (*Override, error) {
	if !ValidType(req.Type) {
		return nil, ErrInvalidType
	}
	if req.UserID == "" {
		return nil, ErrMissingUser
	}

	now := time.Now().UTC()
	o := &Override{
		ID:        "ovr-" + uuid.NewString()[:8],
		Type:      req.Type,
		DeviceID:  req.DeviceID,
		UserID:    req.UserID,
		Reason:    req.Reason,
		CreatedAt: now,
		Status:    StatusActive,
	}

	duration := req.Duration
	if duration == 0 {
		duration = m.defaultDuration
	}
	if duration > 0 {
		expiry := now.Add(duration)
		o.ExpiresAt = &expiry
	}

	m.mu.Lock()
	m.overrides[o.ID] = o
	auditor := m.auditor
	logger := m.logger
	m.mu.Unlock()

	logger.Info("override created",
		"id", o.ID,
		"type", o.Type,
		"device_id", o.DeviceID,
		"user_id", o.UserID,
		"reason", o.Reason,
	)

	if auditor != nil {
		auditor.RecordOverride("create", *o, req.UserID)
	}

	return o.copyLocked(), nil
}

// CreateEmergencyShutdown creates emergency shutdown overrides.
//
// With no device IDs a single system-wide override is created; with
// IDs, one override per device. Emergency overrides carry the
// configured emergency duration (default 60 minutes).
func (m *Manager) CreateEmergencyShutdown(userID, reason string, deviceIDs []string) ([]*Override, error) {
	if len(deviceIDs) == 0 {
		o, err := m.Create(CreateRequest{
			Type:     TypeEmergencyShutdown,
			UserID:   userID,
			Reason:   reason,
			Duration: m.emergencyDuration,
		})
		if err != nil {
			return nil, err
		}
		return []*Override{o}, nil
	}

	created := make([]*Override, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		o, err := m.Create(CreateRequest{
			Type:     TypeEmergencyShutdown,
			DeviceID: deviceID,
			UserID:   userID,
			Reason:   reason,
			Duration: m.emergencyDuration,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, o)
	}

	return created, nil
}

// IsActive reports whether an active override of the given type exists
// for the given scope. Device-scoped queries match only that device's
// own overrides; a system-wide query (empty deviceID) matches only
// system-wide overrides. Expiry is evaluated lazily here.
func (m *Manager) IsActive(typ Type, deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, o := range m.overrides {
		if o.Type != typ || o.DeviceID != deviceID {
			continue
		}
		if m.isActiveLocked(o, now) {
			return true
		}
	}
	return false
}

// IsDeviceControlBlocked reports whether automated control of a device
// is currently vetoed: a device_control or emergency_shutdown override,
// device-scoped or system-wide, is active. Emergency shutdown therefore
// dominates every per-device grant.
func (m *Manager) IsDeviceControlBlocked(deviceID string) bool {
	return m.IsActive(TypeDeviceControl, deviceID) ||
		m.IsActive(TypeDeviceControl, "") ||
		m.IsActive(TypeEmergencyShutdown, deviceID) ||
		m.IsActive(TypeEmergencyShutdown, "")
}

// IsScheduleBlocked reports whether schedule execution for a device is
// suppressed: schedule_bypass, device_control, or emergency_shutdown,
// device-scoped or system-wide.
func (m *Manager) IsScheduleBlocked(deviceID string) bool {
	return m.IsActive(TypeScheduleBypass, deviceID) ||
		m.IsActive(TypeScheduleBypass, "") ||
		m.IsDeviceControlBlocked(deviceID)
}

// IsAnomalyIgnored reports whether the anomaly interlock is suppressed
// for a device, device-scoped or system-wide.
func (m *Manager) IsAnomalyIgnored(deviceID string) bool {
	return m.IsActive(TypeAnomalyIgnore, deviceID) ||
		m.IsActive(TypeAnomalyIgnore, "")
}

// Revoke transitions an active override to revoked.
//
// Only the creating user or a configured admin may revoke; other users
// receive ErrUnauthorized. Revoking an already expired or revoked
// override is a no-op returning false. Unknown IDs return
// ErrOverrideNotFound.
func (m *Manager) Revoke(id, userID string) (bool, error) {
	m.mu.Lock()

	o, ok := m.overrides[id]
	if !ok {
		m.mu.Unlock()
		return false, ErrOverrideNotFound
	}

	if o.UserID != userID {
		if _, admin := m.admins[userID]; !admin {
			m.mu.Unlock()
			return false, ErrUnauthorized
		}
	}

	// Lazily settle expiry before deciding.
	if !m.isActiveLocked(o, time.Now()) {
		m.mu.Unlock()
		return false, nil
	}

	o.Status = StatusRevoked
	revoked := *o
	auditor := m.auditor
	logger := m.logger
	m.mu.Unlock()

	logger.Info("override revoked", "id", id, "by", userID)

	if auditor != nil {
		auditor.RecordOverride("revoke", revoked, userID)
	}

	return true, nil
}

// Get returns a copy of the override with the given ID.
func (m *Manager) Get(id string) (*Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overrides[id]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	m.isActiveLocked(o, time.Now()) // settle lazy expiry

	return o.copyLocked(), nil
}

// ActiveOverrides returns copies of all currently active overrides.
func (m *Manager) ActiveOverrides() []Override {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var active []Override
	for _, o := range m.overrides {
		if m.isActiveLocked(o, now) {
			active = append(active, *o.copyLocked())
		}
	}
	return active
}

// GetStatistics returns counts of overrides by type and status.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stats := Statistics{
		ByType:   make(map[Type]int),
		ByStatus: make(map[Status]int),
	}

	for _, o := range m.overrides {
		m.isActiveLocked(o, now) // settle lazy expiry before counting
		stats.Total++
		stats.ByType[o.Type]++
		stats.ByStatus[o.Status]++
		if o.Status == StatusActive {
			stats.Active++
		}
	}

	return stats
}

// ExpireSweep settles expiry on every override and returns how many
// transitioned to expired. Correctness does not depend on this; it is
// bookkeeping for operators and the audit trail.
func (m *Manager) ExpireSweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := 0
	for _, o := range m.overrides {
		if o.Status == StatusActive && !m.isActiveLocked(o, now) {
			expired++
		}
	}
	return expired
}

// isActiveLocked checks and lazily settles an override's expiry.
// Caller must hold m.mu.
func (m *Manager) isActiveLocked(o *Override, now time.Time) bool {
	if o.Status != StatusActive {
		return false
	}
	if o.ExpiresAt != nil && now.After(*o.ExpiresAt) {
		o.Status = StatusExpired
		return false
	}
	return true
}

// copyLocked returns an independent copy of an override.
func (o *Override) copyLocked() *Override {
	cpy := *o
	if o.ExpiresAt != nil {
		expiry := *o.ExpiresAt
		cpy.ExpiresAt = &expiry
	}
	return &cpy
}

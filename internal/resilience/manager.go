package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/fleetguard-core/internal/device"
	"github.com/nerrad567/fleetguard-core/internal/faults"
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

// OverrideAuthority answers whether manual overrides block device
// control. Implemented by the override manager.
type OverrideAuthority interface {
	IsDeviceControlBlocked(deviceID string) bool
}

// MetricsSink receives queue depth measurements. Optional; typically
// backed by InfluxDB.
type MetricsSink interface {
	WriteQueueDepth(depth int)
}

// Auditor receives command-loss events for the persistent audit trail.
// Optional; implemented by the audit trail.
type Auditor interface {
	RecordCommandDrop(commandID, deviceID, action, cause string)
}

// Degradation feature names, one per read path.
const (
	featureRegistration = "device_registration"
	featureDiscovery    = "device_discovery"
	featureStatusReads  = "status_reads"
)

// Cache keys.
const cacheKeyDevices = "devices"

func deviceKey(id string) string { return "device:" + id }
func statusKey(id string) string { return "status:" + id }

// Default manager parameters.
const (
	defaultMaxQueueSize           = 100
	defaultMaxConsecutiveFailures = 5
	defaultProbeInterval          = 60 * time.Second
	defaultDrainInterval          = 60 * time.Second
	defaultCacheTTL               = 5 * time.Minute
	defaultCommandMaxRetries      = 3
	probeTimeout                  = 10 * time.Second
)

// Config configures a Manager.
type Config struct {
	// MaxQueueSize bounds the offline command queue. Default: 100.
	MaxQueueSize int

	// MaxConsecutiveFailures is how many probe failures in a row flip
	// the channel to unavailable. Default: 5.
	MaxConsecutiveFailures int

	// ProbeInterval is how often the availability probe runs. Default: 60s.
	ProbeInterval time.Duration

	// DrainInterval is how often the queue drainer runs. Default: 60s.
	DrainInterval time.Duration

	// CacheTTL is the freshness window for cached reads. Default: 5m.
	CacheTTL time.Duration

	// CommandMaxRetries is the drain retry ceiling per queued command.
	// Default: 3.
	CommandMaxRetries int

	// Retry is the backoff policy applied to live channel operations.
	Retry faults.RetryConfig
}

// APIStatus is the manager's view of the device channel's health.
type APIStatus struct {
	IsAvailable         bool      `json:"is_available"`
	LastChecked         time.Time `json:"last_checked"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// QueueStatus describes the offline command queue.
type QueueStatus struct {
	Size            int        `json:"size"`
	MaxSize         int        `json:"max_size"`
	OldestTimestamp *time.Time `json:"oldest_timestamp,omitempty"`
}

// CacheStatus describes the read cache.
type CacheStatus struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Manager wraps a device.Channel with retry, response caching, offline
// command queueing and availability tracking. It is the only path the
// rest of the system uses to reach devices.
//
// All methods are thread-safe.
type Manager struct {
	channel  device.Channel
	handler  *faults.Handler
	degrader *faults.Degrader

	mu        sync.Mutex
	api       APIStatus
	overrides OverrideAuthority
	metrics   MetricsSink
	auditor   Auditor
	logger    Logger

	queue *commandQueue
	cache *ttlCache
	cfg   Config

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates a resilient device manager over the given channel.
//
// handler records failures and drives retry policy; degrader provides
// feature-level fallback for the read paths.
func NewManager(cfg Config, channel device.Channel, handler *faults.Handler, degrader *faults.Degrader) *Manager {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CommandMaxRetries <= 0 {
		cfg.CommandMaxRetries = defaultCommandMaxRetries
	}

	return &Manager{
		channel:  channel,
		handler:  handler,
		degrader: degrader,
		api: APIStatus{
			IsAvailable: true,
			LastChecked: time.Now().UTC(),
		},
		queue:  newCommandQueue(cfg.MaxQueueSize),
		cache:  newTTLCache(cfg.CacheTTL),
		cfg:    cfg,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// SetOverrideAuthority wires the manual override manager. When set,
// commands for blocked devices are refused before touching the channel.
func (m *Manager) SetOverrideAuthority(a OverrideAuthority) {
	m.mu.Lock()
	m.overrides = a
	m.mu.Unlock()
}

// SetMetricsSink wires an optional sink for queue depth gauges.
func (m *Manager) SetMetricsSink(s MetricsSink) {
	m.mu.Lock()
	m.metrics = s
	m.mu.Unlock()
}

// SetAuditor wires an optional audit sink for dropped commands.
func (m *Manager) SetAuditor(a Auditor) {
	m.mu.Lock()
	m.auditor = a
	m.mu.Unlock()
}

// Start launches the availability probe and queue drainer.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.probeLoop(ctx)
	go m.drainLoop(ctx)
	m.log().Info("resilient device manager started",
		"probe_interval", m.cfg.ProbeInterval,
		"drain_interval", m.cfg.DrainInterval,
		"max_queue_size", m.cfg.MaxQueueSize,
	)
}

// Stop halts the background loops and waits for them to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}

// Register registers a device on the underlying channel. On success the
// record is cached; on failure the last cached record for the device is
// served if still fresh.
func (m *Manager) Register(ctx context.Context, deviceID string, deviceType device.DeviceType) (*device.Device, error) {
	if !device.ValidDeviceType(deviceType) {
		sysErr := m.handler.Handle(faults.CategoryDataValidation, faults.SeverityMedium,
			fmt.Sprintf("unknown device type %q", deviceType),
			faults.Context{Component: "resilience", Operation: "register", DeviceID: deviceID}, device.ErrInvalidDeviceType)
		return nil, sysErr
	}

	var lastErr error
	return faults.WithFallback(ctx, m.degrader, featureRegistration,
		func(ctx context.Context) (*device.Device, error) {
			dev, err := faults.Execute(ctx, m.handler, func(ctx context.Context) (*device.Device, error) {
				return m.channel.Register(ctx, deviceID, deviceType)
			}, faults.CategoryCloudAPI, faults.Context{
				Component: "resilience",
				Operation: "register",
				DeviceID:  deviceID,
			}, &m.cfg.Retry)
			if err != nil {
				lastErr = err
				m.markUnavailable()
				return nil, err
			}
			m.markAvailable()
			m.cache.Set(deviceKey(deviceID), dev.DeepCopy())
			return dev, nil
		},
		func() (*device.Device, error) {
			return m.cachedDevice(deviceID, lastErr)
		})
}

// Discover lists devices via the channel, serving the cached inventory
// when the channel is unreachable.
func (m *Manager) Discover(ctx context.Context) ([]device.Device, error) {
	var lastErr error
	return faults.WithFallback(ctx, m.degrader, featureDiscovery,
		func(ctx context.Context) ([]device.Device, error) {
			devices, err := faults.Execute(ctx, m.handler, func(ctx context.Context) ([]device.Device, error) {
				return m.channel.Discover(ctx)
			}, faults.CategoryCloudAPI, faults.Context{
				Component: "resilience",
				Operation: "discover",
			}, &m.cfg.Retry)
			if err != nil {
				lastErr = err
				m.markUnavailable()
				return nil, err
			}
			m.markAvailable()
			m.cacheInventory(devices)
			return devices, nil
		},
		func() ([]device.Device, error) {
			if cached, ok := m.cache.Get(cacheKeyDevices); ok {
				devices := cached.([]device.Device)
				out := make([]device.Device, len(devices))
				for i := range devices {
					out[i] = *devices[i].DeepCopy()
				}
				m.log().Warn("serving cached device inventory", "count", len(out))
				return out, nil
			}
			if lastErr != nil {
				return nil, fmt.Errorf("%w: discover failed: %w", ErrNotCached, lastErr)
			}
			return nil, fmt.Errorf("%w: discover", ErrNotCached)
		})
}

// GetStatus fetches a device's live status, serving the cached status
// when the channel is unreachable.
func (m *Manager) GetStatus(ctx context.Context, deviceID string) (*device.Status, error) {
	var lastErr error
	return faults.WithFallback(ctx, m.degrader, featureStatusReads,
		func(ctx context.Context) (*device.Status, error) {
			status, err := faults.Execute(ctx, m.handler, func(ctx context.Context) (*device.Status, error) {
				return m.channel.GetStatus(ctx, deviceID)
			}, faults.CategoryCloudAPI, faults.Context{
				Component: "resilience",
				Operation: "get_status",
				DeviceID:  deviceID,
			}, &m.cfg.Retry)
			if err != nil {
				lastErr = err
				m.markUnavailable()
				return nil, err
			}
			m.markAvailable()
			cached := *status
			m.cache.Set(statusKey(deviceID), &cached)
			return status, nil
		},
		func() (*device.Status, error) {
			if cached, ok := m.cache.Get(statusKey(deviceID)); ok {
				status := *cached.(*device.Status)
				m.log().Warn("serving cached device status", "device_id", deviceID, "as_of", status.UpdatedAt)
				return &status, nil
			}
			if lastErr != nil {
				return nil, fmt.Errorf("%w: status for %s: %w", ErrNotCached, deviceID, lastErr)
			}
			return nil, fmt.Errorf("%w: status for %s", ErrNotCached, deviceID)
		})
}

// GetDevice returns the cached device record. Records enter the cache
// through Register and Discover.
func (m *Manager) GetDevice(_ context.Context, deviceID string) (*device.Device, error) {
	return m.cachedDevice(deviceID, nil)
}

// SendCommand dispatches a command to a device. An active blocking
// override refuses the command outright. When the channel is
// unavailable, or dispatch fails after retries, the command is queued
// for later delivery and nil is returned.
func (m *Manager) SendCommand(ctx context.Context, deviceID string, cmd device.Command) error {
	if !device.ValidAction(cmd.Action) {
		sysErr := m.handler.Handle(faults.CategoryDataValidation, faults.SeverityMedium,
			fmt.Sprintf("unknown action %q", cmd.Action),
			faults.Context{Component: "resilience", Operation: "send_command", DeviceID: deviceID}, device.ErrInvalidAction)
		return sysErr
	}

	m.mu.Lock()
	overrides := m.overrides
	available := m.api.IsAvailable
	m.mu.Unlock()

	if overrides != nil && overrides.IsDeviceControlBlocked(deviceID) {
		m.handler.Handle(faults.CategorySystem, faults.SeverityMedium,
			fmt.Sprintf("command %q refused: device control overridden", cmd.Action),
			faults.Context{Component: "resilience", Operation: "send_command", DeviceID: deviceID}, nil)
		return fmt.Errorf("%w: device %s", ErrControlOverridden, deviceID)
	}

	if available {
		_, err := faults.Execute(ctx, m.handler, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.channel.SendCommand(ctx, deviceID, cmd)
		}, faults.CategoryDeviceCommunication, faults.Context{
			Component: "resilience",
			Operation: "send_command",
			DeviceID:  deviceID,
			Metadata:  map[string]any{"action": string(cmd.Action)},
		}, &m.cfg.Retry)
		if err == nil {
			m.markAvailable()
			return nil
		}
		m.markUnavailable()
	}

	m.enqueue(deviceID, cmd)
	return nil
}

// SubscribeTelemetry forwards a telemetry subscription to the channel.
func (m *Manager) SubscribeTelemetry(ctx context.Context, deviceID string, handler device.TelemetryHandler) error {
	if err := m.channel.SubscribeTelemetry(ctx, deviceID, handler); err != nil {
		sysErr := m.handler.Handle(faults.CategoryDeviceCommunication, faults.SeverityMedium,
			"telemetry subscription failed",
			faults.Context{Component: "resilience", Operation: "subscribe_telemetry", DeviceID: deviceID}, err)
		return sysErr
	}
	return nil
}

// GetAPIStatus returns the channel health as currently tracked.
func (m *Manager) GetAPIStatus() APIStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.api
}

// GetQueueStatus returns the offline queue's size and oldest entry age.
func (m *Manager) GetQueueStatus() QueueStatus {
	status := QueueStatus{
		Size:    m.queue.Size(),
		MaxSize: m.cfg.MaxQueueSize,
	}
	if ts, ok := m.queue.OldestTimestamp(); ok {
		status.OldestTimestamp = &ts
	}
	return status
}

// GetCacheStatus returns the read cache's size and keys.
func (m *Manager) GetCacheStatus() CacheStatus {
	return CacheStatus{
		Size: m.cache.Size(),
		Keys: m.cache.Keys(),
	}
}

// QueuedCommands returns a copy of the pending queue, oldest first.
func (m *Manager) QueuedCommands() []QueuedCommand {
	return m.queue.Snapshot()
}

func (m *Manager) enqueue(deviceID string, cmd device.Command) {
	queued, evicted := m.queue.Enqueue(deviceID, cmd, m.cfg.CommandMaxRetries)
	size := m.queue.Size()

	if evicted != nil {
		m.handler.Handle(faults.CategorySystem, faults.SeverityMedium,
			fmt.Sprintf("offline queue full, evicted oldest command %s", evicted.ID),
			faults.Context{
				Component: "resilience",
				Operation: "enqueue",
				DeviceID:  evicted.DeviceID,
				Metadata:  map[string]any{"evicted_action": string(evicted.Command.Action)},
			}, nil)
		m.recordDrop(evicted.ID, evicted.DeviceID, string(evicted.Command.Action), "queue_evicted")
	}

	m.handler.Handle(faults.CategoryCloudAPI, faults.SeverityMedium,
		fmt.Sprintf("command %q queued for offline delivery", cmd.Action),
		faults.Context{
			Component: "resilience",
			Operation: "enqueue",
			DeviceID:  deviceID,
			Metadata:  map[string]any{"command_id": queued.ID, "queue_size": size},
		}, nil)

	m.recordQueueDepth(size)
}

func (m *Manager) cachedDevice(deviceID string, lastErr error) (*device.Device, error) {
	if cached, ok := m.cache.Get(deviceKey(deviceID)); ok {
		return cached.(*device.Device).DeepCopy(), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: device %s: %w", device.ErrDeviceNotFound, deviceID, lastErr)
	}
	return nil, fmt.Errorf("%w: device %s", device.ErrDeviceNotFound, deviceID)
}

func (m *Manager) cacheInventory(devices []device.Device) {
	snapshot := make([]device.Device, len(devices))
	for i := range devices {
		snapshot[i] = *devices[i].DeepCopy()
		m.cache.Set(deviceKey(devices[i].ID), devices[i].DeepCopy())
	}
	m.cache.Set(cacheKeyDevices, snapshot)
}

// markAvailable resets failure tracking. Any success restores
// availability immediately.
func (m *Manager) markAvailable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.api.IsAvailable {
		m.logger.Info("device channel recovered")
	}
	m.api.IsAvailable = true
	m.api.ConsecutiveFailures = 0
	m.api.LastChecked = time.Now().UTC()
}

// markUnavailable flips availability off after a live operation has
// already exhausted its retries.
func (m *Manager) markUnavailable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.api.ConsecutiveFailures++
	if m.api.IsAvailable {
		m.logger.Warn("device channel marked unavailable", "consecutive_failures", m.api.ConsecutiveFailures)
	}
	m.api.IsAvailable = false
	m.api.LastChecked = time.Now().UTC()
}

// recordProbeFailure counts a probe miss. Unlike live operations, a
// single probe miss does not flip availability; the channel goes
// unavailable only once the consecutive count reaches the threshold.
func (m *Manager) recordProbeFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.api.ConsecutiveFailures++
	m.api.LastChecked = time.Now().UTC()
	if m.api.IsAvailable && m.api.ConsecutiveFailures >= m.cfg.MaxConsecutiveFailures {
		m.api.IsAvailable = false
		m.logger.Warn("device channel marked unavailable after repeated probe failures",
			"consecutive_failures", m.api.ConsecutiveFailures)
	}
}

func (m *Manager) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

// probeOnce checks channel reachability with a lightweight discovery.
func (m *Manager) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	devices, err := m.channel.Discover(probeCtx)
	if err != nil {
		m.recordProbeFailure()
		m.log().Debug("availability probe failed", "error", err)
		return
	}

	m.markAvailable()
	m.cacheInventory(devices)
}

func (m *Manager) drainLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.drainOnce(ctx)
		}
	}
}

// drainOnce replays queued commands oldest-first. The cycle stops on
// the first failure, which also re-marks the channel unavailable so the
// probe must prove recovery before the next attempt.
func (m *Manager) drainOnce(ctx context.Context) {
	m.mu.Lock()
	available := m.api.IsAvailable
	m.mu.Unlock()
	if !available || m.queue.Size() == 0 {
		return
	}

	drained := 0
	for {
		entry, ok := m.queue.Peek()
		if !ok {
			break
		}

		if err := m.channel.SendCommand(ctx, entry.DeviceID, entry.Command); err != nil {
			if dropped := m.queue.RecordFailure(entry.ID); dropped {
				m.handler.Handle(faults.CategoryDeviceCommunication, faults.SeverityHigh,
					fmt.Sprintf("queued command %s dropped after %d delivery attempts", entry.ID, entry.MaxRetries),
					faults.Context{
						Component: "resilience",
						Operation: "drain",
						DeviceID:  entry.DeviceID,
						Metadata:  map[string]any{"action": string(entry.Command.Action)},
					}, err)
				m.recordDrop(entry.ID, entry.DeviceID, string(entry.Command.Action), "retries_exhausted")
			}
			m.markUnavailable()
			break
		}

		m.queue.Remove(entry.ID)
		drained++
	}

	if drained > 0 {
		m.log().Info("offline queue drained", "delivered", drained, "remaining", m.queue.Size())
	}
	m.recordQueueDepth(m.queue.Size())
}

func (m *Manager) recordDrop(commandID, deviceID, action, cause string) {
	m.mu.Lock()
	auditor := m.auditor
	m.mu.Unlock()
	if auditor != nil {
		auditor.RecordCommandDrop(commandID, deviceID, action, cause)
	}
}

func (m *Manager) recordQueueDepth(depth int) {
	m.mu.Lock()
	metrics := m.metrics
	m.mu.Unlock()
	if metrics != nil {
		metrics.WriteQueueDepth(depth)
	}
}

func (m *Manager) log() Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}

var _ device.Channel = (*Manager)(nil)

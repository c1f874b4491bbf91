package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FleetGuard Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Overrides     OverridesConfig     `yaml:"overrides"`
	Anomaly       AnomalyConfig       `yaml:"anomaly"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings for the audit trail.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings for the device bridge.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ResilienceConfig contains the device manager's fault-tolerance settings.
type ResilienceConfig struct {
	// MaxQueueSize bounds the offline command queue. When full, the
	// oldest entry is evicted to make room.
	MaxQueueSize int `yaml:"max_queue_size"`

	// MaxConsecutiveFailures is the hysteresis threshold before the
	// API is marked unavailable.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// ProbeInterval is how often the availability probe runs (seconds).
	ProbeInterval int `yaml:"probe_interval"`

	// DrainInterval is how often the queue drainer runs (seconds).
	DrainInterval int `yaml:"drain_interval"`

	// CacheTTL is how long cached reads stay fresh (seconds).
	CacheTTL int `yaml:"cache_ttl"`

	// CommandMaxRetries is the per-queued-command retry budget.
	CommandMaxRetries int `yaml:"command_max_retries"`

	// Retry configures the exponential backoff used for channel calls.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig contains exponential backoff settings.
type RetryConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BaseDelayMs int     `yaml:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
	JitterMs    int     `yaml:"jitter_ms"`
}

// OverridesConfig contains manual override authority settings.
type OverridesConfig struct {
	// AdminUserIDs may revoke any override regardless of creator.
	AdminUserIDs []string `yaml:"admin_user_ids"`

	// DefaultDuration is the lifetime of an override when the creator
	// does not specify one (minutes). 0 means no expiry.
	DefaultDuration int `yaml:"default_duration"`

	// EmergencyShutdownDuration is the lifetime of emergency shutdown
	// overrides (minutes).
	EmergencyShutdownDuration int `yaml:"emergency_shutdown_duration"`
}

// AnomalyConfig contains anomaly safety interlock settings.
type AnomalyConfig struct {
	// ThresholdMultiplier scales a device's normal max power to derive
	// the shutoff threshold. Values at or below the threshold are normal.
	ThresholdMultiplier float64 `yaml:"threshold_multiplier"`

	// DisableWindow is the rolling window for repeated violations (hours).
	DisableWindow int `yaml:"disable_window"`

	// DisableCount is how many anomalies within the window trigger a
	// standing disable recommendation.
	DisableCount int `yaml:"disable_count"`
}

// NotificationsConfig contains user notification settings.
type NotificationsConfig struct {
	// ThrottleWindow suppresses repeat notifications for the same
	// category+component key (seconds).
	ThrottleWindow int `yaml:"throttle_window"`
}

// Load builds the runtime configuration in three layers: built-in
// defaults, the YAML file at path, then FLEETGUARD_* environment
// overrides. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults, for use without a
// config file (primarily in tests and the early startup path).
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "fleet-001",
			Name:     "FleetGuard",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/fleetguard.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fleetguard-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Resilience: ResilienceConfig{
			MaxQueueSize:           100,
			MaxConsecutiveFailures: 5,
			ProbeInterval:          60,
			DrainInterval:          60,
			CacheTTL:               300,
			CommandMaxRetries:      3,
			Retry: RetryConfig{
				MaxRetries:  3,
				BaseDelayMs: 1000,
				MaxDelayMs:  30000,
				Multiplier:  2,
				JitterMs:    100,
			},
		},
		Overrides: OverridesConfig{
			DefaultDuration:           0,
			EmergencyShutdownDuration: 60,
		},
		Anomaly: AnomalyConfig{
			ThresholdMultiplier: 1.5,
			DisableWindow:       24,
			DisableCount:        3,
		},
		Notifications: NotificationsConfig{
			ThrottleWindow: 300,
		},
	}
}

// applyEnvOverrides layers FLEETGUARD_* variables over the file
// values. Secrets (broker password, InfluxDB token) are expected to
// arrive this way rather than sitting in config.yaml.
func applyEnvOverrides(cfg *Config) {
	overrideString("FLEETGUARD_DATABASE_PATH", &cfg.Database.Path)
	overrideString("FLEETGUARD_MQTT_HOST", &cfg.MQTT.Broker.Host)
	overrideString("FLEETGUARD_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	overrideString("FLEETGUARD_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)
	overrideString("FLEETGUARD_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	overrideString("FLEETGUARD_LOG_LEVEL", &cfg.Logging.Level)
	overrideInt("FLEETGUARD_MAX_QUEUE_SIZE", &cfg.Resilience.MaxQueueSize)
}

func overrideString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate collects every configuration problem into a single error,
// so a bad deployment fails once with the full list.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Resilience.MaxQueueSize < 1 {
		errs = append(errs, "resilience.max_queue_size must be at least 1")
	}
	if c.Resilience.MaxConsecutiveFailures < 1 {
		errs = append(errs, "resilience.max_consecutive_failures must be at least 1")
	}
	if c.Resilience.Retry.Multiplier < 1 {
		errs = append(errs, "resilience.retry.multiplier must be at least 1")
	}

	// Anomaly validation: a multiplier below 1 would flag normal
	// operation as anomalous and shut devices down in a loop.
	if c.Anomaly.ThresholdMultiplier < 1 {
		errs = append(errs, "anomaly.threshold_multiplier must be at least 1")
	}
	if c.Anomaly.DisableCount < 1 {
		errs = append(errs, "anomaly.disable_count must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetProbeInterval returns the availability probe interval as a Duration.
func (c *Config) GetProbeInterval() time.Duration {
	return time.Duration(c.Resilience.ProbeInterval) * time.Second
}

// GetDrainInterval returns the queue drain interval as a Duration.
func (c *Config) GetDrainInterval() time.Duration {
	return time.Duration(c.Resilience.DrainInterval) * time.Second
}

// GetCacheTTL returns the read cache TTL as a Duration.
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Resilience.CacheTTL) * time.Second
}

// GetThrottleWindow returns the notification throttle window as a Duration.
func (c *Config) GetThrottleWindow() time.Duration {
	return time.Duration(c.Notifications.ThrottleWindow) * time.Second
}

// GetDisableWindow returns the anomaly disable window as a Duration.
func (c *Config) GetDisableWindow() time.Duration {
	return time.Duration(c.Anomaly.DisableWindow) * time.Hour
}

// GetDefaultOverrideDuration returns the default override lifetime.
// Zero means overrides do not expire unless given an explicit expiry.
func (c *Config) GetDefaultOverrideDuration() time.Duration {
	return time.Duration(c.Overrides.DefaultDuration) * time.Minute
}

// GetEmergencyShutdownDuration returns the emergency shutdown override lifetime.
func (c *Config) GetEmergencyShutdownDuration() time.Duration {
	return time.Duration(c.Overrides.EmergencyShutdownDuration) * time.Minute
}

// FleetGuard Core - Fault-Tolerant IoT Dispatch Layer
//
// This is the main entry point for the FleetGuard Core application.
// FleetGuard is the command and telemetry dispatch layer for a fleet of
// smart devices, designed for:
//   - Typed fault handling with retry and graceful degradation
//   - Offline-first operation (commands queue while the fleet is unreachable)
//   - Manual override authority over every automated decision
//   - An autonomous anomaly safety interlock
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/fleetguard-core/migrations"

	"github.com/nerrad567/fleetguard-core/internal/anomaly"
	"github.com/nerrad567/fleetguard-core/internal/audit"
	"github.com/nerrad567/fleetguard-core/internal/bridges/mqttdev"
	"github.com/nerrad567/fleetguard-core/internal/device"
	"github.com/nerrad567/fleetguard-core/internal/faults"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/database"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/logging"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleetguard-core/internal/override"
	"github.com/nerrad567/fleetguard-core/internal/resilience"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FleetGuard Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database for the audit trail
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx, migrations.Files); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Audit trail over SQLite
	auditTrail := audit.NewTrail(audit.NewSQLiteRepository(db.DB))
	auditTrail.SetLogger(log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Fault handling core: typed error handler and graceful degradation
	handler := faults.NewHandler(faults.HandlerConfig{
		ThrottleWindow: cfg.GetThrottleWindow(),
		Notifier:       &logNotifier{log: log},
	})
	handler.SetLogger(log)

	degrader := faults.NewDegrader(0, cfg.GetCacheTTL())
	degrader.SetLogger(log)

	// Manual override authority
	overrides := override.NewManager(override.Config{
		AdminUserIDs:      cfg.Overrides.AdminUserIDs,
		DefaultDuration:   cfg.GetDefaultOverrideDuration(),
		EmergencyDuration: cfg.GetEmergencyShutdownDuration(),
	})
	overrides.SetLogger(log)
	overrides.SetAuditor(auditTrail)

	// Device channel over MQTT
	bridge, err := mqttdev.NewBridge(mqttdev.Options{
		Client: mqttClient,
		QoS:    byte(cfg.MQTT.QoS),
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("creating device bridge: %w", err)
	}
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("starting device bridge: %w", err)
	}
	defer func() {
		log.Info("stopping device bridge")
		if stopErr := bridge.Stop(); stopErr != nil {
			log.Error("error stopping device bridge", "error", stopErr)
		}
	}()
	log.Info("device bridge started")

	// Resilient device manager: retry, caching, offline queue
	manager := resilience.NewManager(resilience.Config{
		MaxQueueSize:           cfg.Resilience.MaxQueueSize,
		MaxConsecutiveFailures: cfg.Resilience.MaxConsecutiveFailures,
		ProbeInterval:          cfg.GetProbeInterval(),
		DrainInterval:          cfg.GetDrainInterval(),
		CacheTTL:               cfg.GetCacheTTL(),
		CommandMaxRetries:      cfg.Resilience.CommandMaxRetries,
		Retry:                  retryConfig(cfg.Resilience.Retry),
	}, bridge, handler, degrader)
	manager.SetLogger(log)
	manager.SetOverrideAuthority(overrides)
	manager.SetAuditor(auditTrail)
	if influxClient != nil {
		manager.SetMetricsSink(influxClient)
	}
	manager.Start(ctx)
	defer func() {
		log.Info("stopping device manager")
		manager.Stop()
	}()

	// Anomaly safety interlock
	detector := anomaly.NewDetector(anomaly.Config{
		ThresholdMultiplier: cfg.Anomaly.ThresholdMultiplier,
		DisableWindow:       cfg.GetDisableWindow(),
		DisableCount:        cfg.Anomaly.DisableCount,
	}, manager, manager, handler)
	detector.SetLogger(log)
	detector.SetOverrideChecker(overrides)
	detector.SetAuditor(auditTrail)
	if influxClient != nil {
		detector.SetMetricsSink(influxClient)
	}

	// Subscribe telemetry for the known fleet and feed the interlock
	startTelemetry(ctx, manager, detector, influxClient, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Device manager
	// 2. Device bridge
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("FleetGuard Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETGUARD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETGUARD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// retryConfig converts the YAML retry settings to the faults package form.
func retryConfig(rc config.RetryConfig) faults.RetryConfig {
	return faults.RetryConfig{
		MaxRetries: rc.MaxRetries,
		BaseDelay:  time.Duration(rc.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(rc.MaxDelayMs) * time.Millisecond,
		Multiplier: rc.Multiplier,
		Jitter:     time.Duration(rc.JitterMs) * time.Millisecond,
	}
}

// startTelemetry subscribes to telemetry for every device in the current
// inventory. Power readings flow into the anomaly interlock; all readings
// are mirrored to InfluxDB when enabled.
//
// Discovery failure here is not fatal: the fleet may simply be offline at
// boot, and the availability probe keeps the inventory fresh.
func startTelemetry(ctx context.Context, manager *resilience.Manager, detector *anomaly.Detector, influx *influxdb.Client, log *logging.Logger) {
	devices, err := manager.Discover(ctx)
	if err != nil {
		log.Warn("initial device discovery failed, telemetry subscriptions deferred", "error", err)
		return
	}

	for _, dev := range devices {
		deviceID := dev.ID
		err := manager.SubscribeTelemetry(ctx, deviceID, func(r device.Reading) {
			if influx != nil {
				influx.WriteDeviceMetric(r.DeviceID, r.Metric, r.Value)
			}
			if r.Metric != "power_watts" {
				return
			}
			if _, checkErr := detector.Check(ctx, r.DeviceID, r.Value); checkErr != nil {
				log.Warn("anomaly check failed", "device_id", r.DeviceID, "error", checkErr)
			}
		})
		if err != nil {
			log.Warn("telemetry subscription failed", "device_id", deviceID, "error", err)
			continue
		}
	}
	log.Info("telemetry subscriptions established", "devices", len(devices))
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// logNotifier renders high/critical fault notifications to the log.
// A richer notification channel (email, push) can replace this without
// touching the fault handler.
type logNotifier struct {
	log *logging.Logger
}

// Notify implements faults.Notifier.
func (n *logNotifier) Notify(err *faults.SystemError) error {
	n.log.Warn("user notification",
		"category", err.Category,
		"severity", err.Severity,
		"message", err.Message,
		"device_id", err.Context.DeviceID,
	)
	return nil
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("FLEETGUARD_CONFIG")
	defer os.Setenv("FLEETGUARD_CONFIG", originalEnv)

	os.Setenv("FLEETGUARD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 60

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("FLEETGUARD_CONFIG")
	defer os.Setenv("FLEETGUARD_CONFIG", originalEnv)
	os.Setenv("FLEETGUARD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("FLEETGUARD_CONFIG")
	defer os.Setenv("FLEETGUARD_CONFIG", originalEnv)

	os.Unsetenv("FLEETGUARD_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("FLEETGUARD_CONFIG")
	defer os.Setenv("FLEETGUARD_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("FLEETGUARD_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRetryConfig verifies millisecond fields convert to durations.
func TestRetryConfig(t *testing.T) {
	rc := retryConfig(config.RetryConfig{
		MaxRetries:  3,
		BaseDelayMs: 100,
		MaxDelayMs:  5000,
		Multiplier:  2.0,
		JitterMs:    50,
	})

	if rc.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", rc.MaxRetries)
	}
	if rc.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", rc.BaseDelay)
	}
	if rc.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay = %v, want 5s", rc.MaxDelay)
	}
	if rc.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", rc.Multiplier)
	}
	if rc.Jitter != 50*time.Millisecond {
		t.Errorf("Jitter = %v, want 50ms", rc.Jitter)
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup with running services.
// Requires MQTT broker at 127.0.0.1:1883; logs instead of failing without one.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
site:
  id: test-site

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-successful-startup"
    tls: false
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("FLEETGUARD_CONFIG")
	defer os.Setenv("FLEETGUARD_CONFIG", originalEnv)
	os.Setenv("FLEETGUARD_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}

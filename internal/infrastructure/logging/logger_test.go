package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

func captureJSON(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: level, Format: "json"}
	return &Logger{Logger: slog.New(handlerFor(cfg, &buf, "test"))}, &buf
}

func TestHandlerFor_StampsServiceAndVersion(t *testing.T) {
	log, buf := captureJSON(t, "info")

	log.Info("probe cycle complete", "devices", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["service"] != "fleetguard" {
		t.Errorf("service = %v, want fleetguard", record["service"])
	}
	if record["version"] != "test" {
		t.Errorf("version = %v, want test", record["version"])
	}
	if record["msg"] != "probe cycle complete" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["devices"] != float64(3) {
		t.Errorf("devices = %v, want 3", record["devices"])
	}
}

func TestHandlerFor_LevelFilters(t *testing.T) {
	log, buf := captureJSON(t, "warn")

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("queue near capacity")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("records below warn leaked through: %q", out)
	}
	if !strings.Contains(out, "queue near capacity") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestHandlerFor_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LoggingConfig{Level: "info", Format: "text"}
	log := &Logger{Logger: slog.New(handlerFor(cfg, &buf, "test"))}

	log.Info("device registered", "device_id", "plug-01")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
	if !strings.Contains(out, "device_id=plug-01") {
		t.Errorf("text record missing attribute: %q", out)
	}
}

func TestWith_ChildCarriesComponent(t *testing.T) {
	log, buf := captureJSON(t, "info")

	child := log.With("component", "resilience")
	if child == log {
		t.Fatal("With should return a distinct logger")
	}
	child.Info("drain cycle started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["component"] != "resilience" {
		t.Errorf("component = %v, want resilience", record["component"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewAndDefault(t *testing.T) {
	if New(config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}, "1.0.0") == nil {
		t.Fatal("New returned nil")
	}
	if Default() == nil {
		t.Fatal("Default returned nil")
	}
}

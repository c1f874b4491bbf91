package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

// Logger is the process-wide structured logger: an slog.Logger with
// the service name and version stamped on every record. Subsystems
// receive children via With("component", ...), which also satisfies
// the per-package Logger interfaces across the codebase.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by the logging section of
// config.yaml: json or text records, level-filtered, to stdout or
// stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(handlerFor(cfg, destination(cfg.Output), version))}
}

// With returns a child logger carrying extra default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger for the window before config is
// loaded: json records at info level on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func destination(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func handlerFor(cfg config.LoggingConfig, w io.Writer, version string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return h.WithAttrs([]slog.Attr{
		slog.String("service", "fleetguard"),
		slog.String("version", version),
	})
}

// parseLevel accepts debug, info, warn/warning and error, in any
// case. Anything else means info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

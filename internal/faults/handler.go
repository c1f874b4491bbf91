package faults

import (
	"context"
	"sync"
	"time"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
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

// Notifier delivers user-facing notifications for serious failures.
// Message formatting is a presentation concern; implementations decide
// how a SystemError is rendered.
type Notifier interface {
	Notify(err *SystemError) error
}

// RecoveryStrategy attempts automatic recovery for a category of
// failure. Strategies are best-effort: a strategy error is logged,
// never propagated.
type RecoveryStrategy func(err *SystemError) error

// Default handler limits.
const (
	defaultMaxLogEntries  = 1000
	defaultThrottleWindow = 5 * time.Minute
)

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// MaxLogEntries caps the in-memory error log. Oldest entries are
	// evicted beyond the cap. Default: 1000.
	MaxLogEntries int

	// ThrottleWindow suppresses repeat notifications for the same
	// category+component key. Default: 5 minutes.
	ThrottleWindow time.Duration

	// Notifier receives high/critical notifications. Optional.
	Notifier Notifier
}

// Handler classifies, records, and reacts to failures.
//
// It maintains a capped in-memory error log, per-category and
// per-severity statistics, a throttled notification channel for
// high/critical errors, and optional recovery strategies for
// recoverable categories.
//
// Construct one Handler per process and pass it explicitly to every
// component that needs it; there is no package-level instance.
type Handler struct {
	mu sync.Mutex

	log        []*SystemError
	maxEntries int

	byCategory map[Category]int
	bySeverity map[Severity]int
	total      int

	notifier       Notifier
	throttleWindow time.Duration
	lastNotified   map[string]time.Time

	strategies map[Category]RecoveryStrategy

	logger Logger
}

// NewHandler creates a Handler with the given configuration.
func NewHandler(cfg HandlerConfig) *Handler {
	maxEntries := cfg.MaxLogEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxLogEntries
	}
	throttle := cfg.ThrottleWindow
	if throttle <= 0 {
		throttle = defaultThrottleWindow
	}

	return &Handler{
		maxEntries:     maxEntries,
		byCategory:     make(map[Category]int),
		bySeverity:     make(map[Severity]int),
		notifier:       cfg.Notifier,
		throttleWindow: throttle,
		lastNotified:   make(map[string]time.Time),
		strategies:     make(map[Category]RecoveryStrategy),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the handler.
func (h *Handler) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// RegisterRecovery installs a recovery strategy for a category.
// The strategy runs for recoverable, non-critical errors of that
// category during Handle.
func (h *Handler) RegisterRecovery(category Category, strategy RecoveryStrategy) {
	h.mu.Lock()
	h.strategies[category] = strategy
	h.mu.Unlock()
}

// Handle classifies a failure and records it. It always succeeds and
// returns the resulting SystemError so callers can raise it.
//
// Side effects:
//   - appends to the capped error log and updates statistics
//   - for high/critical severity, sends a throttled notification
//   - for recoverable categories below critical, invokes the
//     registered recovery strategy best-effort
func (h *Handler) Handle(category Category, severity Severity, message string, ctx Context, cause error) *SystemError {
	sysErr := New(category, severity, message, ctx, cause)

	h.mu.Lock()

	// Append with oldest-first eviction. Compact in place so the
	// backing array stays at the cap and evicted entries are released.
	h.log = append(h.log, sysErr)
	if len(h.log) > h.maxEntries {
		copy(h.log, h.log[1:])
		h.log[len(h.log)-1] = nil
		h.log = h.log[:len(h.log)-1]
	}

	h.total++
	h.byCategory[sysErr.Category]++
	h.bySeverity[sysErr.Severity]++

	notify := false
	if sysErr.Severity == SeverityHigh || sysErr.Severity == SeverityCritical {
		key := string(sysErr.Category) + ":" + sysErr.Context.Component
		now := time.Now()
		if last, ok := h.lastNotified[key]; !ok || now.Sub(last) >= h.throttleWindow {
			h.lastNotified[key] = now
			notify = true
		}
	}

	strategy := h.strategies[sysErr.Category]
	notifier := h.notifier
	logger := h.logger

	h.mu.Unlock()

	logger.Error("system error recorded",
		"id", sysErr.ID,
		"category", sysErr.Category,
		"severity", sysErr.Severity,
		"component", sysErr.Context.Component,
		"operation", sysErr.Context.Operation,
		"error", cause,
	)

	if notify && notifier != nil {
		if err := notifier.Notify(sysErr); err != nil {
			logger.Warn("error notification failed", "id", sysErr.ID, "error", err)
		}
	}

	// Best-effort recovery. Critical errors skip automatic recovery.
	if sysErr.Recoverable && sysErr.Severity != SeverityCritical && strategy != nil {
		if err := strategy(sysErr); err != nil {
			logger.Warn("recovery strategy failed",
				"id", sysErr.ID,
				"category", sysErr.Category,
				"error", err,
			)
		}
	}

	return sysErr
}

// Statistics is a point-in-time snapshot of handler state.
type Statistics struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	BySeverity map[Severity]int `json:"by_severity"`
	LogSize    int              `json:"log_size"`
}

// GetStatistics returns current error statistics.
func (h *Handler) GetStatistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := Statistics{
		Total:      h.total,
		ByCategory: make(map[Category]int, len(h.byCategory)),
		BySeverity: make(map[Severity]int, len(h.bySeverity)),
		LogSize:    len(h.log),
	}
	for k, v := range h.byCategory {
		stats.ByCategory[k] = v
	}
	for k, v := range h.bySeverity {
		stats.BySeverity[k] = v
	}

	return stats
}

// RecentErrors returns up to limit most recent errors, newest last.
func (h *Handler) RecentErrors(limit int) []*SystemError {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > len(h.log) {
		limit = len(h.log)
	}

	out := make([]*SystemError, limit)
	copy(out, h.log[len(h.log)-limit:])
	return out
}

// Execute composes RetryWithBackoff and Handle: it retries op with
// backoff, and on final failure records and returns a fully populated
// *SystemError rather than the raw cause.
//
// A nil retryCfg selects DefaultRetryConfig.
func Execute[T any](ctx context.Context, h *Handler, op func(ctx context.Context) (T, error), category Category, ectx Context, retryCfg *RetryConfig) (T, error) {
	cfg := DefaultRetryConfig()
	if retryCfg != nil {
		cfg = *retryCfg
	}

	retries := 0
	result, err := RetryWithBackoff(ctx, op, cfg, func(attempt int, _ error) {
		retries = attempt
	})
	if err == nil {
		return result, nil
	}

	sysErr := h.Handle(category, "", err.Error(), ectx, err)
	sysErr.RetryCount = retries
	sysErr.MaxRetries = cfg.MaxRetries

	var zero T
	return zero, sysErr
}

package faults

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies where in the system a failure originated.
type Category string

// Category constants.
const (
	CategoryDeviceCommunication Category = "device_communication"
	CategoryCloudAPI            Category = "cloud_api"
	CategoryAIInference         Category = "ai_inference"
	CategoryDataValidation      Category = "data_validation"
	CategoryAnomalyDetection    Category = "anomaly_detection"
	CategoryNetwork             Category = "network"
	CategoryConfiguration       Category = "configuration"
	CategorySystem              Category = "system"
)

// AllCategories returns all valid error categories.
func AllCategories() []Category {
	return []Category{
		CategoryDeviceCommunication, CategoryCloudAPI, CategoryAIInference,
		CategoryDataValidation, CategoryAnomalyDetection, CategoryNetwork,
		CategoryConfiguration, CategorySystem,
	}
}

// Severity ranks how serious a failure is.
type Severity string

// Severity constants, in ascending order of seriousness.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Context carries the operational context a failure occurred in.
type Context struct {
	Component string         `json:"component"`
	Operation string         `json:"operation"`
	DeviceID  string         `json:"device_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SystemError is a fully classified failure. It is the only error type
// the substrate raises to callers once local handling is exhausted.
type SystemError struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Cause is the wrapped original error, if any.
	Cause error `json:"-"`

	Context Context `json:"context"`

	// Retry bookkeeping: how many retries were performed before this
	// error surfaced, and what the budget was.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	// Recoverable indicates a transient category eligible for
	// automatic recovery strategies.
	Recoverable bool `json:"is_recoverable"`

	// RecoveryActions is an ordered list of hints for operators.
	RecoveryActions []string `json:"recovery_actions,omitempty"`
}

// Error implements the error interface.
func (e *SystemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Context.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Context.Component, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is/As chains.
func (e *SystemError) Unwrap() error {
	return e.Cause
}

// New creates a SystemError. If severity is empty it is inferred from
// the message and category. The context timestamp is filled in if zero.
func New(category Category, severity Severity, message string, ctx Context, cause error) *SystemError {
	if severity == "" {
		severity = InferSeverity(category, message)
	}
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now().UTC()
	}

	return &SystemError{
		ID:              "err-" + uuid.NewString()[:8],
		Category:        category,
		Severity:        severity,
		Message:         message,
		Cause:           cause,
		Context:         ctx,
		Recoverable:     IsRecoverable(category),
		RecoveryActions: recoveryActions(category),
	}
}

// IsRecoverable reports whether a category is transient and eligible
// for automatic recovery.
func IsRecoverable(category Category) bool {
	switch category {
	case CategoryDeviceCommunication, CategoryCloudAPI, CategoryNetwork:
		return true
	default:
		return false
	}
}

// InferSeverity derives a severity from message keywords when the
// caller did not classify the failure explicitly.
//
// Keyword matching is case-insensitive:
//   - critical/fatal/shutdown/emergency → critical
//   - timeout/connection/authentication/unauthorized → high
//   - device_communication, cloud_api categories → medium
//   - anything else → low
func InferSeverity(category Category, message string) Severity {
	msg := strings.ToLower(message)

	for _, kw := range []string{"critical", "fatal", "shutdown", "emergency"} {
		if strings.Contains(msg, kw) {
			return SeverityCritical
		}
	}

	for _, kw := range []string{"timeout", "connection", "authentication", "unauthorized"} {
		if strings.Contains(msg, kw) {
			return SeverityHigh
		}
	}

	if category == CategoryDeviceCommunication || category == CategoryCloudAPI {
		return SeverityMedium
	}

	return SeverityLow
}

// recoveryActions returns the ordered operator hints for a category.
func recoveryActions(category Category) []string {
	switch category {
	case CategoryDeviceCommunication:
		return []string{"retry command", "check device power", "re-register device"}
	case CategoryCloudAPI:
		return []string{"retry with backoff", "use cached state", "queue command"}
	case CategoryNetwork:
		return []string{"retry with backoff", "check connectivity"}
	case CategoryConfiguration:
		return []string{"validate configuration", "restore defaults"}
	case CategoryAnomalyDetection:
		return []string{"verify device readings", "review anomaly history"}
	default:
		return nil
	}
}

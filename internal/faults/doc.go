// Package faults is the error-handling substrate for FleetGuard Core.
//
// Every failure that crosses a component boundary in FleetGuard is
// expressed as a SystemError: a typed error carrying a category, a
// severity, full operational context, and recovery hints. The package
// also provides the two generic failure-handling primitives the rest
// of the system is built on:
//
//   - RetryWithBackoff: exponential backoff with jitter and context
//     cancellation
//   - Degrader: graceful degradation with auto-disabling feature flags
//     and a fallback value cache
//
// # Architecture
//
//	caller ──▶ Execute ──▶ RetryWithBackoff ──▶ operation
//	              │ (exhausted)
//	              ▼
//	           Handler ──▶ capped error log + statistics
//	              │
//	              ├──▶ throttled notification (high/critical)
//	              └──▶ best-effort recovery strategy (recoverable)
//
// # Usage
//
//	handler := faults.NewHandler(faults.HandlerConfig{})
//
//	devices, err := faults.Execute(ctx, handler,
//	    func(ctx context.Context) ([]device.Device, error) {
//	        return channel.Discover(ctx)
//	    },
//	    faults.CategoryCloudAPI,
//	    faults.Context{Component: "resilience", Operation: "discover"},
//	    nil, // default retry config
//	)
//
// On final failure err is a fully populated *faults.SystemError, never
// the raw cause.
//
// # Thread Safety
//
// Handler and Degrader are safe for concurrent use. SystemError values
// are immutable once returned.
package faults

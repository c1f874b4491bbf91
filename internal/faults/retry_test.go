package faults

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	op := func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient failure")
		}
		return "ok", nil
	}

	var retryAttempts []int
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}

	result, err := RetryWithBackoff(context.Background(), op, cfg, func(attempt int, _ error) {
		retryAttempts = append(retryAttempts, attempt)
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}

	if result != "ok" {
		t.Errorf("result = %q, want %q", result, "ok")
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}
	if len(retryAttempts) != 2 {
		t.Fatalf("onRetry invoked %d times, want 2", len(retryAttempts))
	}
	if retryAttempts[0] != 1 || retryAttempts[1] != 2 {
		t.Errorf("onRetry attempts = %v, want [1 2]", retryAttempts)
	}
}

func TestRetryWithBackoff_ExhaustionReturnsLastError(t *testing.T) {
	wantErr := errors.New("persistent failure")
	calls := 0
	op := func(_ context.Context) (int, error) {
		calls++
		return 0, wantErr
	}

	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}

	_, err := RetryWithBackoff(context.Background(), op, cfg, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want last operation error", err)
	}

	// 1 initial attempt + 2 retries.
	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}
}

func TestRetryWithBackoff_NoRetriesOnSuccess(t *testing.T) {
	calls := 0
	op := func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	}

	result, err := RetryWithBackoff(context.Background(), op, DefaultRetryConfig(), func(int, error) {
		t.Error("onRetry should not be invoked on first-attempt success")
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff() error = %v", err)
	}
	if result != 42 || calls != 1 {
		t.Errorf("result = %d calls = %d, want 42 and 1", result, calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	op := func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("failing")
	}

	// Cancel during the first backoff wait.
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := RetryWithBackoff(ctx, op, cfg, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1 (cancelled mid-backoff)", calls)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("cancellation took %v, should abort the backoff wait", elapsed)
	}
}

func TestRetryWithBackoff_PartialConfigStillBacksOff(t *testing.T) {
	calls := 0
	op := func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("failing")
	}

	// Only MaxRetries and BaseDelay set. MaxDelay and Multiplier must
	// fall back to their defaults rather than clamping every delay to
	// zero.
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: 20 * time.Millisecond}

	start := time.Now()
	_, err := RetryWithBackoff(context.Background(), op, cfg, nil)
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}

	// Delays of 20ms and 40ms at minimum.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("retries completed in %v, want at least 60ms of backoff", elapsed)
	}
}

func TestBackoffDelay_ExponentialGrowthAndCap(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		k    int
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 350 * time.Millisecond}, // 400ms capped
		{10, 350 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := backoffDelay(cfg, tt.k); got != tt.want {
			t.Errorf("backoffDelay(k=%d) = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: 5 * time.Millisecond}

	for i := 0; i < 50; i++ {
		got := backoffDelay(cfg, 0)
		if got < 10*time.Millisecond || got >= 15*time.Millisecond {
			t.Fatalf("backoffDelay with jitter = %v, want [10ms, 15ms)", got)
		}
	}
}

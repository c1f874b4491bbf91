package faults

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithFallback_PrimarySucceeds(t *testing.T) {
	d := NewDegrader(time.Minute, time.Minute)
	defer d.Close()

	got, err := WithFallback(context.Background(), d, "status_reads",
		func(_ context.Context) (string, error) { return "live", nil },
		func() (string, error) { return "cached", nil },
	)
	if err != nil {
		t.Fatalf("WithFallback() error = %v", err)
	}
	if got != "live" {
		t.Errorf("got %q, want primary result", got)
	}
	if d.IsDisabled("status_reads") {
		t.Error("feature should remain enabled after success")
	}
}

func TestWithFallback_FailureDisablesFeature(t *testing.T) {
	d := NewDegrader(time.Hour, time.Minute)
	defer d.Close()

	primaryCalls := 0
	primary := func(_ context.Context) (string, error) {
		primaryCalls++
		return "", errors.New("backend down")
	}
	fallback := func() (string, error) { return "cached", nil }

	got, err := WithFallback(context.Background(), d, "status_reads", primary, fallback)
	if err != nil || got != "cached" {
		t.Fatalf("WithFallback() = %q, %v, want cached fallback", got, err)
	}
	if !d.IsDisabled("status_reads") {
		t.Fatal("feature should be disabled after primary failure")
	}

	// Within the cooldown the primary is skipped entirely.
	got, err = WithFallback(context.Background(), d, "status_reads", primary, fallback)
	if err != nil || got != "cached" {
		t.Fatalf("WithFallback() = %q, %v", got, err)
	}
	if primaryCalls != 1 {
		t.Errorf("primary invoked %d times, want 1 (skipped while disabled)", primaryCalls)
	}
}

func TestDegrader_AutomaticReenable(t *testing.T) {
	d := NewDegrader(20*time.Millisecond, time.Minute)
	defer d.Close()

	d.DisableFeature("discovery")
	if !d.IsDisabled("discovery") {
		t.Fatal("feature should be disabled")
	}

	// The delayed re-enable fires on its own.
	deadline := time.Now().Add(time.Second)
	for d.IsDisabled("discovery") {
		if time.Now().After(deadline) {
			t.Fatal("feature was not re-enabled after cooldown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDegrader_FeatureIsolation(t *testing.T) {
	d := NewDegrader(time.Hour, time.Minute)
	defer d.Close()

	d.DisableFeature("discovery")

	if d.IsDisabled("status_reads") {
		t.Error("disabling one feature must not affect others")
	}
}

func TestDegrader_CachedValueRoundTrip(t *testing.T) {
	d := NewDegrader(time.Minute, time.Minute)
	defer d.Close()

	d.SetCachedValue("last_status", map[string]any{"online": true})

	got := d.GetCachedOrDefault("last_status", func() any { return "default" })
	m, ok := got.(map[string]any)
	if !ok || m["online"] != true {
		t.Errorf("GetCachedOrDefault() = %v, want stored value unchanged", got)
	}
}

func TestDegrader_CachedValueExpiry(t *testing.T) {
	d := NewDegrader(time.Minute, 10*time.Millisecond)
	defer d.Close()

	d.SetCachedValue("k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := d.CachedValue("k"); ok {
		t.Error("expired entry should be treated as absent")
	}

	got := d.GetCachedOrDefault("k", func() any { return "fallback" })
	if got != "fallback" {
		t.Errorf("GetCachedOrDefault() = %v, want fallback after expiry", got)
	}
}

func TestDegrader_CleanupExpired(t *testing.T) {
	d := NewDegrader(time.Minute, 10*time.Millisecond)
	defer d.Close()

	d.SetCachedValue("a", 1)
	d.SetCachedValue("b", 2)
	time.Sleep(20 * time.Millisecond)
	d.SetCachedValue("c", 3)

	if removed := d.CleanupExpired(); removed != 2 {
		t.Errorf("CleanupExpired() = %d, want 2", removed)
	}
	if _, ok := d.CachedValue("c"); !ok {
		t.Error("fresh entry should survive cleanup")
	}
}

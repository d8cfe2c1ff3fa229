package breaker

import (
	"testing"
	"time"
)

func TestRegistryAvailability(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	if !r.IsAvailable("anthropic") {
		t.Fatal("unknown alias should be available")
	}

	r.RecordFailure("anthropic", true, "rate limited")
	if r.IsAvailable("anthropic") {
		t.Fatal("alias should be unavailable after rate-limit failure")
	}

	r.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	if !r.IsAvailable("anthropic") {
		t.Fatal("alias should be available after cooldown elapses")
	}
}

func TestRegistryKeepsLaterDeadline(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.RecordFailure("openrouter", true, "rate limited")
	e, _ := r.Entry("openrouter")
	longDeadline := e.CooldownUntil

	r.RecordFailure("openrouter", false, "server error")
	e2, _ := r.Entry("openrouter")
	if !e2.CooldownUntil.Equal(longDeadline) {
		t.Errorf("shorter cooldown should not shorten existing deadline: got %v want %v", e2.CooldownUntil, longDeadline)
	}
}

func TestFirstAvailable(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.RecordFailure("primary", true, "rate limited")
	alias, ok := r.FirstAvailable([]string{"primary", "secondary"})
	if !ok || alias != "secondary" {
		t.Errorf("FirstAvailable = %q, %v", alias, ok)
	}

	r.RecordFailure("secondary", true, "rate limited")
	_, ok = r.FirstAvailable([]string{"primary", "secondary"})
	if ok {
		t.Error("expected no available alias")
	}
}

func TestRecordSuccessClearsCooldown(t *testing.T) {
	r := NewRegistry()
	r.RecordFailure("local", true, "rate limited")
	if r.IsAvailable("local") {
		t.Fatal("expected unavailable after failure")
	}
	r.RecordSuccess("local")
	if !r.IsAvailable("local") {
		t.Fatal("expected available after success clears cooldown")
	}
}

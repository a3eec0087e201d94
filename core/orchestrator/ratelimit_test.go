package orchestrator

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(5, 100)
	for i := 0; i < 5; i++ {
		if result := rl.Check("session-1"); !result.Allowed {
			t.Fatalf("request %d denied under limit", i)
		}
	}
}

func TestRateLimiterDeniesOverMinuteLimit(t *testing.T) {
	rl := NewRateLimiter(3, 100)
	for i := 0; i < 3; i++ {
		rl.Check("session-1")
	}
	result := rl.Check("session-1")
	if result.Allowed {
		t.Fatal("fourth request allowed over minute limit")
	}
	if result.LimitType != "minute" {
		t.Errorf("limit_type = %q, want minute", result.LimitType)
	}
	if result.Current != 3 || result.Limit != 3 {
		t.Errorf("current/limit = %d/%d, want 3/3", result.Current, result.Limit)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("retry_after = %f, want positive", result.RetryAfter)
	}
}

func TestRateLimiterDeniesOverHourLimit(t *testing.T) {
	rl := NewRateLimiter(0, 2) // minute window disabled
	rl.Check("session-1")
	rl.Check("session-1")
	result := rl.Check("session-1")
	if result.Allowed {
		t.Fatal("third request allowed over hour limit")
	}
	if result.LimitType != "hour" {
		t.Errorf("limit_type = %q, want hour", result.LimitType)
	}
}

func TestRateLimiterSessionsIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 100)
	rl.Check("session-1")
	if result := rl.Check("session-2"); !result.Allowed {
		t.Fatal("session-2 affected by session-1's budget")
	}
}

func TestRateLimiterDeniedAttemptNotCounted(t *testing.T) {
	rl := NewRateLimiter(2, 100)
	rl.Check("session-1")
	rl.Check("session-1")

	// Denials do not extend the window.
	for i := 0; i < 10; i++ {
		if rl.Check("session-1").Allowed {
			t.Fatal("request allowed over limit")
		}
	}
	result := rl.Check("session-1")
	if result.Current != 2 {
		t.Errorf("current = %d, want 2 (denials must not count)", result.Current)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, 0)
	base := time.Now()
	rl.now = func() time.Time { return base }

	rl.Check("session-1")
	rl.Check("session-1")
	if rl.Check("session-1").Allowed {
		t.Fatal("third request allowed inside window")
	}

	rl.now = func() time.Time { return base.Add(2 * time.Minute) }
	if result := rl.Check("session-1"); !result.Allowed {
		t.Fatalf("request denied after window expired: %+v", result)
	}
}

func TestRateLimiterCleanupExpired(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.Check("session-1")

	if removed := rl.CleanupExpired(); removed != 0 {
		t.Errorf("active windows pruned: %d", removed)
	}

	rl.now = func() time.Time { return base.Add(3 * time.Hour) }
	if removed := rl.CleanupExpired(); removed != 2 {
		t.Errorf("pruned %d windows, want 2", removed)
	}
}

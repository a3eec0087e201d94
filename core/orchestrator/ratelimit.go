// Rate limiting for task starts using a sliding window algorithm.
//
// Features:
//   - Per-session limits over minute and hour windows
//   - Sub-bucketed windows for accurate sliding counts
//   - Thread-safe implementation
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Rate Limit Result & Error
// =============================================================================

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool    `json:"allowed"`
	LimitType  string  `json:"limit_type,omitempty"` // "minute", "hour"
	Current    int     `json:"current"`
	Limit      int     `json:"limit"`
	RetryAfter float64 `json:"retry_after,omitempty"` // Seconds until retry allowed
}

// RateLimitedError is returned by StartTask when a session exceeds its
// start budget.
type RateLimitedError struct {
	SessionID string
	Result    *RateLimitResult
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("session %s rate limited (%s window: %d/%d, retry in %.1fs)",
		e.SessionID, e.Result.LimitType, e.Result.Current, e.Result.Limit, e.Result.RetryAfter)
}

// IsRateLimited reports whether err is a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// =============================================================================
// Sliding Window
// =============================================================================

// slidingWindow implements a sliding window counter.
// Uses sub-buckets for accurate sliding window calculation.
type slidingWindow struct {
	windowSeconds int
	bucketCount   int
	buckets       map[int64]int
}

func newSlidingWindow(windowSeconds int) *slidingWindow {
	return &slidingWindow{
		windowSeconds: windowSeconds,
		bucketCount:   10,
		buckets:       make(map[int64]int),
	}
}

func (w *slidingWindow) bucketSize() float64 {
	return float64(w.windowSeconds) / float64(w.bucketCount)
}

// record counts a request at timestamp and drops expired buckets.
func (w *slidingWindow) record(timestamp float64) {
	currentBucket := int64(timestamp / w.bucketSize())
	minBucket := currentBucket - int64(w.bucketCount)
	for b := range w.buckets {
		if b < minBucket {
			delete(w.buckets, b)
		}
	}
	w.buckets[currentBucket]++
}

// count returns the number of requests inside the window.
func (w *slidingWindow) count(timestamp float64) int {
	minBucket := int64(timestamp/w.bucketSize()) - int64(w.bucketCount)
	total := 0
	for b, c := range w.buckets {
		if b >= minBucket {
			total += c
		}
	}
	return total
}

// retryAfter estimates seconds until the oldest counted bucket expires.
func (w *slidingWindow) retryAfter(timestamp float64) float64 {
	minBucket := int64(timestamp/w.bucketSize()) - int64(w.bucketCount)
	oldest := int64(-1)
	for b := range w.buckets {
		if b >= minBucket && (oldest < 0 || b < oldest) {
			oldest = b
		}
	}
	if oldest < 0 {
		return 0
	}
	expiry := float64(oldest+1)*w.bucketSize() + float64(w.windowSeconds)
	if remaining := expiry - timestamp; remaining > 0 {
		return remaining
	}
	return 0
}

// isEmpty returns true if the window has no activity inside its span.
func (w *slidingWindow) isEmpty(timestamp float64) bool {
	return w.count(timestamp) == 0
}

// =============================================================================
// Rate Limiter
// =============================================================================

// windowKey identifies a rate limit window.
type windowKey struct {
	sessionID  string
	windowType string // "minute", "hour"
}

// RateLimiter limits task starts per session.
type RateLimiter struct {
	perMinute int
	perHour   int
	windows   map[windowKey]*slidingWindow
	now       func() time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new RateLimiter. A non-positive limit disables
// that window.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		windows:   make(map[windowKey]*slidingWindow),
		now:       time.Now,
	}
}

// Check records an attempted start and reports whether it is allowed.
// A denied attempt is not counted against the session.
func (r *RateLimiter) Check(sessionID string) *RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := float64(r.now().UnixNano()) / float64(time.Second)

	type check struct {
		windowType    string
		windowSeconds int
		limit         int
	}
	checks := []check{
		{"minute", 60, r.perMinute},
		{"hour", 3600, r.perHour},
	}

	windows := make([]*slidingWindow, len(checks))
	for i, c := range checks {
		if c.limit <= 0 {
			continue
		}
		key := windowKey{sessionID: sessionID, windowType: c.windowType}
		w, ok := r.windows[key]
		if !ok {
			w = newSlidingWindow(c.windowSeconds)
			r.windows[key] = w
		}
		windows[i] = w
		if current := w.count(timestamp); current >= c.limit {
			return &RateLimitResult{
				Allowed:    false,
				LimitType:  c.windowType,
				Current:    current,
				Limit:      c.limit,
				RetryAfter: w.retryAfter(timestamp),
			}
		}
	}

	for _, w := range windows {
		if w != nil {
			w.record(timestamp)
		}
	}
	return &RateLimitResult{Allowed: true}
}

// CleanupExpired drops windows with no recent activity.
func (r *RateLimiter) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := float64(r.now().UnixNano()) / float64(time.Second)
	removed := 0
	for key, w := range r.windows {
		if w.isEmpty(timestamp) {
			delete(r.windows, key)
			removed++
		}
	}
	return removed
}

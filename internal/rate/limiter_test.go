package rate

import (
	"testing"
	"time"
)

// TestWindowLimiterCapsPerKey verifies the cap applies per key within a
// window.
func TestWindowLimiterCapsPerKey(t *testing.T) {
	limiter := NewWindowLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("u1") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if limiter.Allow("u1") {
		t.Fatalf("request over the cap should be rejected")
	}
	if !limiter.Allow("u2") {
		t.Fatalf("a different key must not be affected")
	}
}

// TestWindowLimiterResetsAfterWindow verifies a fresh window clears the
// count.
func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	limiter := NewWindowLimiter(1, 20*time.Millisecond)

	if !limiter.Allow("u1") {
		t.Fatalf("first request should be allowed")
	}
	if limiter.Allow("u1") {
		t.Fatalf("second request in the window should be rejected")
	}
	time.Sleep(30 * time.Millisecond)
	if !limiter.Allow("u1") {
		t.Fatalf("request in a new window should be allowed")
	}
}

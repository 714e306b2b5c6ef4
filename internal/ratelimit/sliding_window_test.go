package ratelimit

import (
	"testing"
	"time"
)

func TestSlidingWindowGuard(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewSlidingWindowGuard(3, time.Minute)
	guard.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if !guard.Allow("reaction_toggle") {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	if guard.Allow("reaction_toggle") {
		t.Fatal("fourth attempt within window should be blocked")
	}
	if guard.Remaining("reaction_toggle") != 0 {
		t.Fatalf("expected zero remaining, got %d", guard.Remaining("reaction_toggle"))
	}

	// other action types are counted separately
	if !guard.Allow("rsvp") {
		t.Fatal("different action should have its own window")
	}

	// sliding the clock past the window frees the quota
	current = current.Add(61 * time.Second)
	if !guard.Allow("reaction_toggle") {
		t.Fatal("attempt after window elapsed should pass")
	}
	if guard.Remaining("reaction_toggle") != 2 {
		t.Fatalf("expected 2 remaining, got %d", guard.Remaining("reaction_toggle"))
	}
}

package signal

import (
	"testing"
	"time"
)

func TestJoinLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewJoinLimiter(60, 2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst not honoured")
	}
	if l.Allow("a") {
		t.Fatal("third join inside the burst window allowed")
	}
	if !l.Allow("b") {
		t.Fatal("limits leaked between sessions")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatal("token not refilled after one second at 60/min")
	}

	now = now.Add(2 * time.Minute)
	if n := l.Sweep(); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}
}

func TestJoinLimiterDisabled(t *testing.T) {
	l := NewJoinLimiter(0, 0, time.Minute)
	for range 100 {
		if !l.Allow("a") {
			t.Fatal("disabled limiter refused a join")
		}
	}
}

package http

import (
	stdhttp "net/http"
	"testing"
	"time"
)

func TestUserRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewUserRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("first attempts rejected")
	}
	if rl.Allow("alice") {
		t.Fatal("third attempt allowed")
	}
	if !rl.Allow("bob") {
		t.Fatal("limit shared between users")
	}
	now = now.Add(61 * time.Second)
	if !rl.Allow("alice") {
		t.Fatal("window did not slide")
	}
}

func TestJoinRateLimited(t *testing.T) {
	f := &fakeMeetings{outcome: "joined"}
	c := newClientWithLimiter(t, f, NewUserRateLimiter(1, time.Minute))
	c.login("bob")

	if w := c.do(stdhttp.MethodPost, "/api/meetings/m1/join", `{"queueId":"q1"}`); w.Code != stdhttp.StatusOK {
		t.Fatalf("first join = %d", w.Code)
	}
	if w := c.do(stdhttp.MethodPost, "/api/meetings/m1/join", `{"queueId":"q1"}`); w.Code != stdhttp.StatusTooManyRequests {
		t.Fatalf("second join = %d", w.Code)
	}
	if len(f.calls) != 1 {
		t.Fatalf("calls = %v", f.calls)
	}
}

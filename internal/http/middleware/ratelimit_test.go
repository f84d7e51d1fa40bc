package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyByUserOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip key, got %q", key)
	}
	c.Set(userIDKey, "u123")
	if key := KeyByUserOrIP()(c); key != "user:u123" {
		t.Fatalf("expected user key, got %q", key)
	}
}

func TestRateLimiter_BurstCoercionAndReuse(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	lim := rl.limiterFor("k1")
	if rl.limiterFor("k1") != lim {
		t.Fatalf("expected the same bucket")
	}
	if rl.limiterFor("k2") == lim {
		t.Fatalf("expected a separate bucket per key")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	rl.ttl = time.Nanosecond

	old := rate.NewLimiter(1, 1)
	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: old, lastSeen: time.Now().Add(-time.Hour)}
	rl.visitors["other"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = sweepEvery - 1
	rl.mu.Unlock()

	if got := rl.limiterFor("old"); got == old {
		t.Fatalf("expired bucket must be replaced")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["other"]; ok {
		t.Fatalf("idle bucket not swept")
	}
	if rl.lookups != 0 {
		t.Fatalf("lookup counter not reset: %d", rl.lookups)
	}
}

func TestRateLimiter_Handler429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0.0001, 2, KeyByUserOrIP())
	r.Use(RequestID(), Auth(""), rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	get := func(uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(HeaderUserID, uid)
		return do(r, req)
	}
	for i := 0; i < 2; i++ {
		if w := get("a"); w.Code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := get("a")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"rate_limited"`) || !strings.Contains(w.Body.String(), w.Header().Get(requestIDHeader)) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if w := get("b"); w.Code != http.StatusNoContent {
		t.Fatalf("other user must have its own bucket, got %d", w.Code)
	}
}

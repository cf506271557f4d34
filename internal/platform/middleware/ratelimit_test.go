package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serveFrom(h echo.HandlerFunc, ip string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/referrals", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return rec, h(c)
}

func TestRateLimit_RequestsWithinBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		rec, err := serveFrom(h, "192.0.2.1")
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2})(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 2; i++ {
		if _, err := serveFrom(h, "192.0.2.1"); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}

	rec, err := serveFrom(h, "192.0.2.1")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}

	if _, err := serveFrom(h, "198.51.100.7"); err != nil {
		t.Errorf("other client should have its own bucket, got %v", err)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(func(c echo.Context) error { return nil })
	for i := 0; i < 50; i++ {
		if _, err := serveFrom(h, "192.0.2.1"); err != nil {
			t.Fatalf("unexpected error with rate limiting disabled: %v", err)
		}
	}
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.lastSweep = now

	store.get("a")
	now = now.Add(30 * time.Second)
	store.get("b")
	now = now.Add(45 * time.Second)
	store.get("b")

	if _, ok := store.clients["a"]; ok {
		t.Error("expected idle client a to be evicted")
	}
	if _, ok := store.clients["b"]; !ok {
		t.Error("expected active client b to be kept")
	}
}

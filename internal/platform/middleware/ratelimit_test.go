package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
)

func limitedHandler(cfg RateLimitConfig) (echo.HandlerFunc, *echo.Echo) {
	e := echo.New()
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}), e
}

func hit(e *echo.Echo, h echo.HandlerFunc, realIP string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
	if realIP != "" {
		req.Header.Set("X-Real-IP", realIP)
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_BurstAdmitted(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	for i := 0; i < 5; i++ {
		rec, err := hit(e, h, "")
		if err != nil {
			t.Fatalf("request %d inside burst rejected: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: X-RateLimit-Limit = %q, want 10", i+1, got)
		}
	}
}

func TestRateLimit_OverBurstGets429(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})

	for i := 0; i < 2; i++ {
		if _, err := hit(e, h, ""); err != nil {
			t.Fatalf("request %d inside burst rejected: %v", i+1, err)
		}
	}

	_, err := hit(e, h, "")
	if err == nil {
		t.Fatal("expected third request to be rejected")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RejectionHeaders(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hit(e, h, ""); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}

	rec, err := hit(e, h, "")
	if err == nil {
		t.Fatal("expected second request to be rejected")
	}

	retry, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil {
		t.Fatalf("Retry-After not an integer: %q", rec.Header().Get("Retry-After"))
	}
	if retry < 1 {
		t.Errorf("Retry-After = %d, want >= 1", retry)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
}

func TestRateLimit_GatewaysIsolated(t *testing.T) {
	h, e := limitedHandler(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hit(e, h, "10.0.0.1"); err != nil {
		t.Fatalf("ward A gateway first request rejected: %v", err)
	}
	if _, err := hit(e, h, "10.0.0.1"); err == nil {
		t.Fatal("ward A gateway second request should be rejected")
	}
	// A different gateway gets its own bucket.
	if _, err := hit(e, h, "10.0.0.2"); err != nil {
		t.Fatalf("ward B gateway first request rejected: %v", err)
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 || cfg.BurstSize != 200 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestTokenBucket_ZeroRateRetryAfter(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.allow()
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("retryAfter with zero refill rate = %d, want 1", ra)
	}
}

func TestRateLimiterStore_BucketIdentity(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	a := store.getBucket("10.0.0.1")
	if a == nil {
		t.Fatal("expected a bucket")
	}
	if b := store.getBucket("10.0.0.1"); a != b {
		t.Error("same key returned a different bucket")
	}
	if c := store.getBucket("10.0.0.2"); a == c {
		t.Error("different keys share a bucket")
	}
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// invoke wraps a handler in mw and runs one request against it.
func invoke(t *testing.T, mw echo.MiddlewareFunc, h echo.HandlerFunc, mutate func(*http.Request)) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(h)(c)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	rec, err := invoke(t, RequestID(), func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return okHandler(c)
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Error("handler saw an empty request_id")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context value %q", got, seen)
	}
}

func TestRequestID_PreservesInbound(t *testing.T) {
	const inbound = "gw-7f3a"
	rec, err := invoke(t, RequestID(), func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid != inbound {
			t.Errorf("expected inbound id %q in context, got %q", inbound, rid)
		}
		return okHandler(c)
	}, func(r *http.Request) {
		r.Header.Set(RequestIDHeader, inbound)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get(RequestIDHeader); got != inbound {
		t.Errorf("expected %q echoed in response header, got %q", inbound, got)
	}
}

func TestLogger_EmitsRequestLine(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)

	if _, err := invoke(t, Logger(logger), okHandler, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := buf.String()
	for _, field := range []string{`"method":"GET"`, `"status":200`, `"message":"request"`} {
		if !strings.Contains(line, field) {
			t.Errorf("log line missing %s: %s", field, line)
		}
	}
}

func TestLogger_ErrorLevelOnHandlerError(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)

	_, err := invoke(t, Logger(logger), func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad vitals")
	}, nil)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error-level log line, got: %s", buf.String())
	}
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	logger := zerolog.New(io.Discard)

	_, err := invoke(t, Recovery(logger), func(c echo.Context) error {
		panic("corrupt submission")
	}, nil)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_LeavesNormalFlowAlone(t *testing.T) {
	logger := zerolog.New(io.Discard)

	rec, err := invoke(t, Recovery(logger), okHandler, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

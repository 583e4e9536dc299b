package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	applogger "SignalFuse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type denyAfter struct{ left int }

func (d *denyAfter) Allow(string, float64, float64) bool {
	d.left--
	return d.left >= 0
}

func serve(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRecoverReturns500(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.NewNop()))
	e.GET("/boom", func(echo.Context) error { panic("boom") })
	if rec := serve(e, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&denyAfter{left: 1}, 5, 1))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	if rec := serve(e, "/x"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := serve(e, "/x"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(&denyAfter{}, 0, 1))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	if rec := serve(e, "/x"); rec.Code != http.StatusNoContent {
		t.Fatalf("rps 0 must not limit, got %d", rec.Code)
	}
}

func TestMetricsPassesThroughErrors(t *testing.T) {
	e := echo.New()
	e.Use(Metrics(applogger.NewNop(), time.Second))
	e.GET("/fail", func(echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway) })
	if rec := serve(e, "/fail"); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 404: "4xx", 503: "5xx", 0: "5xx"} {
		if got := statusClass(code); got != want {
			t.Fatalf("%d: got %s want %s", code, got, want)
		}
	}
}

package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "SignalFuse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

var (
	httpOnce sync.Once
	httpM    *httpMetrics
)

func requestMetrics() *httpMetrics {
	httpOnce.Do(func() {
		httpM = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "signalfuse_http_requests_total",
				Help: "HTTP requests by route, method and status",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "signalfuse_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			}, []string{"route", "method", "class"}),
			inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "signalfuse_http_in_flight_requests",
				Help: "Requests being served",
			}),
			size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "signalfuse_http_response_size_bytes",
				Help:    "Response body size",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpM.requests, httpM.latency, httpM.inFlight, httpM.size)
	})
	return httpM
}

// Metrics records request metrics labelled by the route template, not the
// raw path. Server errors are logged as errors and slow requests as warnings.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := requestMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			res := c.Response()
			status := strconv.Itoa(res.Status)
			took := time.Since(start)

			m.requests.WithLabelValues(route, method, status).Inc()
			m.latency.WithLabelValues(route, method, statusClass(res.Status)).Observe(took.Seconds())
			m.size.WithLabelValues(route).Observe(float64(res.Size))

			if l == nil || (res.Status < 500 && (slow <= 0 || took < slow)) {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", took),
			}
			if res.Status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}

package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "RecessionLens/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *httpMetrics
)

func registerHTTPMetrics() *httpMetrics {
	metricsOnce.Do(func() {
		metrics = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "recession",
				Name:      "http_requests_total",
				Help:      "HTTP requests by route template, method and status.",
			}, []string{"route", "method", "status"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "recession",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "recession",
				Name:      "http_in_flight_requests",
				Help:      "Requests being served.",
			}),
			size: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "recession",
				Name:      "http_response_size_bytes",
				Help:      "HTTP response body size.",
				Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
			}, []string{"route", "class"}),
		}
	})
	return metrics
}

// Metrics records request count, latency and size per route template.
// 5xx responses are logged as errors and requests slower than slow as
// warnings; slow <= 0 disables the latter.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := registerHTTPMetrics()
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				// let echo write the error so the final status is known
				c.Error(err)
			}

			took := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			res := c.Response()
			method := c.Request().Method
			class := statusClass(res.Status)

			m.requests.WithLabelValues(route, method, strconv.Itoa(res.Status)).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, class).Observe(float64(res.Size))

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", took),
			}
			switch {
			case res.Status >= 500:
				l.Error("http request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

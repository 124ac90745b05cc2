package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts all HTTP requests with labels.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds.
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// RentPaymentsTotal counts accepted rent payments.
	RentPaymentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rentflow_rent_payments_total",
		Help: "Total number of accepted rent payments",
	})

	// EscrowPayoutsTotal counts escrow payouts by bucket.
	EscrowPayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentflow_escrow_payouts_total",
			Help: "Total number of escrow payouts",
		},
		[]string{"bucket"},
	)

	// OutboxDeliveredTotal counts delivered outbox messages by topic.
	OutboxDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentflow_outbox_delivered_total",
			Help: "Total number of delivered outbox messages",
		},
		[]string{"topic"},
	)
)

// HTTPMetrics collects request metrics for a named service.
type HTTPMetrics struct {
	ServiceName string
	registered  bool
}

// NewHTTPMetrics creates and registers the metrics collectors.
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	m := &HTTPMetrics{ServiceName: serviceName}
	m.register()
	return m
}

func (m *HTTPMetrics) register() {
	if m.registered {
		return
	}
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDurationHistogram)
	prometheus.MustRegister(RentPaymentsTotal)
	prometheus.MustRegister(EscrowPayoutsTotal)
	prometheus.MustRegister(OutboxDeliveredTotal)
	m.registered = true
}

// Middleware records request count and duration for every route.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method
			path := c.Path()

			RequestCounter.WithLabelValues(m.ServiceName, method, path, status).Inc()
			RequestDurationHistogram.WithLabelValues(m.ServiceName, method, path, status).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

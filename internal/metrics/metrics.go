package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	transitions    *prometheus.CounterVec
	sweepReleased  prometheus.Counter
	sweepErrors    prometheus.Counter
	importRows     *prometheus.CounterVec
	waitlistEvents *prometheus.CounterVec
}

func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_transitions_total",
			Help:      "Seat assignment transitions by event and outcome.",
		}, []string{"event", "outcome"}),
		sweepReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_released_total",
			Help:      "Reservations released by the expiry sweep.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweep_errors_total",
			Help:      "Items the expiry sweep failed to process.",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_import_rows_total",
			Help:      "Validated schedule import rows by result.",
		}, []string{"result"}),
		waitlistEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_entries_total",
			Help:      "Waitlist entry transitions by resulting status.",
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.httpRequests,
			m.httpDuration,
			m.transitions,
			m.sweepReleased,
			m.sweepErrors,
			m.importRows,
			m.waitlistEvents,
		)
	}

	return m
}

func (m *Metrics) Transition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) SweepDone(released, failed int) {
	if m == nil {
		return
	}
	m.sweepReleased.Add(float64(released))
	m.sweepErrors.Add(float64(failed))
}

func (m *Metrics) ImportRow(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.importRows.WithLabelValues(result).Inc()
}

func (m *Metrics) WaitlistEntry(status string) {
	if m == nil {
		return
	}
	m.waitlistEvents.WithLabelValues(status).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

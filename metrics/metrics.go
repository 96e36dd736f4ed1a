// Package metrics exposes Prometheus collectors for the HTTP layer and the
// borrowing engine.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"IT_borrowing_system/borrowing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itb"

type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.HistogramVec
	events   *prometheus.CounterVec
	fines    prometheus.Counter
	sweeps   prometheus.Counter
}

// New registers on a private registry so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "borrowing_events_total",
			Help:      "Committed borrowing domain events by type.",
		}, []string{"type"}),
		fines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fines_assessed_total",
			Help:      "Sum of fines assessed on returned devices.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_marked_total",
			Help:      "Borrowings moved to Overdue.",
		}),
	}
	reg.MustRegister(
		m.requests, m.events, m.fines, m.sweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observer counts engine events; subscribe it with Engine.Subscribe.
func (m *Metrics) Observer() borrowing.Observer {
	return func(_ context.Context, ev borrowing.Event) {
		m.events.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case borrowing.DeviceReturned, borrowing.DeviceReturnedDamaged:
			if ev.Fine > 0 {
				m.fines.Add(ev.Fine)
			}
		case borrowing.BorrowingOverdue:
			m.sweeps.Inc()
		}
	}
}

// Middleware records latency under the matched route pattern, not the raw path.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

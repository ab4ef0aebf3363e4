// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cleancity"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ReportsCreated      prometheus.Counter
	StatusTransitions   *prometheus.CounterVec
	ReportsCompleted    prometheus.Counter
	PointsAwarded       prometheus.Counter
	PartialCompletions  prometheus.Counter
	AdminsRegistered    prometheus.Counter
	EventPublishFailure prometheus.Counter
}

// New registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of requests currently being processed",
		}),
		ReportsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_created_total",
			Help:      "Reports submitted",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_status_transitions_total",
			Help:      "Committed report status transitions by target status",
		}, []string{"status"}),
		ReportsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_completed_total",
			Help:      "Reports completed for the first time",
		}),
		PointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_points_awarded_total",
			Help:      "Reward points credited to reporters",
		}),
		PartialCompletions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_completions_total",
			Help:      "Completions committed without crediting the owner",
		}),
		AdminsRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admins_registered_total",
			Help:      "Admin accounts created through a secret code",
		}),
		EventPublishFailure: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Domain events that could not be published",
		}),
	}
}

// Middleware records count, latency and in-flight requests per route
// template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

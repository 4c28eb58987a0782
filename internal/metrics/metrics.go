package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	alertsCreated       *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	sweepDuration       prometheus.Histogram
	instancesGenerated  prometheus.Counter
	jobRuns             *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		alertsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reporttrack_alerts_created_total",
			Help: "Total number of alerts recorded, by level",
		}, []string{"level"}),
		notificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reporttrack_notifications_failed_total",
			Help: "Total number of failed notification deliveries, by channel",
		}, []string{"channel"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reporttrack_sweep_duration_seconds",
			Help:    "Duration of the daily alert sweep",
			Buckets: prometheus.DefBuckets,
		}),
		instancesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "reporttrack_instances_generated_total",
			Help: "Total number of report instances created by the recurrence generator",
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reporttrack_job_runs_total",
			Help: "Scheduled job executions, by job and outcome",
		}, []string{"job", "outcome"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reporttrack_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reporttrack_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) AlertCreated(level string) {
	if m == nil {
		return
	}
	m.alertsCreated.WithLabelValues(level).Inc()
}

func (m *Metrics) NotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) InstancesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.instancesGenerated.Add(float64(n))
}

func (m *Metrics) JobRun(job string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package telemetry exposes the engine's own Prometheus metrics.
//
// Every Metrics value owns its registry so several monitors can coexist in
// one process (tests do this). All recording methods are safe on a nil
// *Metrics and then do nothing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentwatch"

// Metrics holds the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	metricsRecorded prometheus.Counter
	alertsCreated   *prometheus.CounterVec
	alertsResolved  prometheus.Counter
	alertsPruned    prometheus.Counter
	escalations     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	sourcePolls     *prometheus.CounterVec
	passDuration    *prometheus.HistogramVec
	agents          prometheus.Gauge
	activeAlerts    prometheus.Gauge
	averageScore    prometheus.Gauge
}

// New returns Metrics registered on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		metricsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_recorded_total",
			Help:      "Health metric values recorded.",
		}),
		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts raised, by severity.",
		}, []string{"severity"}),
		alertsResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts resolved manually or automatically.",
		}),
		alertsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_pruned_total",
			Help:      "Alerts removed by the retention window.",
		}),
		escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_escalations_total",
			Help:      "Alert escalations, by target level.",
		}, []string{"level"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts, by channel and result.",
		}, []string{"channel", "result"}),
		sourcePolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_polls_total",
			Help:      "Metric source polls, by source and result.",
		}, []string{"source", "result"}),
		passDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of health-check and alert-check passes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"pass"}),
		agents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Agents with a health snapshot.",
		}),
		activeAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Unresolved alerts.",
		}),
		averageScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_health_score",
			Help:      "Mean health score across agents.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) MetricRecorded() {
	if m != nil {
		m.metricsRecorded.Inc()
	}
}

func (m *Metrics) AlertCreated(severity string) {
	if m != nil {
		m.alertsCreated.WithLabelValues(severity).Inc()
	}
}

func (m *Metrics) AlertsResolved(n int) {
	if m != nil {
		m.alertsResolved.Add(float64(n))
	}
}

func (m *Metrics) AlertsPruned(n int) {
	if m != nil {
		m.alertsPruned.Add(float64(n))
	}
}

func (m *Metrics) Escalated(level string) {
	if m != nil {
		m.escalations.WithLabelValues(level).Inc()
	}
}

// Notification records one delivery attempt; err == nil counts as "sent".
func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(channel, result).Inc()
}

// SourcePoll records one collection attempt for source.
func (m *Metrics) SourcePoll(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sourcePolls.WithLabelValues(source, result).Inc()
}

// ObservePass records how long a pass named pass took since start.
func (m *Metrics) ObservePass(pass string, start time.Time) {
	if m != nil {
		m.passDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	}
}

// SetState publishes the fleet gauges.
func (m *Metrics) SetState(agents, activeAlerts int, averageScore float64) {
	if m == nil {
		return
	}
	m.agents.Set(float64(agents))
	m.activeAlerts.Set(float64(activeAlerts))
	m.averageScore.Set(averageScore)
}

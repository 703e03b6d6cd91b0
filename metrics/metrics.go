package metrics

import (
	"net/http"
	"time"

	"modsecmon/auditlog"
	"modsecmon/reputation"
	"modsecmon/verdict"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modsecmon"

// Metrics holds every collector of the monitor. It implements verdict.Observer and reputation.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	providerQueries  *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	auditLines       prometheus.Counter
	auditRecords     *prometheus.CounterVec
	auditLastRun     prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Verdicts issued, by verdict and reason.",
		}, []string{"verdict", "reason"}),
		decisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time taken to reach a verdict.",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"reason"}),
		providerQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_queries_total",
			Help:      "Reputation provider queries, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_query_duration_seconds",
			Help:      "Reputation provider query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		auditLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_lines_total",
			Help:      "Non-blank audit log lines read.",
		}),
		auditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_transactions_total",
			Help:      "Audit log transactions, by result (emitted or dropped).",
		}, []string{"result"}),
		auditLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_last_run_timestamp_seconds",
			Help:      "Unix time of the last completed audit log pass.",
		}),
	}

	m.Registry.MustRegister(
		m.decisions,
		m.decisionDuration,
		m.providerQueries,
		m.providerDuration,
		m.auditLines,
		m.auditRecords,
		m.auditLastRun,
	)
	return m
}

// DecisionMade records one verdict.
func (m *Metrics) DecisionMade(v verdict.Verdict, r verdict.Reason, elapsed time.Duration) {
	m.decisions.WithLabelValues(string(v), string(r)).Inc()
	m.decisionDuration.WithLabelValues(string(r)).Observe(elapsed.Seconds())
}

// QueryDone records one provider query.
func (m *Metrics) QueryDone(provider string, outcome reputation.Outcome, elapsed time.Duration) {
	m.providerQueries.WithLabelValues(provider, string(outcome)).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// AuditPassDone records the stats of one audit log pass.
func (m *Metrics) AuditPassDone(stats auditlog.Stats, at time.Time) {
	m.auditLines.Add(float64(stats.Lines))
	m.auditRecords.WithLabelValues("emitted").Add(float64(stats.Emitted))
	m.auditRecords.WithLabelValues("dropped").Add(float64(stats.Dropped))
	m.auditLastRun.Set(float64(at.Unix()))
}

// WriteTextfile dumps the registry in the node_exporter textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's collectors. It implements chain.Observer and medals.SyncObserver.
type Registry struct {
	registry         *prometheus.Registry
	submissionsTotal *prometheus.CounterVec
	confirmSeconds   *prometheus.HistogramVec
	syncRunsTotal    *prometheus.CounterVec
	syncAccounts     *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	dlqDepth         prometheus.Gauge
}

func New() *Registry {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medalchain_tx_submissions_total",
		Help: "Transactions submitted, by call kind and final outcome",
	}, []string{"kind", "outcome"})

	confirm := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medalchain_tx_confirmation_seconds",
		Help:    "Time from submission to a resolved outcome",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"kind"})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medalchain_sync_runs_total",
		Help: "Medal sync sweeps, by result",
	}, []string{"result"})

	syncAccounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medalchain_sync_accounts_total",
		Help: "Accounts reconciled by the medal sync, by result",
	}, []string{"result"})

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "medalchain_privileged_requests_total",
		Help: "Distribute and mint requests, by route and status",
	}, []string{"route", "status"})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "medalchain_dlq_depth",
		Help: "Number of unresolved submissions in the DLQ",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, confirm, syncRuns, syncAccounts, requests, dlq)

	return &Registry{
		registry:         r,
		submissionsTotal: submissions,
		confirmSeconds:   confirm,
		syncRunsTotal:    syncRuns,
		syncAccounts:     syncAccounts,
		requestsTotal:    requests,
		dlqDepth:         dlq,
	}
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Registry) ObserveSubmission(kind, outcome string, elapsed time.Duration) {
	m.submissionsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome != "failed" {
		m.confirmSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

func (m *Registry) ObserveSync(synced, failed int, _ time.Duration) {
	result := "ok"
	if failed > 0 {
		result = "partial"
	}
	m.syncRunsTotal.WithLabelValues(result).Inc()
	m.syncAccounts.WithLabelValues("synced").Add(float64(synced))
	m.syncAccounts.WithLabelValues("failed").Add(float64(failed))
}

func (m *Registry) IncRequest(route, status string) {
	m.requestsTotal.WithLabelValues(route, status).Inc()
}

func (m *Registry) SetDLQDepth(depth int) {
	m.dlqDepth.Set(float64(depth))
}

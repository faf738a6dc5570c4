// Package metrics exposes Prometheus collectors for ledger activity.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors.
type Metrics struct {
	registry *prometheus.Registry

	expensePostings     *prometheus.CounterVec
	pairWrites          *prometheus.CounterVec
	settlementRuns      *prometheus.CounterVec
	settlementTransfers *prometheus.CounterVec
	searchDuration      prometheus.Histogram
	searchOutcomes      *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry, along with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		expensePostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      ExpensePostingsTotal,
			Help:      "Expenses applied to or reversed from the ledger.",
		}, []string{LabelOperation}),
		pairWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      PairWritesTotal,
			Help:      "Pairwise balance records created, updated or deleted.",
		}, []string{LabelAction}),
		settlementRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      SettlementRunsTotal,
			Help:      "Settlement simplification runs.",
		}, []string{LabelAlgorithm}),
		settlementTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      SettlementTransfersTotal,
			Help:      "Settlement transfers produced.",
		}, []string{LabelAlgorithm}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      SearchDurationSeconds,
			Help:      "Duration of the exhaustive minimum transfer count search.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		searchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      SearchOutcomesTotal,
			Help:      "Outcomes of the exhaustive minimum transfer count search.",
		}, []string{LabelOutcome}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      HTTPRequestsTotal,
			Help:      "HTTP requests served by the metrics endpoint.",
		}, []string{LabelPath, LabelStatus}),
	}

	reg.MustRegister(
		m.expensePostings,
		m.pairWrites,
		m.settlementRuns,
		m.settlementTransfers,
		m.searchDuration,
		m.searchOutcomes,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordExpensePosting records an expense applied to or reversed from the ledger.
func (m *Metrics) RecordExpensePosting(operation string) {
	if m == nil {
		return
	}
	m.expensePostings.WithLabelValues(operation).Inc()
}

// RecordPairWrite records a create, update or delete of a pair record.
func (m *Metrics) RecordPairWrite(action string) {
	if m == nil {
		return
	}
	m.pairWrites.WithLabelValues(action).Inc()
}

// RecordSettlementRun records a persisted simplification and its transfer count.
func (m *Metrics) RecordSettlementRun(algorithm string, transfers int) {
	if m == nil {
		return
	}
	m.settlementRuns.WithLabelValues(algorithm).Inc()
	m.settlementTransfers.WithLabelValues(algorithm).Add(float64(transfers))
}

// RecordSearch records one exhaustive search.
func (m *Metrics) RecordSearch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchOutcomes.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records a request served over HTTP.
func (m *Metrics) RecordHTTPRequest(path string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_risk_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	RecordsExtracted *prometheus.CounterVec // labels: source={cases,population,geometry}
	IntegrityErrors  prometheus.Counter
	UnknownRates     prometheus.Counter
	FeaturesJoined   *prometheus.GaugeVec   // labels: state={matched,unmatched}
	SinkErrors       *prometheus.CounterVec // labels: sink

	// Fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,retry,error,cache_hit,stale}
	FetchDuration prometheus.Histogram

	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge
	LatestReportDate prometheus.Gauge
}

// NewMetrics creates all pipeline metrics on a dedicated registry, which is
// what gets pushed to the Pushgateway at the end of a run.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.RecordsExtracted,
		m.IntegrityErrors,
		m.UnknownRates,
		m.FeaturesJoined,
		m.SinkErrors,
		m.FetchRequests,
		m.FetchDuration,
		m.RunDuration,
		m.LastSuccess,
		m.LatestReportDate,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// Gatherer returns the registry holding these metrics, or nil when unregistered.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry == nil {
		return nil
	}
	return m.registry
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Rows or features read from each input.",
		}, []string{"source"}),
		IntegrityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integrity_errors_total",
			Help:      "Runs aborted because a case series failed validation.",
		}),
		UnknownRates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_rates_total",
			Help:      "Rate records left unknown for lack of a population match.",
		}),
		FeaturesJoined: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_joined",
			Help:      "Boundary features in the last output, by whether data matched.",
		}, []string{"state"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Output sink failures.",
		}, []string{"sink"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Dataset fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single dataset download.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote every sink.",
		}),
		LatestReportDate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_report_date_seconds",
			Help:      "Unix time of the newest report date in the case dataset.",
		}),
	}
}

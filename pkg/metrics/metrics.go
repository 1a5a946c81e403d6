// Package metrics defines the Prometheus collectors for a pipeline run and
// pushes them to a Pushgateway when one is configured, the usual pattern
// for batch jobs that exist too briefly to be scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	registry *prometheus.Registry

	RowsReadTotal     *prometheus.CounterVec
	RowsWrittenTotal  *prometheus.CounterVec
	RowsDroppedTotal  *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	MatchScore        prometheus.Histogram
	StatesProcessed   prometheus.Counter
	StateDurationSecs *prometheus.HistogramVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RowsReadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rows_read_total",
				Help: "Source rows read per state.",
			},
			[]string{"state"},
		),
		RowsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rows_written_total",
				Help: "Canonical rows written per state.",
			},
			[]string{"state"},
		),
		RowsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rows_dropped_total",
				Help: "Rows removed per state by reason (filter_values, null, filter_join, dedupe, reviewed_drop).",
			},
			[]string{"state", "reason"},
		),
		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_matches_total",
				Help: "Name-match outcomes by result type (exact, fuzzy, none).",
			},
			[]string{"result_type"},
		),
		MatchScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_match_score",
				Help:    "Combined harmonic-mean scores of accepted matches.",
				Buckets: []float64{0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
			},
		),
		StatesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_states_processed_total",
				Help: "State files fully processed.",
			},
		),
		StateDurationSecs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_state_duration_seconds",
				Help:    "Wall time spent processing each state file.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(
		m.RowsReadTotal,
		m.RowsWrittenTotal,
		m.RowsDroppedTotal,
		m.MatchesTotal,
		m.MatchScore,
		m.StatesProcessed,
		m.StateDurationSecs,
	)
	return m
}

// Push delivers the run's collectors to the Pushgateway under the given
// job name. No-op when url is empty.
func (m *Metrics) Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.registry).Push()
}

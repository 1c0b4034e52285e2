package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	visitsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_visits_recorded_total",
		Help: "Access events persisted by the visit recorder",
	})

	conversionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_conversions_recorded_total",
		Help: "Conversion entries by outcome (created, duplicate)",
	}, []string{"outcome"})

	ordinalConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_ordinal_conflicts_total",
		Help: "Lost compare-and-swap attempts during ordinal allocation",
	})

	matcherMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_matcher_results_total",
		Help: "Attribution matcher outcomes (matched, unmatched)",
	}, []string{"outcome"})

	aggregationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_aggregation_runs_total",
		Help: "Recompute runs by trigger and status",
	}, []string{"trigger", "status"})

	aggregationBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "funnel_aggregation_last_buckets",
		Help: "Buckets written by the most recent successful recompute",
	})
)

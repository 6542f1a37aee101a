package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HSPAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_hsp_api_calls_total",
			Help: "Total HSP API calls",
		},
		[]string{"endpoint", "status"},
	)

	HSPAPIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_hsp_api_retries_total",
			Help: "Total HSP API retry sleeps",
		},
		[]string{"endpoint"},
	)

	HSPAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "railscore_hsp_api_latency_seconds",
			Help:    "HSP API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_events_ingested_total",
			Help: "Canonical service events inserted, by source",
		},
		[]string{"source"},
	)

	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_events_skipped_total",
			Help: "Feed records skipped during normalization, by source and reason",
		},
		[]string{"source", "reason"},
	)

	AggregateRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "railscore_daily_slot_agg_rows",
			Help: "Daily slot aggregate rows in range after the last rollup run",
		},
	)

	MetricRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_metric_rows_written_total",
			Help: "Slot metric rows upserted, by model version",
		},
		[]string{"model_version"},
	)

	ReliabilityQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railscore_reliability_queries_total",
			Help: "Reliability API queries, by outcome",
		},
		[]string{"outcome"},
	)
)

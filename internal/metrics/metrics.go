package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_ingest_rows_total",
			Help: "Rows seen per source and pipeline stage",
		},
		[]string{"source", "stage"},
	)

	SourceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_ingest_source_runs_total",
			Help: "Source runs by final status",
		},
		[]string{"source", "status"},
	)

	SourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "h1b_ingest_source_duration_seconds",
			Help:    "Duration of one source run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"source"},
	)

	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_ingest_page_fetches_total",
			Help: "HTML page fetches by outcome",
		},
		[]string{"source", "status"},
	)
)

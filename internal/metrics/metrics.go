// Package metrics exposes the ingestion pipeline's operational counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_jobs_started_total", Help: "Ingestion jobs created"},
	)
	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_jobs_completed_total", Help: "Ingestion jobs finished successfully"},
	)
	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_jobs_failed_total", Help: "Ingestion jobs that ended in failure"},
	)
	LinesRead = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_lines_total", Help: "Non-empty log lines read"},
	)
	ParseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_parse_failures_total", Help: "Lines rejected by the parser"},
	)
	EntriesPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "socapp_ingest_entries_persisted_total", Help: "Log entries written to the sink"},
	)
	Anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "socapp_anomalies_total", Help: "Anomalous entries by kind"},
		[]string{"kind"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		JobsStarted, JobsCompleted, JobsFailed,
		LinesRead, ParseFailures, EntriesPersisted, Anomalies,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

// Package metrics declares the Prometheus collectors of the index, sync hooks and search API.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var IndexWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "personae",
	Subsystem: "index",
	Name:      "writes_total",
	Help:      "Index write operations by operation and result.",
}, []string{"op", "result"})

var CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "personae",
	Subsystem: "index",
	Name:      "commit_duration_seconds",
	Help:      "Time spent committing index batches.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

var SyncFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "personae",
	Subsystem: "sync",
	Name:      "failures_total",
	Help:      "Index sync failures suppressed after a committed record mutation.",
}, []string{"op"})

var Queries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "personae",
	Subsystem: "search",
	Name:      "queries_total",
	Help:      "Search queries by type and result.",
}, []string{"type", "result"})

var QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "personae",
	Subsystem: "search",
	Name:      "query_duration_seconds",
	Help:      "Search query latency by type.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
}, []string{"type"})

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{IndexWrites, CommitDuration, SyncFailures, Queries, QueryDuration}
}

// Register registers all collectors with reg. Collectors already registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Result maps an error to a result label value.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

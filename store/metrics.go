package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commit outcomes.
const (
	outcomeCommitted = "committed"
	outcomeEmpty     = "empty"
	outcomeConflict  = "conflict"
	outcomeError     = "error"
)

// Conflict resolution results.
const (
	resultResolved     = "resolved"
	resultUnresolvable = "unresolvable"
)

type metrics struct {
	commits        *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

// newMetrics registers the store's collectors with reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zqueue_commits_total",
			Help: "Transaction commits by outcome",
		}, []string{"outcome"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zqueue_conflicts_total",
			Help: "Write conflicts by resolution result",
		}, []string{"result"}),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "zqueue_commit_duration_seconds",
			Help:    "Time spent committing transactions",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

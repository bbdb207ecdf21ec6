// Package metrics exposes Prometheus counters for sync runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "studiosync"

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync runs by calendar, kind and outcome.",
		},
		[]string{"calendar", "kind", "outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"calendar", "kind"},
	)

	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_writes_total",
			Help:      "Record mutations committed, by operation.",
		},
		[]string{"calendar", "op"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Write batches committed to the store.",
		},
		[]string{"calendar"},
	)

	tokenInvalidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_token_invalid_total",
			Help:      "Incremental runs whose checkpoint was rejected.",
		},
		[]string{"calendar"},
	)

	webhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Push notifications received, by resource state.",
		},
		[]string{"state"},
	)
)

// Run kinds.
const (
	KindIncremental = "incremental"
	KindFull        = "full"
)

// ObserveRun records one finished run.
func ObserveRun(calendar, kind string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	runsTotal.WithLabelValues(calendar, kind, outcome).Inc()
	runDuration.WithLabelValues(calendar, kind).Observe(time.Since(started).Seconds())
}

// AddWrites counts committed upserts and deletions.
func AddWrites(calendar string, upserts, deletes int) {
	writesTotal.WithLabelValues(calendar, "upsert").Add(float64(upserts))
	writesTotal.WithLabelValues(calendar, "delete").Add(float64(deletes))
}

// BatchCommitted counts one committed batch.
func BatchCommitted(calendar string) {
	batchesTotal.WithLabelValues(calendar).Inc()
}

// TokenInvalid counts a rejected checkpoint.
func TokenInvalid(calendar string) {
	tokenInvalidTotal.WithLabelValues(calendar).Inc()
}

// Webhook counts a push notification.
func Webhook(state string) {
	webhooksTotal.WithLabelValues(state).Inc()
}

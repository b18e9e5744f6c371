// Package handle implements the per-connection control layer over a SQLite
// style storage engine. A Handle owns one engine connection and layers
// statement pooling and caching, flat and savepoint-nested transactions,
// named notification channels (performance trace, SQL trace, step brackets,
// busy retry, checkpoint and commit), and an error gate which routes engine
// failures through an ignorable-code stack before reporting them. Handles
// are single-goroutine objects; only Interrupt may be called concurrently.
package handle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystone_statement_steps_total",
		Help: "Total number of statement step results, by status.",
	}, []string{"status"})
	busyRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keystone_busy_retries_total",
		Help: "Total number of statement steps retried after a busy or locked result.",
	})
	engineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystone_engine_errors_total",
		Help: "Total number of engine failures, by reporting outcome (reported or suppressed).",
	}, []string{"outcome"})
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystone_transactions_total",
		Help: "Total number of transaction control operations, by operation.",
	}, []string{"operation"})
	checkpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keystone_checkpoints_total",
		Help: "Total number of write-ahead log checkpoints, by mode.",
	}, []string{"mode"})
	statementDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "keystone_statement_duration_seconds",
		Help: "Duration of completed statement execution cycles.",
	})
)

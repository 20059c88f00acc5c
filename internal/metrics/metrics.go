package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace for all eventos metrics
const namespace = "eventos"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// AuthorizationDecisions counts policy decisions by mode and outcome (allowed, denied)
var AuthorizationDecisions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of access policy decisions",
	},
	[]string{"mode", "outcome"},
)

// MediaAttached counts media records stored per class
var MediaAttached = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_attached_total",
		Help:      "Total number of media items attached to events",
	},
	[]string{"class"},
)

// MediaRejected counts staged files refused by the validator, labelled by the failing field
var MediaRejected = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_rejected_total",
		Help:      "Total number of staged media files rejected by validation",
	},
	[]string{"class", "reason"},
)

// MediaDetached counts media records removed per class
var MediaDetached = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_detached_total",
		Help:      "Total number of media items detached from events",
	},
	[]string{"class"},
)

// MediaRollbackFiles counts files deleted while rolling back a failed attach
var MediaRollbackFiles = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_rollback_files_total",
		Help:      "Total number of staged or promoted files deleted during rollback",
	},
)

// GrantWrites counts grant rows written by reconciliation (op: update, append)
var GrantWrites = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grant_writes_total",
		Help:      "Total number of permission grant rows written",
	},
	[]string{"op"},
)

// GrantConflicts counts reconciliations rejected because grants changed concurrently
var GrantConflicts = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grant_conflicts_total",
		Help:      "Total number of grant reconciliations lost to a concurrent writer",
	},
)

// OperationDuration records lifecycle operation latency
var OperationDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Event lifecycle operation duration in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	},
	[]string{"operation", "outcome"},
)

var initOnce sync.Once

// Init registers runtime collectors and sets AppInfo. Safe to call more than once.
func Init(version, commit, buildDate string) {
	initOnce.Do(func() {
		// Register default Go metrics (memory, goroutines, GC, etc.)
		Registry.MustRegister(collectors.NewGoCollector())

		// Register process metrics (CPU, memory, file descriptors)
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// ObserveOperation records the duration of an operation started at start.
//
//	start := time.Now()
//	defer func() { metrics.ObserveOperation("set_status", start, err) }()
func ObserveOperation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OperationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// Push sends the registry to a Prometheus Pushgateway. The CLI runs one operation per
// process, so metrics are pushed on exit instead of scraped.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}

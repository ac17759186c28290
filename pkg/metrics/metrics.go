// Package metrics defines the Prometheus instrumentation exposed at
// /metrics, grounded on the teacher's go.mod use of
// github.com/prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ruleforge_sessions_active",
		Help: "Number of sessions currently not in a terminal state.",
	})

	SessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruleforge_sessions_evicted_total",
		Help: "Total number of sessions evicted by the eviction policy.",
	})

	JobsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ruleforge_jobs_queued",
		Help: "Number of jobs currently queued across all sessions.",
	})

	JobsAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleforge_jobs_admitted_total",
		Help: "Total number of admission decisions, labeled by outcome reason.",
	}, []string{"reason"})

	EvaluateSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ruleforge_evaluate_seconds",
		Help:    "Latency of completed evaluate operations.",
		Buckets: prometheus.DefBuckets,
	})

	EngineFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ruleforge_engine_faults_total",
		Help: "Total number of engine faults observed across all sessions.",
	})
)

// AdmissionReason labels used with JobsAdmittedTotal.
const (
	ReasonAdmitted   = "admitted"
	ReasonNotFound   = "not_found"
	ReasonQueueFull  = "queue_full"
	ReasonOverloaded = "overloaded"
	ReasonInUse      = "in_use"
	ReasonTerminating = "terminating"
)

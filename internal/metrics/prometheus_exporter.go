package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decision metrics
	SchedulingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "scheduling_decisions_total",
		Help:      "Total scheduling decisions by outcome",
	}, []string{"outcome"}) // "placed", "infeasible"

	SchedulingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skippy",
		Name:      "scheduling_duration_seconds",
		Help:      "Time to produce a scheduling decision for one pod, from sampling through commit",
		Buckets:   prometheus.DefBuckets,
	})

	FeasibleNodesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skippy",
		Name:      "feasible_nodes_found",
		Help:      "Number of nodes that passed the predicate stage per scheduling call",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	NodesSampledTotal = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skippy",
		Name:      "nodes_sampled",
		Help:      "Number of nodes visited during predicate sampling per scheduling call, bounded by NumFeasibleNodesToFind",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	// Priority scoring metrics
	PriorityScoreSum = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "priority_score_sum",
		Help:      "Running sum of each priority's weighted reduced score across winning nodes, for tracking which priority actually drives placements",
	}, []string{"priority"})

	PredicateRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "predicate_rejections_total",
		Help:      "Total node/pod pairs rejected by a predicate",
	}, []string{"predicate"})

	// Cursor / fairness metrics
	SchedulerCursorPosition = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skippy",
		Name:      "scheduler_cursor_position",
		Help:      "Current round-robin node index the scheduler will resume sampling from",
	})

	// Image pull metrics
	NeededImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "needed_images_total",
		Help:      "Total container images reported as needing a pull on the chosen node",
	}, []string{"locality"}) // "edge", "cloud"

	ImagePullBytesEstimated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "image_pull_bytes_estimated_total",
		Help:      "Estimated bytes that must be pulled to the chosen node, summed across scheduling calls",
	}, []string{"arch"})

	// Inventory / cluster context metrics
	ClusterNodeCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skippy",
		Name:      "cluster_node_count",
		Help:      "Total number of nodes known to the cluster context",
	}, []string{"locality"})

	InventoryRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "inventory_refresh_total",
		Help:      "Total cluster-context inventory refreshes by backend and result",
	}, []string{"backend", "result"}) // result: "ok", "error"

	InventoryRefreshDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skippy",
		Name:      "inventory_refresh_duration_seconds",
		Help:      "Time taken to refresh the cluster context inventory",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	ProgrammerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "programmer_errors_total",
		Help:      "Total unrecoverable invariant violations recovered at the API boundary (missing bandwidth edge, image with no size for any architecture)",
	}, []string{"source"})

	// Audit log metrics
	AuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "audit_writes_total",
		Help:      "Total placement audit records written, by result",
	}, []string{"result"}) // "ok", "error"

	// Explain (advisory) metrics
	ExplainRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skippy",
		Name:      "explain_requests_total",
		Help:      "Total advisory explanation requests by result",
	}, []string{"result"}) // "ok", "error", "timeout"

	ExplainLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skippy",
		Name:      "explain_latency_seconds",
		Help:      "Latency of advisory explanation requests",
		Buckets:   prometheus.DefBuckets,
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "din_monitor"

var (
	StakingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "staking_operations_total",
		Help:      "Count of staking ledger operations by type and result",
	}, []string{"type", "result"})

	SlashOperations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slash_operations_total",
		Help:      "Count of slashes that deducted a non-zero amount",
	})

	// SlashedAmount is a float approximation of the deducted base units.
	SlashedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slashed_amount_total",
		Help:      "Sum of slashed amounts in the smallest currency unit",
	})

	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "violations_total",
		Help:      "Count of recorded violations by type and severity",
	}, []string{"type", "severity"})

	RecordMetrics = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "record_metrics",
		Help:      "Histogram for time to record one performance sample",
		Buckets:   prometheus.DefBuckets,
	})

	CollectMetrics = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "collect_metrics",
		Help:      "Histogram for time to fetch telemetry from an operator endpoint",
		Buckets:   prometheus.DefBuckets,
	})

	BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_published_total",
		Help:      "Count of messages delivered by the bus by topic",
	}, []string{"topic"})

	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_total",
		Help:      "Count of messages dropped by the bus by reason",
	}, []string{"reason"})

	OutboxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_failures_total",
		Help:      "Count of auto-slash tasks that exhausted their retries",
	})
)

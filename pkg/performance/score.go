package performance

import (
	"math"

	"github.com/din-network/din-monitor/pkg/types"
)

const (
	// ThroughputTarget is the throughput at which the throughput sub-score saturates.
	ThroughputTarget = 13_000_000_000

	successRateWeight = 0.4
	latencyWeight     = 0.3
	throughputWeight  = 0.2
	uptimeWeight      = 0.1

	// latency sub-score loses one point per 10ms above 250ms
	latencyTarget      = 250
	latencyMsPerPoint  = 10
	latencyCriticalMs  = 500
	successRateMinimum = 99
	successRateFloor   = 95
	uptimeMinimum      = 99.9
	uptimeFloor        = 99
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// CalculateScore returns the weighted performance score in [0, 100].
func CalculateScore(metrics *types.PerformanceMetrics) float64 {
	successRate := clamp(metrics.SuccessRate, 0, 100)
	latency := clamp(100-(metrics.P95Latency-latencyTarget)/latencyMsPerPoint, 0, 100)
	throughput := clamp(metrics.Throughput/ThroughputTarget*100, 0, 100)
	uptime := clamp(metrics.Uptime, 0, 100)

	score := successRate*successRateWeight +
		latency*latencyWeight +
		throughput*throughputWeight +
		uptime*uptimeWeight
	if math.IsNaN(score) {
		return 0
	}
	return clamp(score, 0, 100)
}

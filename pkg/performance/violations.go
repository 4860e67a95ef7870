package performance

import (
	"fmt"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/google/uuid"
)

// violationNamespace scopes the ids derived from sample keys.
var violationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://din.network/violations"))

type rule string

const (
	ruleSuccessRate rule = "success-rate"
	ruleLatency     rule = "p95-latency"
	ruleThroughput  rule = "throughput"
	ruleUptime      rule = "uptime"
)

// violationID is stable for a given sample and rule, so a replayed sample
// produces the same violations.
func violationID(sampleKey string, r rule) string {
	return uuid.NewSHA1(violationNamespace, []byte(sampleKey+"#"+string(r))).String()
}

// DetectViolations evaluates every threshold independently.
func DetectViolations(sampleKey string, metrics *types.PerformanceMetrics) []types.Violation {
	var violations []types.Violation

	add := func(r rule, t types.ViolationType, severity types.Severity, description string) {
		violations = append(violations, types.Violation{
			ID:          violationID(sampleKey, r),
			Type:        t,
			Timestamp:   metrics.Timestamp,
			Severity:    severity,
			Description: description,
		})
	}

	if metrics.SuccessRate < successRateMinimum {
		severity := types.SeverityHigh
		if metrics.SuccessRate < successRateFloor {
			severity = types.SeverityCritical
		}
		add(ruleSuccessRate, types.ViolationPerformanceThreshold, severity,
			fmt.Sprintf("success rate %.2f%% below %d%%", metrics.SuccessRate, successRateMinimum))
	}

	if metrics.P95Latency > latencyTarget {
		severity := types.SeverityHigh
		if metrics.P95Latency > latencyCriticalMs {
			severity = types.SeverityCritical
		}
		add(ruleLatency, types.ViolationPerformanceThreshold, severity,
			fmt.Sprintf("p95 latency %.0fms above %dms", metrics.P95Latency, latencyTarget))
	}

	if metrics.Throughput < ThroughputTarget {
		add(ruleThroughput, types.ViolationPerformanceThreshold, types.SeverityMedium,
			fmt.Sprintf("throughput %.0f below %d", metrics.Throughput, int64(ThroughputTarget)))
	}

	if metrics.Uptime < uptimeMinimum {
		severity := types.SeverityHigh
		if metrics.Uptime < uptimeFloor {
			severity = types.SeverityCritical
		}
		add(ruleUptime, types.ViolationDowntime, severity,
			fmt.Sprintf("uptime %.2f%% below %.1f%%", metrics.Uptime, uptimeMinimum))
	}

	return violations
}

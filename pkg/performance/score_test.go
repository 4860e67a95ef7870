package performance

import (
	"math"
	"testing"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCalculateScore(t *testing.T) {
	tests := []struct {
		name    string
		metrics types.PerformanceMetrics
		want    float64
	}{
		{
			name:    "all sub-scores saturate",
			metrics: types.PerformanceMetrics{SuccessRate: 100, P95Latency: 100, Throughput: 13_000_000_000, Uptime: 100},
			want:    100,
		},
		{
			name:    "clamps to zero",
			metrics: types.PerformanceMetrics{SuccessRate: 0, P95Latency: 2000, Throughput: 0, Uptime: 0},
			want:    0,
		},
		{
			name:    "slow but not saturated latency",
			metrics: types.PerformanceMetrics{SuccessRate: 0, P95Latency: 1000, Throughput: 0, Uptime: 0},
			want:    0.3 * 25,
		},
		{
			name:    "latency 300ms",
			metrics: types.PerformanceMetrics{SuccessRate: 100, P95Latency: 300, Throughput: 13_000_000_000, Uptime: 100},
			want:    98.5,
		},
		{
			name:    "latency 375ms",
			metrics: types.PerformanceMetrics{SuccessRate: 100, P95Latency: 375, Throughput: 13_000_000_000, Uptime: 100},
			want:    96.25,
		},
		{
			name:    "latency 500ms",
			metrics: types.PerformanceMetrics{SuccessRate: 100, P95Latency: 500, Throughput: 13_000_000_000, Uptime: 100},
			want:    92.5,
		},
		{
			name:    "throughput above target",
			metrics: types.PerformanceMetrics{SuccessRate: 50, P95Latency: 250, Throughput: 26_000_000_000, Uptime: 50},
			want:    20 + 30 + 20 + 5,
		},
		{
			name:    "degraded operator",
			metrics: types.PerformanceMetrics{SuccessRate: 94, P95Latency: 600, Throughput: 1, Uptime: 98},
			want:    37.6 + 0.3*65 + 9.8,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, CalculateScore(&tc.metrics), 1e-6)
		})
	}
}

func TestCalculateScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("score stays within [0, 100]", prop.ForAll(
		func(successRate, latency, throughput, uptime float64) bool {
			score := CalculateScore(&types.PerformanceMetrics{
				SuccessRate: successRate,
				P95Latency:  latency,
				Throughput:  throughput,
				Uptime:      uptime,
			})
			return score >= 0 && score <= 100 && !math.IsNaN(score)
		},
		gen.Float64Range(-50, 200),
		gen.Float64Range(-1000, 10_000),
		gen.Float64Range(-1e10, 1e11),
		gen.Float64Range(-50, 200),
	))

	properties.TestingRun(t)
}

func TestDetectViolations(t *testing.T) {
	tests := []struct {
		name    string
		metrics types.PerformanceMetrics
		want    []types.Severity
		kinds   []types.ViolationType
	}{
		{
			name:    "healthy",
			metrics: types.PerformanceMetrics{SuccessRate: 99.5, P95Latency: 200, Throughput: 13_000_000_000, Uptime: 99.95},
		},
		{
			name:    "high severities",
			metrics: types.PerformanceMetrics{SuccessRate: 97, P95Latency: 400, Throughput: 13_000_000_000, Uptime: 99.5},
			want:    []types.Severity{types.SeverityHigh, types.SeverityHigh, types.SeverityHigh},
			kinds:   []types.ViolationType{types.ViolationPerformanceThreshold, types.ViolationPerformanceThreshold, types.ViolationDowntime},
		},
		{
			name:    "critical severities",
			metrics: types.PerformanceMetrics{SuccessRate: 94, P95Latency: 600, Throughput: 1, Uptime: 98},
			want:    []types.Severity{types.SeverityCritical, types.SeverityCritical, types.SeverityMedium, types.SeverityCritical},
			kinds: []types.ViolationType{
				types.ViolationPerformanceThreshold,
				types.ViolationPerformanceThreshold,
				types.ViolationPerformanceThreshold,
				types.ViolationDowntime,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := DetectViolations("op1/svc/1", &tc.metrics)
			require.Len(t, violations, len(tc.want))
			for i, v := range violations {
				require.Equal(t, tc.want[i], v.Severity)
				require.Equal(t, tc.kinds[i], v.Type)
				require.NoError(t, v.Validate())
			}
		})
	}
}

func TestViolationIDsAreDeterministic(t *testing.T) {
	metrics := &types.PerformanceMetrics{SuccessRate: 90, P95Latency: 600, Throughput: 1, Uptime: 90}

	first := DetectViolations("op1/svc/1", metrics)
	second := DetectViolations("op1/svc/1", metrics)
	other := DetectViolations("op1/svc/2", metrics)

	seen := make(map[string]struct{})
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.NotEqual(t, first[i].ID, other[i].ID)
		seen[first[i].ID] = struct{}{}
	}
	require.Len(t, seen, len(first))
}

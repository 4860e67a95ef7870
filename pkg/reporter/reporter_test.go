package reporter

import (
	"context"
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticMetrics map[types.OperatorID]types.PerformanceMetrics

func (m staticMetrics) GetLatestMetrics(id types.OperatorID) (*types.PerformanceMetrics, bool) {
	sample, ok := m[id]
	if !ok {
		return nil, false
	}
	return &sample, true
}

func setupReporter(t *testing.T) (*Reporter, *registry.Registry) {
	ctx := context.Background()
	reg := registry.New(store.NewMemoryStore(), zap.NewNop())

	for _, id := range []types.OperatorID{"op1", "op2", "op3"} {
		_, err := reg.Register(ctx, id, "")
		require.NoError(t, err)
	}

	_, err := reg.Update(ctx, "op2", func(op *types.Operator) ([]*types.StakingEvent, error) {
		op.PerformanceScore = 40
		op.AppendViolations(
			types.Violation{ID: "v1", Type: types.ViolationDowntime, Severity: types.SeverityCritical, Timestamp: now.Add(-10 * time.Minute)},
			types.Violation{ID: "v2", Type: types.ViolationPerformanceThreshold, Severity: types.SeverityMedium, Timestamp: now.Add(-time.Hour)},
		)
		return nil, nil
	})
	require.NoError(t, err)

	_, err = reg.Update(ctx, "op3", func(op *types.Operator) ([]*types.StakingEvent, error) {
		op.StakedAmount = types.MinStake
		op.PerformanceScore = 90
		return nil, nil
	})
	require.NoError(t, err)

	samples := staticMetrics{"op3": {ServiceID: "svc", SuccessRate: 99.5, Timestamp: now}}
	return NewReporter(reg, samples, testScorer(), zap.NewNop().Sugar()), reg
}

func TestGetOperatorsReport(t *testing.T) {
	reporter, _ := setupReporter(t)

	reports, err := reporter.GetOperatorsReport(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 3)

	ids := []types.OperatorID{reports[0].OperatorID, reports[1].OperatorID, reports[2].OperatorID}
	require.Equal(t, []types.OperatorID{"op1", "op3", "op2"}, ids)

	require.False(t, reports[0].Active)
	require.True(t, reports[1].Active)
	require.NotNil(t, reports[1].LatestMetrics)
	require.Equal(t, 99.5, reports[1].LatestMetrics.SuccessRate)

	op2 := reports[2]
	require.Equal(t, uint64(1), op2.ViolationCounts[types.SeverityCritical])
	require.Equal(t, uint64(1), op2.ViolationCounts[types.SeverityMedium])
	require.Equal(t, now.Add(-10*time.Minute), *op2.LastViolationTime)
	require.InDelta(t, 63.21, op2.ReputationScore, 0.01)
	require.Equal(t, float64(100), reports[0].ReputationScore)
}

func TestGetOperatorReport(t *testing.T) {
	reporter, _ := setupReporter(t)

	report, err := reporter.GetOperatorReport(context.Background(), "op2")
	require.NoError(t, err)
	require.Equal(t, float64(40), report.PerformanceScore)
	require.Nil(t, report.LatestMetrics)

	_, err = reporter.GetOperatorReport(context.Background(), "missing")
	require.ErrorIs(t, err, types.ErrUnknownOperator)
}

func TestGetViolationStats(t *testing.T) {
	reporter, _ := setupReporter(t)

	stats, err := reporter.GetViolationStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.Total)
	require.Equal(t, uint64(1), stats.ByType[types.ViolationDowntime])
	require.Equal(t, uint64(1), stats.ByType[types.ViolationPerformanceThreshold])
	require.Equal(t, uint64(1), stats.BySeverity[types.SeverityCritical])
}

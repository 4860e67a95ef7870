package reporter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/types"
	"go.uber.org/zap"
)

// MetricsSource serves the sampled history the performance monitor keeps.
type MetricsSource interface {
	GetLatestMetrics(id types.OperatorID) (*types.PerformanceMetrics, bool)
}

// OperatorReport summarizes one operator for the status page and the API.
type OperatorReport struct {
	OperatorID        types.OperatorID          `json:"operatorId"`
	WalletAddress     string                    `json:"walletAddress"`
	StakedAmount      types.Amount              `json:"stakedAmount"`
	PerformanceScore  float64                   `json:"performanceScore"`
	ReputationScore   float64                   `json:"reputationScore"`
	Active            bool                      `json:"active"`
	ViolationCounts   map[types.Severity]uint64 `json:"violationCounts"`
	LatestMetrics     *types.PerformanceMetrics `json:"latestMetrics,omitempty"`
	LastViolationTime *time.Time                `json:"lastViolationTime,omitempty"`
}

type ViolationStats struct {
	Total      uint64                         `json:"total"`
	ByType     map[types.ViolationType]uint64 `json:"byType"`
	BySeverity map[types.Severity]uint64      `json:"bySeverity"`
}

// Reporter that the monitor can use to generate reports over the registered operators.
type Reporter struct {
	registry *registry.Registry
	metrics  MetricsSource
	scorer   *Scorer
	logger   *zap.SugaredLogger
}

func NewReporter(registry *registry.Registry, metrics MetricsSource, scorer *Scorer, logger *zap.SugaredLogger) *Reporter {
	return &Reporter{
		registry: registry,
		metrics:  metrics,
		scorer:   scorer,
		logger:   logger,
	}
}

///
/// Reports per operator
///

func (reporter *Reporter) report(operator *types.Operator) *OperatorReport {
	report := &OperatorReport{
		OperatorID:       operator.ID,
		WalletAddress:    operator.WalletAddress,
		StakedAmount:     operator.StakedAmount,
		PerformanceScore: operator.PerformanceScore,
		ReputationScore:  reporter.scorer.ComputeReputationScore(operator.Violations),
		Active:           operator.IsActive(),
		ViolationCounts:  make(map[types.Severity]uint64),
	}
	for i := range operator.Violations {
		v := &operator.Violations[i]
		report.ViolationCounts[v.Severity]++
		if report.LastViolationTime == nil || v.Timestamp.After(*report.LastViolationTime) {
			ts := v.Timestamp
			report.LastViolationTime = &ts
		}
	}
	if reporter.metrics != nil {
		if latest, ok := reporter.metrics.GetLatestMetrics(operator.ID); ok {
			report.LatestMetrics = latest
		}
	}
	return report
}

func (reporter *Reporter) GetOperatorReport(ctx context.Context, id types.OperatorID) (*OperatorReport, error) {
	operator, err := reporter.registry.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	return reporter.report(operator), nil
}

///
/// Reports
///

// GetOperatorsReport returns one report per operator, best performance score first.
func (reporter *Reporter) GetOperatorsReport(ctx context.Context) ([]*OperatorReport, error) {
	operators, err := reporter.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get operators from store: %v", err)
	}

	reports := make([]*OperatorReport, 0, len(operators))
	for _, operator := range operators {
		reports = append(reports, reporter.report(operator))
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].PerformanceScore != reports[j].PerformanceScore {
			return reports[i].PerformanceScore > reports[j].PerformanceScore
		}
		return reports[i].OperatorID < reports[j].OperatorID
	})
	return reports, nil
}

func (reporter *Reporter) GetViolationStats(ctx context.Context) (*ViolationStats, error) {
	operators, err := reporter.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get operators from store: %v", err)
	}

	stats := &ViolationStats{
		ByType:     make(map[types.ViolationType]uint64),
		BySeverity: make(map[types.Severity]uint64),
	}
	for _, operator := range operators {
		for _, v := range operator.Violations {
			stats.Total++
			stats.ByType[v.Type]++
			stats.BySeverity[v.Severity]++
		}
	}
	reporter.logger.Debugw("computed violation stats", "operators", len(operators), "total", stats.Total)
	return stats, nil
}

package reporter

import (
	"math"
	"time"

	"github.com/din-network/din-monitor/pkg/types"
	"go.uber.org/zap"
)

// DefaultDecay controls how fast the reputation score recovers, per minute.
const DefaultDecay = 0.1

type Scorer struct {
	lambda float64
	now    func() time.Time

	logger *zap.SugaredLogger
}

func NewScorer(logger *zap.SugaredLogger) *Scorer {
	return &Scorer{
		lambda: DefaultDecay,
		now:    time.Now,
		logger: logger,
	}
}

func (scorer *Scorer) WithClock(now func() time.Time) *Scorer {
	scorer.now = now
	return scorer
}

///
/// Scoring functions
///

// ComputeTimeWeightedScore computes a score based on the minutes since the most recent violation.
func (scorer *Scorer) ComputeTimeWeightedScore(violations []types.Violation) float64 {
	if len(violations) == 0 {
		return 100
	}

	mostRecent := violations[0].Timestamp
	for _, v := range violations[1:] {
		if v.Timestamp.After(mostRecent) {
			mostRecent = v.Timestamp
		}
	}

	minutes := scorer.now().Sub(mostRecent).Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return 100 * (1 - math.Exp(-scorer.lambda*minutes))
}

// ComputeReputationScore computes a score based on the violation history of the operator.
func (scorer *Scorer) ComputeReputationScore(violations []types.Violation) float64 {
	return scorer.ComputeTimeWeightedScore(violations)
}

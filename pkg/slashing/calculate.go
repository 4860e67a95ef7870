package slashing

import (
	"github.com/din-network/din-monitor/pkg/types"
)

const (
	badDataPercent          = 5
	misbehaviorPercent      = 10
	thresholdPercentPerHour = 2
)

// violationPercent returns the share of the stake one violation costs, capped at 100.
func violationPercent(v *types.Violation) uint64 {
	var pct uint64
	switch v.Type {
	case types.ViolationDowntime:
		pct = v.Duration()
	case types.ViolationBadData:
		pct = badDataPercent
	case types.ViolationMisbehavior:
		pct = misbehaviorPercent
	case types.ViolationPerformanceThreshold:
		minutes := v.Duration()
		hours := minutes / 60
		if minutes%60 != 0 {
			hours++
		}
		if hours > 50 {
			hours = 50
		}
		pct = thresholdPercentPerHour * hours
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// CalculateSlash sums the contribution of every violation against the current
// stake and caps the total at half of it.
func CalculateSlash(operator *types.Operator, violations []types.Violation) types.Amount {
	stake := operator.StakedAmount
	limit := stake.DivUint64(2)

	var total types.Amount
	for i := range violations {
		total = total.Add(stake.Percent(violationPercent(&violations[i])))
		if !total.Lt(limit) {
			return limit
		}
	}
	return total
}

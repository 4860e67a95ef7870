package store

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/din-network/din-monitor/pkg/types"
)

// OperatorToOperatorEntry converts an operator to its row, violations are stored separately.
func OperatorToOperatorEntry(operator *types.Operator) *OperatorEntry {
	entry := &OperatorEntry{
		OperatorID:       operator.ID,
		WalletAddress:    operator.WalletAddress,
		StakedAmount:     operator.StakedAmount.String(),
		PerformanceScore: operator.PerformanceScore,
		RegisteredAt:     operator.RegisteredAt,
	}
	if operator.LastPerformanceCheck != nil {
		entry.LastPerformanceCheck = sql.NullTime{Time: *operator.LastPerformanceCheck, Valid: true}
	}
	return entry
}

// OperatorEntryToOperator converts a row and its violation rows back into an operator.
func OperatorEntryToOperator(entry *OperatorEntry, violations []*ViolationEntry) (*types.Operator, error) {
	staked, err := types.AmountFromString(entry.StakedAmount)
	if err != nil {
		return nil, fmt.Errorf("could not decode stake of operator %s: %v", entry.OperatorID, err)
	}

	operator := &types.Operator{
		ID:               entry.OperatorID,
		WalletAddress:    entry.WalletAddress,
		StakedAmount:     staked,
		PerformanceScore: entry.PerformanceScore,
		Violations:       make([]types.Violation, 0, len(violations)),
		RegisteredAt:     entry.RegisteredAt,
	}
	if entry.LastPerformanceCheck.Valid {
		t := entry.LastPerformanceCheck.Time
		operator.LastPerformanceCheck = &t
	}
	for _, v := range violations {
		operator.Violations = append(operator.Violations, ViolationEntryToViolation(v))
	}
	return operator, nil
}

func ViolationToViolationEntry(operatorID types.OperatorID, violation *types.Violation) (*ViolationEntry, error) {
	if violation.ID == "" {
		return nil, fmt.Errorf("violation of operator %s has no id", operatorID)
	}
	entry := &ViolationEntry{
		ID:          violation.ID,
		OperatorID:  operatorID,
		Type:        string(violation.Type),
		Timestamp:   violation.Timestamp,
		Severity:    string(violation.Severity),
		Description: violation.Description,
	}
	if violation.DurationMinutes != nil {
		if *violation.DurationMinutes > math.MaxInt64 {
			return nil, fmt.Errorf("violation %s duration out of range", violation.ID)
		}
		entry.DurationMinutes = sql.NullInt64{Int64: int64(*violation.DurationMinutes), Valid: true}
	}
	return entry, nil
}

func ViolationEntryToViolation(entry *ViolationEntry) types.Violation {
	violation := types.Violation{
		ID:          entry.ID,
		Type:        types.ViolationType(entry.Type),
		Timestamp:   entry.Timestamp,
		Severity:    types.Severity(entry.Severity),
		Description: entry.Description,
	}
	if entry.DurationMinutes.Valid && entry.DurationMinutes.Int64 >= 0 {
		violation.DurationMinutes = types.MinutesPtr(uint64(entry.DurationMinutes.Int64))
	}
	return violation
}

func StakingEventToStakingEventEntry(event *types.StakingEvent) *StakingEventEntry {
	entry := &StakingEventEntry{
		OperatorID: event.OperatorID,
		Type:       string(event.Type),
		Amount:     event.Amount.String(),
		Timestamp:  event.Timestamp,
	}
	if event.Reason != "" {
		entry.Reason = sql.NullString{String: event.Reason, Valid: true}
	}
	return entry
}

func StakingEventEntryToStakingEvent(entry *StakingEventEntry) (*types.StakingEvent, error) {
	amount, err := types.AmountFromString(entry.Amount)
	if err != nil {
		return nil, fmt.Errorf("could not decode staking event %d amount: %v", entry.ID, err)
	}
	return &types.StakingEvent{
		OperatorID: entry.OperatorID,
		Type:       types.StakingEventType(entry.Type),
		Amount:     amount,
		Timestamp:  entry.Timestamp,
		Reason:     entry.Reason.String,
	}, nil
}

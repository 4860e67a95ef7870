package store

import (
	"context"

	"github.com/din-network/din-monitor/pkg/types"
)

// Storer persists operator records and the staking event log. Implementations
// never hand out pointers to their internal state.
type Storer interface {
	// CreateOperator fails with types.ErrDuplicateOperator when the id exists.
	CreateOperator(context.Context, *types.Operator) error
	// GetOperator returns nil with no error when the operator is absent.
	GetOperator(context.Context, types.OperatorID) (*types.Operator, error)
	GetOperators(context.Context) ([]*types.Operator, error)
	// UpdateOperator writes the record together with the given staking events.
	UpdateOperator(context.Context, *types.Operator, ...*types.StakingEvent) error
	GetStakingEvents(context.Context, types.OperatorID) ([]*types.StakingEvent, error)
	Close() error
}

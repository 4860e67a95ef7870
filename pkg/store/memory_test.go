package store

import (
	"context"
	"errors"
	"testing"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreOperators(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateOperator(ctx, &types.Operator{ID: "op1", PerformanceScore: 100}))
	require.NoError(t, s.CreateOperator(ctx, &types.Operator{ID: "op2", PerformanceScore: 100}))

	err := s.CreateOperator(ctx, &types.Operator{ID: "op1"})
	require.True(t, errors.Is(err, types.ErrDuplicateOperator))

	missing, err := s.GetOperator(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	op, err := s.GetOperator(ctx, "op1")
	require.NoError(t, err)
	op.StakedAmount = types.AmountFromUint64(5)

	// Mutating a returned record does not leak into the store.
	stored, err := s.GetOperator(ctx, "op1")
	require.NoError(t, err)
	require.True(t, stored.StakedAmount.IsZero())

	event := &types.StakingEvent{OperatorID: "op1", Type: types.StakingEventStake, Amount: op.StakedAmount}
	require.NoError(t, s.UpdateOperator(ctx, op, event))

	stored, err = s.GetOperator(ctx, "op1")
	require.NoError(t, err)
	require.Equal(t, "5", stored.StakedAmount.String())

	events, err := s.GetStakingEvents(ctx, "op1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	operators, err := s.GetOperators(ctx)
	require.NoError(t, err)
	require.Len(t, operators, 2)
	require.Equal(t, "op1", operators[0].ID)

	err = s.UpdateOperator(ctx, &types.Operator{ID: "ghost"})
	require.True(t, errors.Is(err, types.ErrUnknownOperator))
}

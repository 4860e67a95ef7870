package staking

import (
	"context"
	"time"

	"github.com/din-network/din-monitor/pkg/metrics"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type RegistrationRequest struct {
	OperatorID    types.OperatorID `json:"operatorId"`
	WalletAddress string           `json:"walletAddress"`
	InitialStake  *types.Amount    `json:"initialStake,omitempty"`
}

type Ledger struct {
	registry *registry.Registry
	logger   *zap.Logger
	minStake types.Amount
	now      func() time.Time
}

func New(registry *registry.Registry, zapLogger *zap.Logger) *Ledger {
	return &Ledger{
		registry: registry,
		logger:   zapLogger,
		minStake: types.MinStake,
		now:      time.Now,
	}
}

func (l *Ledger) WithMinStake(minStake types.Amount) *Ledger {
	l.minStake = minStake
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) MinStake() types.Amount {
	return l.minStake
}

// Register creates the operator and, when the initial stake meets the minimum,
// stakes it. A smaller initial stake is ignored.
func (l *Ledger) Register(ctx context.Context, req RegistrationRequest) (*types.Operator, error) {
	logger := l.logger.Sugar()

	operator, err := l.registry.Register(ctx, req.OperatorID, req.WalletAddress)
	if err != nil {
		return nil, err
	}

	if req.InitialStake == nil || req.InitialStake.IsZero() {
		return operator, nil
	}
	if req.InitialStake.Lt(l.minStake) {
		logger.Warnw("ignoring initial stake below minimum", "operator", req.OperatorID, "amount", req.InitialStake, "minimum", l.minStake)
		return operator, nil
	}

	return l.Stake(ctx, req.OperatorID, *req.InitialStake)
}

func (l *Ledger) Stake(ctx context.Context, id types.OperatorID, amount types.Amount) (*types.Operator, error) {
	logger := l.logger.Sugar()

	operator, err := l.registry.Update(ctx, id, func(operator *types.Operator) ([]*types.StakingEvent, error) {
		if amount.Lt(l.minStake) {
			return nil, errors.Wrapf(types.ErrBelowMinimumStake, "operator %s staking %s", id, amount)
		}
		operator.StakedAmount = operator.StakedAmount.Add(amount)
		return []*types.StakingEvent{{
			OperatorID: id,
			Type:       types.StakingEventStake,
			Amount:     amount,
			Timestamp:  l.now().UTC(),
		}}, nil
	})
	if err != nil {
		metrics.StakingOperations.WithLabelValues(string(types.StakingEventStake), "error").Inc()
		return nil, err
	}
	metrics.StakingOperations.WithLabelValues(string(types.StakingEventStake), "ok").Inc()
	logger.Infow("staked", "operator", id, "amount", amount, "total", operator.StakedAmount)

	return operator, nil
}

func (l *Ledger) Unstake(ctx context.Context, id types.OperatorID, amount types.Amount) (*types.Operator, error) {
	logger := l.logger.Sugar()

	operator, err := l.registry.Update(ctx, id, func(operator *types.Operator) ([]*types.StakingEvent, error) {
		if amount.Gt(operator.StakedAmount) {
			return nil, errors.Wrapf(types.ErrInsufficientStake, "operator %s unstaking %s of %s", id, amount, operator.StakedAmount)
		}
		operator.StakedAmount = operator.StakedAmount.Sub(amount)
		return []*types.StakingEvent{{
			OperatorID: id,
			Type:       types.StakingEventUnstake,
			Amount:     amount,
			Timestamp:  l.now().UTC(),
		}}, nil
	})
	if err != nil {
		metrics.StakingOperations.WithLabelValues(string(types.StakingEventUnstake), "error").Inc()
		return nil, err
	}
	metrics.StakingOperations.WithLabelValues(string(types.StakingEventUnstake), "ok").Inc()
	logger.Infow("unstaked", "operator", id, "amount", amount, "total", operator.StakedAmount)

	return operator, nil
}

func (l *Ledger) GetTotalStaked(ctx context.Context) (types.Amount, error) {
	return l.registry.TotalStaked(ctx)
}

// GetEvents returns the staking events of a registered operator.
func (l *Ledger) GetEvents(ctx context.Context, id types.OperatorID) ([]*types.StakingEvent, error) {
	if _, err := l.registry.MustGet(ctx, id); err != nil {
		return nil, err
	}
	return l.registry.Events(ctx, id)
}

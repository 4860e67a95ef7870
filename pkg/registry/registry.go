// Package registry holds the canonical record of every operator. All writers go
// through Update so there is a single path for mutating operator state.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Registry struct {
	store  store.Storer
	logger *zap.Logger
	now    func() time.Time

	locks sync.Map // operator id -> *sync.Mutex
}

func New(store store.Storer, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) lockFor(id types.OperatorID) *sync.Mutex {
	lock, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// NormalizeWalletAddress returns the checksummed form of hex addresses and the
// input unchanged otherwise.
func NormalizeWalletAddress(address string) string {
	if common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return address
}

func (r *Registry) Register(ctx context.Context, id types.OperatorID, walletAddress string) (*types.Operator, error) {
	logger := r.logger.Sugar()

	operator := &types.Operator{
		ID:               id,
		WalletAddress:    NormalizeWalletAddress(walletAddress),
		PerformanceScore: 100,
		Violations:       []types.Violation{},
		RegisteredAt:     r.now().UTC(),
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.GetOperator(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(types.ErrDuplicateOperator, "operator %s", id)
	}

	err = r.store.CreateOperator(ctx, operator)
	if err != nil {
		return nil, err
	}
	logger.Infow("registered operator", "operator", id, "wallet", operator.WalletAddress)

	return operator.Copy(), nil
}

func (r *Registry) Get(ctx context.Context, id types.OperatorID) (*types.Operator, error) {
	return r.store.GetOperator(ctx, id)
}

// MustGet is Get with an absent operator reported as types.ErrUnknownOperator.
func (r *Registry) MustGet(ctx context.Context, id types.OperatorID) (*types.Operator, error) {
	operator, err := r.store.GetOperator(ctx, id)
	if err != nil {
		return nil, err
	}
	if operator == nil {
		return nil, errors.Wrapf(types.ErrUnknownOperator, "operator %s", id)
	}
	return operator, nil
}

// Update loads the operator under its lock, applies fn to a copy and persists the
// result together with the events fn returns. Nothing is written when fn fails.
func (r *Registry) Update(ctx context.Context, id types.OperatorID, fn func(*types.Operator) ([]*types.StakingEvent, error)) (*types.Operator, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	operator, err := r.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := fn(operator)
	if err != nil {
		return nil, err
	}

	err = r.store.UpdateOperator(ctx, operator, events...)
	if err != nil {
		return nil, err
	}
	return operator, nil
}

// Events returns the staking event log of the operator, oldest first.
func (r *Registry) Events(ctx context.Context, id types.OperatorID) ([]*types.StakingEvent, error) {
	return r.store.GetStakingEvents(ctx, id)
}

func (r *Registry) ListAll(ctx context.Context) ([]*types.Operator, error) {
	return r.store.GetOperators(ctx)
}

func (r *Registry) ListActive(ctx context.Context) ([]*types.Operator, error) {
	return r.filter(ctx, (*types.Operator).IsActive)
}

func (r *Registry) ListSlashed(ctx context.Context) ([]*types.Operator, error) {
	return r.filter(ctx, (*types.Operator).IsSlashed)
}

func (r *Registry) filter(ctx context.Context, keep func(*types.Operator) bool) ([]*types.Operator, error) {
	operators, err := r.store.GetOperators(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*types.Operator, 0, len(operators))
	for _, operator := range operators {
		if keep(operator) {
			filtered = append(filtered, operator)
		}
	}
	return filtered, nil
}

func (r *Registry) TotalStaked(ctx context.Context) (types.Amount, error) {
	operators, err := r.store.GetOperators(ctx)
	if err != nil {
		return types.Amount{}, err
	}

	var total types.Amount
	for _, operator := range operators {
		total = total.Add(operator.StakedAmount)
	}
	return total, nil
}

func (r *Registry) Status(ctx context.Context) (*types.Status, error) {
	operators, err := r.store.GetOperators(ctx)
	if err != nil {
		return nil, err
	}

	status := &types.Status{}
	var scoreSum float64
	for _, operator := range operators {
		status.TotalOperators++
		status.TotalStaked = status.TotalStaked.Add(operator.StakedAmount)
		scoreSum += operator.PerformanceScore

		if operator.IsActive() {
			status.ActiveOperators++
		}
		if operator.IsSlashed() {
			status.SlashedOperators++
		}

		check := operator.LastPerformanceCheck
		if check != nil && (status.LastPerformanceCheck == nil || check.After(*status.LastPerformanceCheck)) {
			t := *check
			status.LastPerformanceCheck = &t
		}
	}
	if status.TotalOperators > 0 {
		status.AveragePerformanceScore = scoreSum / float64(status.TotalOperators)
	}

	return status, nil
}

package store

import (
	"context"
	"sync"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	operators map[types.OperatorID]*types.Operator
	order     []types.OperatorID
	events    map[types.OperatorID][]*types.StakingEvent

	lock sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		operators: make(map[types.OperatorID]*types.Operator),
		events:    make(map[types.OperatorID][]*types.StakingEvent),
	}
}

func (s *MemoryStore) CreateOperator(ctx context.Context, operator *types.Operator) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.operators[operator.ID]; ok {
		return errors.Wrapf(types.ErrDuplicateOperator, "operator %s", operator.ID)
	}
	s.operators[operator.ID] = operator.Copy()
	s.order = append(s.order, operator.ID)
	return nil
}

func (s *MemoryStore) GetOperator(ctx context.Context, id types.OperatorID) (*types.Operator, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	operator, ok := s.operators[id]
	if !ok {
		return nil, nil
	}
	return operator.Copy(), nil
}

func (s *MemoryStore) GetOperators(ctx context.Context) ([]*types.Operator, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	operators := make([]*types.Operator, 0, len(s.order))
	for _, id := range s.order {
		operators = append(operators, s.operators[id].Copy())
	}
	return operators, nil
}

func (s *MemoryStore) UpdateOperator(ctx context.Context, operator *types.Operator, events ...*types.StakingEvent) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.operators[operator.ID]; !ok {
		return errors.Wrapf(types.ErrUnknownOperator, "operator %s", operator.ID)
	}
	s.operators[operator.ID] = operator.Copy()
	for _, event := range events {
		e := *event
		s.events[operator.ID] = append(s.events[operator.ID], &e)
	}
	return nil
}

func (s *MemoryStore) GetStakingEvents(ctx context.Context, id types.OperatorID) ([]*types.StakingEvent, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	events := make([]*types.StakingEvent, 0, len(s.events[id]))
	for _, event := range s.events[id] {
		e := *event
		events = append(events, &e)
	}
	return events, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

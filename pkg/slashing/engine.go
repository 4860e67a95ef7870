// Package slashing turns violations into stake deductions. Critical violations
// are slashed asynchronously through an outbox so failures stay observable.
package slashing

import (
	"context"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/metrics"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const AutoSlashReason = "auto-slash: critical violation"

// errUnchanged aborts a registry update that has nothing to write.
var errUnchanged = errors.New("operator unchanged")

type Publisher interface {
	Publish(ctx context.Context, msg *bus.Message)
}

type Engine struct {
	registry  *registry.Registry
	publisher Publisher
	outbox    *Outbox
	logger    *zap.Logger
	now       func() time.Time
}

func New(registry *registry.Registry, publisher Publisher, zapLogger *zap.Logger) *Engine {
	e := &Engine{
		registry:  registry,
		publisher: publisher,
		logger:    zapLogger,
		now:       time.Now,
	}
	e.outbox = NewOutbox(zapLogger, e.autoSlash)
	e.outbox.OnFailed(e.alertFailedTask)
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Outbox() *Outbox {
	return e.outbox
}

// Run processes auto-slash tasks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.outbox.Run(ctx)
}

// Slash deducts the slash computed for violations from the current stake and
// appends the violations not yet on record. A zero amount changes nothing.
func (e *Engine) Slash(ctx context.Context, id types.OperatorID, violations []types.Violation, reason string) (types.Amount, error) {
	logger := e.logger.Sugar()

	var amount types.Amount
	operator, err := e.registry.Update(ctx, id, func(operator *types.Operator) ([]*types.StakingEvent, error) {
		amount = CalculateSlash(operator, violations)
		if amount.IsZero() {
			return nil, errUnchanged
		}
		operator.StakedAmount = operator.StakedAmount.Sub(amount)
		operator.AppendViolations(violations...)
		return []*types.StakingEvent{{
			OperatorID: id,
			Type:       types.StakingEventSlash,
			Amount:     amount,
			Timestamp:  e.now().UTC(),
			Reason:     reason,
		}}, nil
	})
	if errors.Is(err, errUnchanged) {
		logger.Debugw("slash computed zero amount", "operator", id, "violations", len(violations))
		return types.Amount{}, nil
	}
	if err != nil {
		return types.Amount{}, err
	}

	metrics.SlashOperations.Inc()
	slashed, _ := amount.ToBig().Float64()
	metrics.SlashedAmount.Add(slashed)
	logger.Infow("slashed operator", "operator", id, "amount", amount, "remaining", operator.StakedAmount, "reason", reason)

	e.publishDelta(ctx, &types.StateDelta{
		OperatorID:       id,
		Kind:             types.StateDeltaSlash,
		Amount:           &amount,
		StakedAmount:     operator.StakedAmount,
		PerformanceScore: operator.PerformanceScore,
		Violations:       violations,
		Reason:           reason,
		Timestamp:        e.now().UTC(),
	})

	return amount, nil
}

// RecordViolation appends violation once. Critical violations are queued for
// an auto-slash, the caller never waits for it.
func (e *Engine) RecordViolation(ctx context.Context, id types.OperatorID, violation types.Violation) error {
	logger := e.logger.Sugar()

	if err := violation.Validate(); err != nil {
		return err
	}
	if violation.ID == "" {
		violation.ID = uuid.NewString()
	}
	if violation.Timestamp.IsZero() {
		violation.Timestamp = e.now().UTC()
	}

	operator, err := e.registry.Update(ctx, id, func(operator *types.Operator) ([]*types.StakingEvent, error) {
		if operator.AppendViolations(violation) == 0 {
			return nil, errUnchanged
		}
		return nil, nil
	})
	if errors.Is(err, errUnchanged) {
		logger.Debugw("violation already recorded", "operator", id, "violation", violation.ID)
		return nil
	}
	if err != nil {
		return err
	}

	metrics.Violations.WithLabelValues(string(violation.Type), string(violation.Severity)).Inc()
	logger.Infow("recorded violation", "operator", id, "violation", violation.ID, "type", violation.Type, "severity", violation.Severity)

	e.publishDelta(ctx, &types.StateDelta{
		OperatorID:       id,
		Kind:             types.StateDeltaViolation,
		StakedAmount:     operator.StakedAmount,
		PerformanceScore: operator.PerformanceScore,
		Violations:       []types.Violation{violation},
		Timestamp:        e.now().UTC(),
	})

	if violation.Severity == types.SeverityCritical {
		e.outbox.Enqueue(&Task{
			OperatorID: id,
			Violation:  violation,
			Reason:     AutoSlashReason,
			EnqueuedAt: e.now().UTC(),
		})
	}
	return nil
}

func (e *Engine) autoSlash(ctx context.Context, task *Task) error {
	_, err := e.Slash(ctx, task.OperatorID, []types.Violation{task.Violation}, task.Reason)
	return err
}

func (e *Engine) alertFailedTask(ctx context.Context, task *Task) {
	msg := bus.NewMessage(bus.RoleSystem, bus.TopicAlert, task)
	msg.Priority = bus.PriorityHigh
	msg.RoutingKey = task.OperatorID
	msg.CorrelationID = task.Violation.ID
	e.publisher.Publish(ctx, msg)
}

func (e *Engine) publishDelta(ctx context.Context, delta *types.StateDelta) {
	msg := bus.NewMessage(bus.RoleWorker, bus.TopicStateDelta, delta)
	msg.RoutingKey = delta.OperatorID
	e.publisher.Publish(ctx, msg)
}

// GetViolations returns the violations at or after since, all of them when since is nil.
func (e *Engine) GetViolations(ctx context.Context, id types.OperatorID, since *time.Time) ([]types.Violation, error) {
	operator, err := e.registry.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	violations := make([]types.Violation, 0, len(operator.Violations))
	for _, v := range operator.Violations {
		if since != nil && v.Timestamp.Before(*since) {
			continue
		}
		violations = append(violations, v)
	}
	return violations, nil
}

package data

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/din-network/din-monitor/pkg/clock"
	"github.com/din-network/din-monitor/pkg/metrics"
	"github.com/din-network/din-monitor/pkg/telemetry"
	"go.uber.org/zap"
)

type Collector struct {
	logger    *zap.Logger
	operators []*telemetry.Client
	clock     *clock.Clock
	events    chan<- Event

	retryAttempts uint
	retryDelay    time.Duration
}

func NewCollector(zapLogger *zap.Logger, operators []*telemetry.Client, clock *clock.Clock, events chan<- Event) *Collector {
	return &Collector{
		logger:        zapLogger,
		operators:     operators,
		clock:         clock,
		events:        events,
		retryAttempts: RetryAttempts,
		retryDelay:    RetryDelay,
	}
}

func (c *Collector) WithRetry(attempts uint, delay time.Duration) *Collector {
	if attempts > 0 {
		c.retryAttempts = attempts
	}
	c.retryDelay = delay
	return c
}

// collectFromOperator fetches one sample and sends it to be recorded.
func (c *Collector) collectFromOperator(ctx context.Context, operator *telemetry.Client) (*MetricsEvent, error) {
	start := time.Now()
	sample, err := operator.GetMetrics(ctx)
	metrics.CollectMetrics.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	event := &MetricsEvent{
		OperatorID: operator.OperatorID,
		Metrics:    *sample,
	}
	c.logger.Sugar().Debugw("collected metrics", "operator", operator.OperatorID, "service", sample.ServiceID)

	select {
	case c.events <- Event{Payload: event}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return event, nil
}

// tryCollectFromOperator wraps collectFromOperator with the retry policy.
func (c *Collector) tryCollectFromOperator(ctx context.Context, operator *telemetry.Client) {
	logger := c.logger.Sugar()

	opts := append(collectorRetryOptions(c.retryAttempts, c.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw("could not collect metrics from operator", "operator", operator.OperatorID, "error", err, "attempt", n+1, "retrying", c.retryDelay)
		}),
	)
	err := retry.Do(
		func() error {
			_, err := c.collectFromOperator(ctx, operator)
			return err
		},
		opts...,
	)
	if err != nil && ctx.Err() == nil {
		logger.Warnw("giving up on operator sample", "operator", operator.OperatorID, "error", err)
	}
}

// pollOperator collects from one operator on every tick.
func (c *Collector) pollOperator(ctx context.Context, operator *telemetry.Client) {
	logger := c.logger.Sugar()

	ticks := c.clock.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			logger.Debugw("polling operator", "operator", operator.OperatorID, "endpoint", operator.Endpoint())
			c.tryCollectFromOperator(ctx, operator)
		}
	}
}

func (c *Collector) Run(ctx context.Context) error {
	logger := c.logger.Sugar()

	done := make(chan struct{}, len(c.operators))
	for _, operator := range c.operators {
		logger.Infof("monitoring operator %s", operator)

		go func(operator *telemetry.Client) {
			defer func() { done <- struct{}{} }()
			c.pollOperator(ctx, operator)
		}(operator)
	}

	<-ctx.Done()
	for range c.operators {
		<-done
	}
	return nil
}

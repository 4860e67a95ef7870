// Package performance scores operator samples and raises threshold violations.
//
// Every sample moves through the stages recorded, scored, checked and
// published. The last completed stage is remembered per sample key, so a sample
// that is delivered again resumes where it stopped instead of repeating side
// effects.
package performance

import (
	"context"
	"sync"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/data"
	"github.com/din-network/din-monitor/pkg/metrics"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const DefaultSampleCacheSize = 4096

type Stage int

const (
	StagePending Stage = iota
	StageRecorded
	StageScored
	StageChecked
	StagePublished
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageRecorded:
		return "recorded"
	case StageScored:
		return "scored"
	case StageChecked:
		return "checked"
	case StagePublished:
		return "published"
	default:
		return "unknown"
	}
}

type ViolationRecorder interface {
	RecordViolation(ctx context.Context, id types.OperatorID, violation types.Violation) error
}

type Publisher interface {
	Publish(ctx context.Context, msg *bus.Message)
}

// Report summarizes the handling of one sample.
type Report struct {
	OperatorID types.OperatorID  `json:"operatorId"`
	SampleKey  string            `json:"sampleKey"`
	Score      float64           `json:"score"`
	Violations []types.Violation `json:"violations"`
	Stage      Stage             `json:"stage"`
	Replayed   bool              `json:"replayed"`
}

type Monitor struct {
	registry   *registry.Registry
	violations ViolationRecorder
	publisher  Publisher
	logger     *zap.Logger
	now        func() time.Time
	capacity   int

	historyLock sync.RWMutex
	history     map[types.OperatorID]*history

	samples *lru.Cache
	locks   sync.Map
}

func New(registry *registry.Registry, violations ViolationRecorder, publisher Publisher, zapLogger *zap.Logger) (*Monitor, error) {
	return NewWithCacheSize(registry, violations, publisher, zapLogger, DefaultSampleCacheSize)
}

func NewWithCacheSize(registry *registry.Registry, violations ViolationRecorder, publisher Publisher, zapLogger *zap.Logger, cacheSize int) (*Monitor, error) {
	samples, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		registry:   registry,
		violations: violations,
		publisher:  publisher,
		logger:     zapLogger,
		now:        time.Now,
		capacity:   HistoryCapacity,
		history:    make(map[types.OperatorID]*history),
		samples:    samples,
	}, nil
}

func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

func (m *Monitor) WithHistoryCapacity(capacity int) *Monitor {
	if capacity > 0 {
		m.capacity = capacity
	}
	return m
}

func (m *Monitor) lockFor(id types.OperatorID) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (m *Monitor) stageOf(key string) (Stage, bool) {
	stage, ok := m.samples.Get(key)
	if !ok {
		return StagePending, false
	}
	return stage.(Stage), true
}

func (m *Monitor) advance(key string, stage Stage) {
	m.samples.Add(key, stage)
}

// RecordMetrics stores the sample, updates the operator score, forwards the
// detected violations and publishes the telemetry message.
func (m *Monitor) RecordMetrics(ctx context.Context, id types.OperatorID, sample types.PerformanceMetrics) (*Report, error) {
	logger := m.logger.Sugar()
	start := time.Now()
	defer func() {
		metrics.RecordMetrics.Observe(time.Since(start).Seconds())
	}()

	if _, err := m.registry.MustGet(ctx, id); err != nil {
		return nil, err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = m.now().UTC()
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	key := sample.SampleKey(id)
	stage, replayed := m.stageOf(key)
	report := &Report{
		OperatorID: id,
		SampleKey:  key,
		Score:      CalculateScore(&sample),
		Violations: DetectViolations(key, &sample),
		Stage:      stage,
		Replayed:   replayed,
	}
	if replayed {
		logger.Debugw("resuming sample", "operator", id, "sample", key, "stage", stage)
	}

	if report.Stage < StageRecorded {
		m.appendHistory(id, sample)
		report.Stage = StageRecorded
		m.advance(key, report.Stage)
	}

	if report.Stage < StageScored {
		checked := m.now().UTC()
		_, err := m.registry.Update(ctx, id, func(operator *types.Operator) ([]*types.StakingEvent, error) {
			operator.PerformanceScore = report.Score
			operator.LastPerformanceCheck = &checked
			return nil, nil
		})
		if err != nil {
			return report, err
		}
		report.Stage = StageScored
		m.advance(key, report.Stage)
	}

	if report.Stage < StageChecked {
		for _, violation := range report.Violations {
			if err := m.violations.RecordViolation(ctx, id, violation); err != nil {
				return report, err
			}
		}
		report.Stage = StageChecked
		m.advance(key, report.Stage)
	}

	if report.Stage < StagePublished {
		msg := bus.NewMessage(bus.RoleSensor, bus.TopicTelemetry, &types.Telemetry{
			OperatorID: id,
			Metrics:    sample,
			Score:      report.Score,
		})
		msg.RoutingKey = id
		msg.CorrelationID = key
		m.publisher.Publish(ctx, msg)
		report.Stage = StagePublished
		m.advance(key, report.Stage)
	}

	logger.Debugw("recorded metrics", "operator", id, "score", report.Score, "violations", len(report.Violations))
	return report, nil
}

func (m *Monitor) appendHistory(id types.OperatorID, sample types.PerformanceMetrics) {
	m.historyLock.Lock()
	defer m.historyLock.Unlock()

	h, ok := m.history[id]
	if !ok {
		h = newHistory(m.capacity)
		m.history[id] = h
	}
	h.push(sample)
}

// GetMetrics returns the most recent limit samples, oldest first; limit <= 0 returns all of them.
func (m *Monitor) GetMetrics(id types.OperatorID, limit int) []types.PerformanceMetrics {
	m.historyLock.RLock()
	defer m.historyLock.RUnlock()

	h, ok := m.history[id]
	if !ok {
		return []types.PerformanceMetrics{}
	}
	return h.last(limit)
}

func (m *Monitor) GetLatestMetrics(id types.OperatorID) (*types.PerformanceMetrics, bool) {
	m.historyLock.RLock()
	defer m.historyLock.RUnlock()

	h, ok := m.history[id]
	if !ok {
		return nil, false
	}
	latest, ok := h.latest()
	if !ok {
		return nil, false
	}
	return &latest, true
}

// Run records every MetricsEvent received on events until ctx is done.
func (m *Monitor) Run(ctx context.Context, events <-chan data.Event) error {
	logger := m.logger.Sugar()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			switch payload := event.Payload.(type) {
			case *data.MetricsEvent:
				_, err := m.RecordMetrics(ctx, payload.OperatorID, payload.Metrics)
				if err != nil {
					logger.Warnw("could not record metrics", "operator", payload.OperatorID, "error", err)
				}
			default:
				logger.Warnf("unknown event type %T", payload)
			}
		}
	}
}

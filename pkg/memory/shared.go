package memory

import (
	"context"
	"math"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/types"
	"go.uber.org/zap"
)

const DefaultScoreTTL = 10 * time.Minute

type Shared struct {
	KV   KV
	Docs *DocStore
	Vec  VectorIndex
}

func NewShared(kv KV, vec VectorIndex) *Shared {
	if kv == nil {
		kv = NewMemoryKV()
	}
	if vec == nil {
		vec = NewMemoryIndex()
	}
	return &Shared{
		KV:   kv,
		Docs: NewDocStore(),
		Vec:  vec,
	}
}

func ScoreKey(id types.OperatorID) string {
	return "score:" + id
}

func OperatorDocID(id types.OperatorID) string {
	return "operator:" + id
}

type ScoreEntry struct {
	OperatorID types.OperatorID `json:"operatorId"`
	Score      float64          `json:"score"`
	SampledAt  time.Time        `json:"sampledAt"`
}

// Embedding is the performance profile of a sample, every component in [0, 1].
func Embedding(m *types.PerformanceMetrics) []float32 {
	latency := 1 - (m.P95Latency-250)/250
	return []float32{
		float32(unit(m.SuccessRate / 100)),
		float32(unit(latency)),
		float32(unit(m.Throughput / 13_000_000_000)),
		float32(unit(m.Uptime / 100)),
	}
}

func unit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Blackboard mirrors bus traffic into shared memory: the latest score of every
// operator in KV, an operator document, and the performance profile in Vec.
type Blackboard struct {
	shared *Shared
	logger *zap.Logger
	ttl    time.Duration
}

func NewBlackboard(shared *Shared, zapLogger *zap.Logger, ttl time.Duration) *Blackboard {
	if ttl <= 0 {
		ttl = DefaultScoreTTL
	}
	return &Blackboard{shared: shared, logger: zapLogger, ttl: ttl}
}

// Attach subscribes to telemetry and state.delta and returns the detach function.
func (bb *Blackboard) Attach(b *bus.Bus) func() {
	unsubscribeTelemetry := bus.SubscribeTyped(b, bus.TopicTelemetry, bb.onTelemetry)
	unsubscribeDelta := bus.SubscribeTyped(b, bus.TopicStateDelta, bb.onStateDelta)
	return func() {
		unsubscribeTelemetry()
		unsubscribeDelta()
	}
}

func (bb *Blackboard) onTelemetry(ctx context.Context, msg *bus.Message, telemetry types.Telemetry) error {
	id := telemetry.OperatorID
	entry := ScoreEntry{OperatorID: id, Score: telemetry.Score, SampledAt: telemetry.Metrics.Timestamp}
	if err := bb.shared.KV.Put(ctx, ScoreKey(id), entry, bb.ttl); err != nil {
		return err
	}

	bb.shared.Docs.Upsert(OperatorDocID(id), Document{
		"operatorId":       id,
		"performanceScore": telemetry.Score,
		"lastServiceId":    telemetry.Metrics.ServiceID,
		"lastSampleAt":     telemetry.Metrics.Timestamp,
	})

	err := bb.shared.Vec.Upsert(ctx, id, Embedding(&telemetry.Metrics), map[string]any{
		"operatorId": id,
		"serviceId":  telemetry.Metrics.ServiceID,
	})
	if err != nil {
		return err
	}

	bb.logger.Sugar().Debugw("blackboard updated from telemetry", "operator", id, "score", telemetry.Score)
	return nil
}

func (bb *Blackboard) onStateDelta(ctx context.Context, msg *bus.Message, delta types.StateDelta) error {
	id := delta.OperatorID
	doc := Document{
		"operatorId":       id,
		"stakedAmount":     delta.StakedAmount.String(),
		"performanceScore": delta.PerformanceScore,
		"lastDelta":        string(delta.Kind),
		"lastDeltaAt":      delta.Timestamp,
	}

	existing, _ := bb.shared.Docs.Read(OperatorDocID(id))
	switch delta.Kind {
	case types.StateDeltaViolation:
		doc["violationCount"] = count(existing, "violationCount") + len(delta.Violations)
	case types.StateDeltaSlash:
		doc["slashCount"] = count(existing, "slashCount") + 1
		if delta.Amount != nil {
			doc["lastSlashAmount"] = delta.Amount.String()
		}
	}
	bb.shared.Docs.Upsert(OperatorDocID(id), doc)

	bb.logger.Sugar().Debugw("blackboard updated from state delta", "operator", id, "kind", delta.Kind)
	return nil
}

func count(doc Document, field string) int {
	n, _ := doc[field].(int)
	return n
}

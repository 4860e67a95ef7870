package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestMemoryKV(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1700000000, 0)}
	kv := NewMemoryKV().WithClock(c.Now)

	require.NoError(t, kv.Put(ctx, "forever", map[string]int{"a": 1}, 0))
	require.NoError(t, kv.Put(ctx, "short", "value", time.Second))

	var got map[string]int
	ok, err := kv.Get(ctx, "forever", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]int{"a": 1}, got)

	var s string
	ok, err = kv.Get(ctx, "short", &s)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", s)

	c.now = c.now.Add(time.Second)
	ok, err = kv.Get(ctx, "short", &s)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, kv.entries, 1)

	require.NoError(t, kv.Del(ctx, "forever"))
	ok, err = kv.Get(ctx, "forever", &got)
	require.NoError(t, err)
	require.False(t, ok)

	var raw json.RawMessage
	require.NoError(t, kv.Put(ctx, "raw", []int{1, 2}, 0))
	ok, err = kv.Get(ctx, "raw", &raw)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, "[1,2]", string(raw))
}

func TestDocUpsertPreservesCreatedAt(t *testing.T) {
	c := &clock{now: time.Unix(1700000000, 0).UTC()}
	docs := NewDocStore().WithClock(c.Now)
	created := c.now

	docs.Upsert("op1", Document{"score": 90, "region": "eu"})
	c.now = c.now.Add(time.Minute)
	doc := docs.Upsert("op1", Document{"score": 80})

	require.Equal(t, created, doc[CreatedAtField])
	require.Equal(t, c.now, doc[UpdatedAtField])
	require.Equal(t, 80, doc["score"])
	require.Equal(t, "eu", doc["region"])

	c.now = c.now.Add(time.Minute)
	docs.Upsert("op1", Document{CreatedAtField: "overwritten?"})
	read, ok := docs.Read("op1")
	require.True(t, ok)
	require.Equal(t, created, read[CreatedAtField])
	require.Equal(t, c.now, read[UpdatedAtField])

	_, ok = docs.Read("missing")
	require.False(t, ok)
}

func TestDocQuery(t *testing.T) {
	docs := NewDocStore()
	docs.Upsert("a", Document{"region": "eu", "tier": 1})
	docs.Upsert("b", Document{"region": "eu", "tier": 2})
	docs.Upsert("c", Document{"region": "us", "tier": 1})

	tests := []struct {
		name   string
		filter Document
		want   []string
	}{
		{name: "single field", filter: Document{"region": "eu"}, want: []string{"a", "b"}},
		{name: "every field must match", filter: Document{"region": "eu", "tier": 1}, want: []string{"a"}},
		{name: "decoded json number", filter: Document{"tier": float64(1)}, want: []string{"a", "c"}},
		{name: "missing field", filter: Document{"owner": "x"}, want: []string{}},
		{name: "empty filter", filter: Document{}, want: []string{"a", "b", "c"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			results := docs.Query(tc.filter)
			ids := []string{}
			for _, doc := range results {
				ids = append(ids, doc.ID())
			}
			require.Equal(t, tc.want, ids)
		})
	}
}

func TestMemoryIndexSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "x", []float32{1, 0}, map[string]any{"kind": "axis"}))
	require.NoError(t, idx.Upsert(ctx, "y", []float32{0, 1}, map[string]any{"kind": "axis"}))
	require.NoError(t, idx.Upsert(ctx, "xy", []float32{1, 1}, map[string]any{"kind": "diagonal"}))
	require.NoError(t, idx.Upsert(ctx, "3d", []float32{1, 0, 0}, nil))
	require.Error(t, idx.Upsert(ctx, "empty", nil, nil))

	results, err := idx.Search(ctx, []float32{1, 0.1}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "x", results[0].ID)
	require.Equal(t, "xy", results[1].ID)
	require.Greater(t, results[0].Score, results[1].Score)

	results, err = idx.Search(ctx, []float32{1, 0.1}, 5, map[string]any{"kind": "axis"})
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, []string{results[0].ID, results[1].ID})

	results, err = idx.Search(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCosineSimilarity(t *testing.T) {
	score, err := CosineSimilarity([]float32{1, 2}, []float32{2, 4})
	require.NoError(t, err)
	require.InDelta(t, 1, score, 1e-9)

	score, err = CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	require.InDelta(t, -1, score, 1e-9)

	score, err = CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	require.Equal(t, float64(0), score)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	require.Error(t, err)
}

func TestBlackboard(t *testing.T) {
	ctx := context.Background()
	b := bus.New(zap.NewNop())
	defer b.Close()

	shared := NewShared(nil, nil)
	detach := NewBlackboard(shared, zap.NewNop(), time.Minute).Attach(b)

	sampledAt := time.Unix(1700000000, 0).UTC()
	b.Publish(ctx, bus.NewMessage(bus.RoleSensor, bus.TopicTelemetry, &types.Telemetry{
		OperatorID: "op1",
		Metrics:    types.PerformanceMetrics{ServiceID: "rpc", SuccessRate: 100, P95Latency: 100, Throughput: 13_000_000_000, Uptime: 100, Timestamp: sampledAt},
		Score:      100,
	}))

	var entry ScoreEntry
	ok, err := shared.KV.Get(ctx, ScoreKey("op1"), &entry)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(100), entry.Score)
	require.Equal(t, sampledAt, entry.SampledAt)

	amount := types.AmountFromUint64(50)
	b.Publish(ctx, bus.NewMessage(bus.RoleWorker, bus.TopicStateDelta, &types.StateDelta{
		OperatorID:   "op1",
		Kind:         types.StateDeltaViolation,
		StakedAmount: types.AmountFromUint64(1000),
		Violations:   []types.Violation{{ID: "v1"}},
	}))
	b.Publish(ctx, bus.NewMessage(bus.RoleWorker, bus.TopicStateDelta, &types.StateDelta{
		OperatorID:   "op1",
		Kind:         types.StateDeltaSlash,
		Amount:       &amount,
		StakedAmount: types.AmountFromUint64(950),
	}))

	doc, ok := shared.Docs.Read(OperatorDocID("op1"))
	require.True(t, ok)
	require.Equal(t, "950", doc["stakedAmount"])
	require.Equal(t, 1, doc["violationCount"])
	require.Equal(t, 1, doc["slashCount"])
	require.Equal(t, "50", doc["lastSlashAmount"])
	require.Equal(t, "rpc", doc["lastServiceId"])

	results, err := shared.Vec.Search(ctx, []float32{1, 1, 1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "op1", results[0].ID)
	require.InDelta(t, 1, results[0].Score, 1e-6)

	detach()
	require.Equal(t, 0, b.GetStats().SubscriberCount)
}

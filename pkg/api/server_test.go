package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/api"
	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/memory"
	"github.com/din-network/din-monitor/pkg/performance"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/slashing"
	"github.com/din-network/din-monitor/pkg/staking"
	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	fakeHost = "localhost"
	fakePort = 1559
)

type testServer struct {
	*httptest.Server
	engine *slashing.Engine
}

func newTestServer(t *testing.T, config *api.Config) *testServer {
	logger := zap.NewNop()
	reg := registry.New(store.NewMemoryStore(), logger)
	b := bus.New(logger)
	t.Cleanup(b.Close)

	engine := slashing.New(reg, b, logger)
	monitor, err := performance.New(reg, engine, b, logger)
	require.NoError(t, err)

	shared := memory.NewShared(nil, nil)
	detach := memory.NewBlackboard(shared, logger, time.Minute).Attach(b)
	t.Cleanup(detach)

	s := api.New(config, logger, &api.Services{
		Registry:    reg,
		Ledger:      staking.New(reg, logger),
		Slashing:    engine,
		Performance: monitor,
		Reporter:    reporter.NewReporter(reg, monitor, reporter.NewScorer(logger.Sugar()), logger.Sugar()),
		Bus:         b,
		Memory:      shared,
	})

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestOperatorLifecycle(t *testing.T) {
	s := newTestServer(t, &api.Config{Host: fakeHost, Port: fakePort})

	code, data := s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{
		"operatorId":    "op1",
		"walletAddress": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"initialStake":  "2000000000000000000",
	})
	require.Equal(t, http.StatusCreated, code, string(data))
	operator := decodeAs[types.Operator](t, data)
	require.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", operator.WalletAddress)
	require.Equal(t, "2000000000000000000", operator.StakedAmount.String())

	code, data = s.do(t, http.MethodPost, "/api/v1/operators/op1/stake", map[string]any{"amount": "1000000000000000000"})
	require.Equal(t, http.StatusOK, code, string(data))
	require.Equal(t, "3000000000000000000", decodeAs[types.Operator](t, data).StakedAmount.String())

	code, data = s.do(t, http.MethodPost, "/api/v1/operators/op1/unstake", map[string]any{"amount": "500000000000000000"})
	require.Equal(t, http.StatusOK, code, string(data))
	require.Equal(t, "2500000000000000000", decodeAs[types.Operator](t, data).StakedAmount.String())

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/op1/events", nil)
	require.Equal(t, http.StatusOK, code)
	events := decodeAs[[]types.StakingEvent](t, data)
	require.Len(t, events, 3)
	require.Equal(t, types.StakingEventUnstake, events[2].Type)

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/total-staked", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2500000000000000000", decodeAs[api.TotalStakedResponse](t, data).TotalStaked.String())

	code, data = s.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	status := decodeAs[types.Status](t, data)
	require.Equal(t, uint(1), status.TotalOperators)
	require.Equal(t, uint(1), status.ActiveOperators)
	require.Equal(t, float64(100), status.AveragePerformanceScore)
	require.Nil(t, status.LastPerformanceCheck)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, &api.Config{})

	code, _ := s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op1"})
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"duplicate", http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op1"}, http.StatusConflict},
		{"missing id", http.MethodPost, "/api/v1/operators", map[string]any{}, http.StatusBadRequest},
		{"unknown operator", http.MethodGet, "/api/v1/operators/ghost", nil, http.StatusNotFound},
		{"unknown stake", http.MethodPost, "/api/v1/operators/ghost/stake", map[string]any{"amount": "1000000000000000000"}, http.StatusNotFound},
		{"below minimum", http.MethodPost, "/api/v1/operators/op1/stake", map[string]any{"amount": "5"}, http.StatusBadRequest},
		{"insufficient", http.MethodPost, "/api/v1/operators/op1/unstake", map[string]any{"amount": "1"}, http.StatusBadRequest},
		{"negative", http.MethodPost, "/api/v1/operators/op1/stake", map[string]any{"amount": "-1"}, http.StatusBadRequest},
		{"missing amount", http.MethodPost, "/api/v1/operators/op1/stake", map[string]any{}, http.StatusBadRequest},
		{"bad filter", http.MethodGet, "/api/v1/operators?filter=everything", nil, http.StatusBadRequest},
		{"bad violation", http.MethodPost, "/api/v1/operators/op1/violations", map[string]any{"type": "oops", "severity": "low"}, http.StatusBadRequest},
		{"empty slash", http.MethodPost, "/api/v1/operators/op1/slash", map[string]any{"reason": "none"}, http.StatusBadRequest},
		{"unknown metrics", http.MethodPost, "/api/v1/metrics", map[string]any{"operatorId": "ghost", "metrics": map[string]any{"successRate": 100}}, http.StatusNotFound},
		{"bad since", http.MethodGet, "/api/v1/operators/op1/violations?since=yesterday", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, data := s.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.code, code, string(data))
			resp := decodeAs[api.ErrorResponse](t, data)
			require.Equal(t, tt.code, resp.Code)
			require.NotEmpty(t, resp.Message)
		})
	}
}

func TestRecordMetricsAndMemory(t *testing.T) {
	s := newTestServer(t, &api.Config{})

	code, _ := s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op1", "initialStake": "2000000000000000000"})
	require.Equal(t, http.StatusCreated, code)

	code, data := s.do(t, http.MethodPost, "/api/v1/metrics", map[string]any{
		"operatorId": "op1",
		"metrics": map[string]any{
			"serviceId":   "rpc",
			"successRate": 94,
			"p95Latency":  600,
			"throughput":  1,
			"uptime":      98,
		},
	})
	require.Equal(t, http.StatusOK, code, string(data))
	report := decodeAs[performance.Report](t, data)
	require.Equal(t, performance.StagePublished, report.Stage)
	require.Len(t, report.Violations, 4)

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/op1/violations", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decodeAs[[]types.Violation](t, data), 4)

	code, data = s.do(t, http.MethodGet, "/api/v1/operators?filter=slashed", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decodeAs[[]types.Operator](t, data), 1)

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/op1/metrics/latest", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(94), decodeAs[types.PerformanceMetrics](t, data).SuccessRate)

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/op1/metrics?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decodeAs[[]types.PerformanceMetrics](t, data), 1)

	code, _ = s.do(t, http.MethodGet, "/api/v1/memory/kv/"+memory.ScoreKey("op1"), nil)
	require.Equal(t, http.StatusOK, code)

	code, data = s.do(t, http.MethodGet, "/api/v1/memory/docs/"+memory.OperatorDocID("op1"), nil)
	require.Equal(t, http.StatusOK, code, string(data))
	doc := decodeAs[memory.Document](t, data)
	require.Equal(t, memory.OperatorDocID("op1"), doc.ID())

	code, data = s.do(t, http.MethodPost, "/api/v1/memory/docs/query", map[string]any{"_id": memory.OperatorDocID("op1")})
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decodeAs[[]memory.Document](t, data), 1)

	code, data = s.do(t, http.MethodPost, "/api/v1/memory/vec/search", map[string]any{"operatorId": "op1", "k": 3})
	require.Equal(t, http.StatusOK, code, string(data))
	results := decodeAs[api.VectorSearchResponse](t, data).Results
	require.Len(t, results, 1)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)

	code, data = s.do(t, http.MethodGet, "/api/v1/bus/stats", nil)
	require.Equal(t, http.StatusOK, code)
	require.Positive(t, decodeAs[bus.Stats](t, data).PublishedCount)

	code, data = s.do(t, http.MethodGet, "/api/v1/reports/violations", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint64(4), decodeAs[reporter.ViolationStats](t, data).Total)

	s.engine.Outbox().Drain(context.Background())
	code, data = s.do(t, http.MethodGet, "/api/v1/slashing/outbox", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, slashing.OutboxStats{Processed: 3}, decodeAs[slashing.OutboxStats](t, data))
}

func TestSlashEndpoint(t *testing.T) {
	s := newTestServer(t, &api.Config{})

	code, _ := s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op1", "initialStake": "1000000000000000000"})
	require.Equal(t, http.StatusCreated, code)

	code, data := s.do(t, http.MethodPost, "/api/v1/operators/op1/slash", map[string]any{
		"reason": "manual",
		"violations": []map[string]any{{
			"type":            "downtime",
			"severity":        "high",
			"durationMinutes": 50,
			"description":     "offline",
		}},
	})
	require.Equal(t, http.StatusOK, code, string(data))
	require.Equal(t, "500000000000000000", decodeAs[api.SlashResponse](t, data).Amount.String())

	code, data = s.do(t, http.MethodGet, "/api/v1/operators/op1", nil)
	require.Equal(t, http.StatusOK, code)
	operator := decodeAs[types.Operator](t, data)
	require.Equal(t, "500000000000000000", operator.StakedAmount.String())
	require.Len(t, operator.Violations, 1)
	require.NotEmpty(t, operator.Violations[0].ID)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &api.Config{RateLimit: 0.001, Burst: 1})

	code, _ := s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op1"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/operators", map[string]any{"operatorId": "op2"})
	require.Equal(t, http.StatusTooManyRequests, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/operators/op1", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestPrometheusHandler(t *testing.T) {
	s := newTestServer(t, &api.Config{})

	code, data := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(data), "go_goroutines")
}

func TestRun(t *testing.T) {
	logger := zap.NewNop()
	reg := registry.New(store.NewMemoryStore(), logger)
	b := bus.New(logger)
	defer b.Close()

	s := api.New(&api.Config{Host: fakeHost, Port: fakePort}, logger, &api.Services{Registry: reg, Bus: b})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	cancel()
	require.NoError(t, <-done)
}

package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/clock"
	"github.com/din-network/din-monitor/pkg/telemetry"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRetriesAndEmits(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(types.PerformanceMetrics{ServiceID: "rpc", SuccessRate: 100})
	}))
	defer srv.Close()

	operator, err := telemetry.NewClient(strings.Replace(srv.URL, "://", "://op1@", 1) + "/metrics")
	require.NoError(t, err)

	events := make(chan Event, 4)
	collector := NewCollector(zap.NewNop(), []*telemetry.Client{operator}, clock.New(time.Hour), events).
		WithRetry(3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- collector.Run(ctx)
	}()

	select {
	case event := <-events:
		payload, ok := event.Payload.(*MetricsEvent)
		require.True(t, ok)
		require.Equal(t, "op1", payload.OperatorID)
		require.Equal(t, "rpc", payload.Metrics.ServiceID)
	case <-time.After(5 * time.Second):
		t.Fatal("no metrics collected")
	}
	require.Equal(t, int32(2), requests.Load())

	cancel()
	require.NoError(t, <-done)
}

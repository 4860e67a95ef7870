package website

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/din-network/din-monitor/pkg/bus"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHelpers(t *testing.T) {
	require.Equal(t, "2.5000", toUnits(types.MustAmount("2500000000000000000")))
	require.Equal(t, "1,234,567", prettyInt(1234567))
	require.Equal(t, "97.3", prettyScore(97.26))
	require.Equal(t, "Performance Threshold", caseIt("performance threshold"))
	require.Equal(t, "0x5aAe...eAed", truncate("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	require.Equal(t, "short", truncate("short"))
}

func TestRenderStatusPage(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	reg := registry.New(store.NewMemoryStore(), logger)
	b := bus.New(logger)
	defer b.Close()

	_, err := reg.Register(ctx, "op-alpha", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	_, err = reg.Update(ctx, "op-alpha", func(op *types.Operator) ([]*types.StakingEvent, error) {
		op.StakedAmount = types.MinStake.MulUint64(3)
		op.AppendViolations(types.Violation{ID: "v1", Type: types.ViolationBadData, Severity: types.SeverityHigh})
		return nil, nil
	})
	require.NoError(t, err)

	srv, err := NewWebserver(&WebserverOpts{
		Network:           "testnet",
		MinStake:          types.MinStake,
		Registry:          reg,
		Reporter:          reporter.NewReporter(reg, nil, reporter.NewScorer(logger.Sugar()), logger.Sugar()),
		Bus:               b,
		Log:               logger.Sugar(),
		ShowConfigDetails: true,
	})
	require.NoError(t, err)
	srv.updateHTML(ctx)

	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	require.Contains(t, page, "Testnet")
	require.Contains(t, page, "op-alpha")
	require.Contains(t, page, "3.0000")
	require.Contains(t, page, "Bad Data")
	require.Contains(t, page, "high: 1")
	require.Contains(t, page, "1.0000")
}

func TestStartServerTwice(t *testing.T) {
	logger := zap.NewNop()
	reg := registry.New(store.NewMemoryStore(), logger)
	srv, err := NewWebserver(&WebserverOpts{
		ListenAddress: "localhost:0",
		Registry:      reg,
		Reporter:      reporter.NewReporter(reg, nil, reporter.NewScorer(logger.Sugar()), logger.Sugar()),
		Log:           logger.Sugar(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.StartServer(ctx)
	}()
	require.Eventually(t, srv.srvStarted.Load, time.Second, 10*time.Millisecond)
	require.ErrorIs(t, srv.StartServer(ctx), ErrServerAlreadyStarted)

	cancel()
	require.NoError(t, <-done)
}

package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestTick(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	ticks := New(10 * time.Millisecond).Tick(ctx)

	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-ticks:
			require.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("clock did not tick")
		}
	}

	cancel()
	for range ticks {
	}
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRedisKV requires a running redis on localhost and is skipped otherwise.
func TestRedisKV(t *testing.T) {
	ctx := context.Background()
	kv := NewRedisKV("localhost:6379", "", 0)
	defer kv.Close()
	if err := kv.Ping(ctx); err != nil {
		t.Skip("Skipping redis integration test: redis not available")
	}

	key := "test-" + time.Now().Format(time.RFC3339Nano)
	defer kv.Del(ctx, key)

	require.NoError(t, kv.Put(ctx, key, ScoreEntry{OperatorID: "op1", Score: 42}, time.Second))

	var entry ScoreEntry
	ok, err := kv.Get(ctx, key, &entry)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(42), entry.Score)

	require.NoError(t, kv.Del(ctx, key))
	ok, err = kv.Get(ctx, key, &entry)
	require.NoError(t, err)
	require.False(t, ok)
}

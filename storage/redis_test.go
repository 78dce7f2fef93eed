package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyki111/workflow-tool/types"
)

// newTestRedisStore connects to the Redis named by WORKFLOW_REDIS_ADDR,
// skipping the test when none is configured.
func newTestRedisStore(t *testing.T) *RedisStore {
	addr := os.Getenv("WORKFLOW_REDIS_ADDR")
	if addr == "" {
		t.Skip("WORKFLOW_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(RedisOptions{Addr: addr, KeyPrefix: "workflow-test:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.ClearRetry(context.Background())
		_ = s.SaveState(context.Background(), types.WorkflowState{})
		_ = s.Close()
	})
	return s
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("StateRoundTrip", func(t *testing.T) {
		s := newTestRedisStore(t)
		want := types.WorkflowState{CurrentStage: "impl", ActiveModule: "auth"}
		require.NoError(t, s.SaveState(ctx, want))

		got, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.CurrentStage, got.CurrentStage)
		assert.Equal(t, want.ActiveModule, got.ActiveModule)
	})

	t.Run("RetryRoundTripAndClear", func(t *testing.T) {
		s := newTestRedisStore(t)
		rs := types.RetryState{Items: map[string]types.RetryRecord{"impl#0": {Attempts: 1, Goal: "run tests"}}}
		require.NoError(t, s.SaveRetry(ctx, rs))

		got, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Items["impl#0"].Attempts)

		require.NoError(t, s.ClearRetry(ctx))
		got, err = s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Empty(t, got.Items)
	})
}

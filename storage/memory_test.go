package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyki111/workflow-tool/types"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("StateRoundTrip", func(t *testing.T) {
		s := NewMemoryStore()
		want := types.WorkflowState{CurrentStage: "plan", ActiveModule: "auth"}
		require.NoError(t, s.SaveState(ctx, want))

		got, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("StateLoadIsACopy", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.SaveState(ctx, types.WorkflowState{
			CurrentStage: "plan",
			Checklist:    []types.CheckItem{{Text: "Write design doc"}},
		}))

		first, err := s.LoadState(ctx)
		require.NoError(t, err)
		first.Checklist[0].Checked = true

		second, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.False(t, second.Checklist[0].Checked)
	})

	t.Run("RetryLoadIsACopy", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.SaveRetry(ctx, types.RetryState{Items: map[string]types.RetryRecord{
			"k": {Attempts: 1},
		}}))

		first, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		first.Items["k"] = types.RetryRecord{Attempts: 99}

		second, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Items["k"].Attempts)
	})

	t.Run("ClearRetry", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.SaveRetry(ctx, types.RetryState{Items: map[string]types.RetryRecord{"k": {Attempts: 1}}}))
		require.NoError(t, s.ClearRetry(ctx))

		rs, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Empty(t, rs.Items)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := NewMemoryStore()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.LoadState(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyki111/workflow-tool/types"
)

func newTestFileStore(t *testing.T) *FileStore {
	dir := t.TempDir()
	return NewFileStore(filepath.Join(dir, ".workflow", "state.json"), filepath.Join(dir, ".workflow", "retry.json"))
}

func TestFileStoreState(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingFileYieldsZeroState", func(t *testing.T) {
		s := newTestFileStore(t)
		st, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Empty(t, st.CurrentStage)
		assert.Empty(t, st.Checklist)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newTestFileStore(t)
		want := types.WorkflowState{
			CurrentStage: "impl",
			ActiveModule: "auth",
			Checklist: []types.CheckItem{
				{Text: "write code", Checked: true, Evidence: "commit abc"},
				{Text: "[USER-APPROVE] ship it"},
			},
		}
		require.NoError(t, s.SaveState(ctx, want))

		got, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// Saving again with no changes is a no-op on the content.
		require.NoError(t, s.SaveState(ctx, got))
		again, err := s.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, again)
	})

	t.Run("CorruptFile", func(t *testing.T) {
		dir := t.TempDir()
		statePath := filepath.Join(dir, "state.json")
		require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0o644))

		s := NewFileStore(statePath, filepath.Join(dir, "retry.json"))
		_, err := s.LoadState(ctx)
		assert.ErrorIs(t, err, ErrStateCorrupt)
	})

	t.Run("NoTempFilesLeftBehind", func(t *testing.T) {
		dir := t.TempDir()
		s := NewFileStore(filepath.Join(dir, "state.json"), filepath.Join(dir, "retry.json"))
		require.NoError(t, s.SaveState(ctx, types.WorkflowState{CurrentStage: "plan"}))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "state.json", entries[0].Name())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := newTestFileStore(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := s.LoadState(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, s.SaveState(cancelled, types.WorkflowState{}), context.Canceled)
	})
}

func TestFileStoreRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingFileYieldsEmpty", func(t *testing.T) {
		s := newTestFileStore(t)
		rs, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.NotNil(t, rs.Items)
		assert.Empty(t, rs.Items)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newTestFileStore(t)
		rs := types.RetryState{Items: map[string]types.RetryRecord{
			"impl#0": {Attempts: 2, Goal: "run tests", LastFailure: "2 tests failed"},
		}}
		require.NoError(t, s.SaveRetry(ctx, rs))

		got, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Equal(t, rs, got)
	})

	t.Run("CorruptRetryIsDiscarded", func(t *testing.T) {
		dir := t.TempDir()
		retryPath := filepath.Join(dir, "retry.json")
		require.NoError(t, os.WriteFile(retryPath, []byte("garbage"), 0o644))

		s := NewFileStore(filepath.Join(dir, "state.json"), retryPath)
		rs, err := s.LoadRetry(ctx)
		require.NoError(t, err, "retry state is ephemeral; corruption never blocks")
		assert.Empty(t, rs.Items)
	})

	t.Run("ClearRetry", func(t *testing.T) {
		s := newTestFileStore(t)
		require.NoError(t, s.SaveRetry(ctx, types.RetryState{Items: map[string]types.RetryRecord{"k": {Attempts: 1}}}))
		require.NoError(t, s.ClearRetry(ctx))

		rs, err := s.LoadRetry(ctx)
		require.NoError(t, err)
		assert.Empty(t, rs.Items)

		// Clearing an already-clear store is fine.
		assert.NoError(t, s.ClearRetry(ctx))
	})
}

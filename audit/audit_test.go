package audit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("AppendAndReadBack", func(t *testing.T) {
		l, err := NewLogger(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, l.Log(EventManualCheck, Entry{Actor: "user", Stage: "impl", Item: "run tests"}))
		require.NoError(t, l.Log(EventTransition, Entry{Actor: "user", FromStage: "impl", ToStage: "review"}))

		entries, err := l.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, EventManualCheck, entries[0].Event)
		assert.Equal(t, "run tests", entries[0].Item)
		assert.NotZero(t, entries[0].ID)
		assert.False(t, entries[0].Timestamp.IsZero())

		assert.Equal(t, EventTransition, entries[1].Event)
		assert.Equal(t, "impl", entries[1].FromStage)
		assert.Equal(t, "review", entries[1].ToStage)
		assert.NotEqual(t, entries[0].ID, entries[1].ID)
	})

	t.Run("EmptyLog", func(t *testing.T) {
		l, err := NewLogger(t.TempDir())
		require.NoError(t, err)

		entries, err := l.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("BadLinesSkipped", func(t *testing.T) {
		dir := t.TempDir()
		l, err := NewLogger(dir)
		require.NoError(t, err)

		require.NoError(t, l.Log(EventModuleSet, Entry{Module: "auth"}))

		f, err := os.OpenFile(l.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString("{truncated entr")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		require.NoError(t, l.Log(EventModuleSet, Entry{Module: "billing"}))

		entries, err := l.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "auth", entries[0].Module)
		assert.Equal(t, "billing", entries[1].Module)
	})
}

func TestHasAgentReview(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.Log(EventAgentReview, Entry{Agent: "reviewer", Stage: "impl", Summary: "looks good"}))

	t.Run("Found", func(t *testing.T) {
		ok, err := l.HasAgentReview("reviewer", "impl")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("WrongStage", func(t *testing.T) {
		ok, err := l.HasAgentReview("reviewer", "plan")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("WrongAgent", func(t *testing.T) {
		ok, err := l.HasAgentReview("stranger", "impl")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestFileHash(t *testing.T) {
	t.Run("KnownDigest", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f.txt")
		require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
		// sha256("abc")
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", FileHash(path))
	})

	t.Run("MissingFile", func(t *testing.T) {
		assert.Equal(t, "not_found", FileHash(filepath.Join(t.TempDir(), "ghost")))
	})
}

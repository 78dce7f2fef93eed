package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".workflow", "secret")

	t.Run("SaveAndVerify", func(t *testing.T) {
		require.NoError(t, SaveSecret(path, "open sesame"))

		ok, err := VerifyToken(path, "open sesame")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = VerifyToken(path, "wrong phrase")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("OnlyHashStored", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "open sesame")
		assert.Equal(t, HashToken("open sesame"), string(data))
	})

	t.Run("RestrictivePermissions", func(t *testing.T) {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})
}

func TestVerifyToken(t *testing.T) {
	t.Run("MissingSecretFile", func(t *testing.T) {
		ok, err := VerifyToken(filepath.Join(t.TempDir(), "ghost"), "anything")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRequireToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, SaveSecret(path, "phrase"))

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, RequireToken(path, "phrase"))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.ErrorIs(t, RequireToken(path, ""), ErrTokenRequired)
	})

	t.Run("Mismatch", func(t *testing.T) {
		assert.ErrorIs(t, RequireToken(path, "nope"), ErrInvalidToken)
	})

	t.Run("NoSecretConfigured", func(t *testing.T) {
		err := RequireToken(filepath.Join(t.TempDir(), "ghost"), "anything")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestGenerate(t *testing.T) {
	prompter := func(answers ...string) func(string) (string, error) {
		i := 0
		return func(label string) (string, error) {
			a := answers[i]
			i++
			return a, nil
		}
	}

	t.Run("StoresOnMatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		require.NoError(t, Generate(path, prompter("phrase", "phrase")))

		ok, err := VerifyToken(path, "phrase")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		assert.ErrorIs(t, Generate(path, prompter("one", "two")), ErrMismatch)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("EmptyPhrase", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secret")
		assert.ErrorIs(t, Generate(path, prompter("", "")), ErrInvalidToken)
	})
}

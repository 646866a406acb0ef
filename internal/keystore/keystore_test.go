package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "static")

	secret, err := Generate()
	require.NoError(t, err)

	require.NoError(t, Save(path, []byte("hunter2"), secret))

	got, err := Load(path, []byte("hunter2"))
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestLoadWrongPassphraseProducesDifferentSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "static")

	secret, err := Generate()
	require.NoError(t, err)
	require.NoError(t, Save(path, []byte("right"), secret))

	got, err := Load(path, []byte("wrong"))
	require.NoError(t, err, "CTR decryption doesn't fail on a wrong key, it just produces garbage")
	require.NotEqual(t, secret, got)
}

func TestLoadOrCreateCreatesOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "static")

	first, err := LoadOrCreate(path, []byte("pw"))
	require.NoError(t, err)

	second, err := LoadOrCreate(path, []byte("pw"))
	require.NoError(t, err)
	require.Equal(t, first, second, "second call loads the persisted secret instead of generating a new one")
}

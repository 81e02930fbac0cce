package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsZeroValues(t *testing.T) {
	var s Settings
	s.SetDefaults()

	assert.Equal(t, DefaultUpstreamBaseURL, s.UpstreamBaseURL)
	assert.Equal(t, DefaultModel, s.DefaultModel)
	assert.Equal(t, DefaultPort, s.Port)
	assert.Equal(t, int64(DefaultMaxBodyBytes), s.MaxBodyBytes)
	assert.Equal(t, DefaultAdminPassword, s.AdminSecret)
	assert.Len(t, s.LocalAPIKey, 64, "generated 32-byte key as hex")
}

func TestValidateRejectsNonHTTPS(t *testing.T) {
	var s Settings
	s.SetDefaults()
	s.UpstreamBaseURL = "http://upstream.example"
	require.Error(t, s.Validate())

	s.UpstreamBaseURL = "https://upstream.example"
	require.NoError(t, s.Validate())
}

func TestValidatePortRange(t *testing.T) {
	var s Settings
	s.SetDefaults()
	s.Port = 70000
	assert.Error(t, s.Validate())
}

func TestRedactedOmitsSecret(t *testing.T) {
	var s Settings
	s.SetDefaults()
	s.AdminSecret = "$2a$10$something"

	out := s.Redacted()
	assert.Empty(t, out.AdminSecret)
	assert.Equal(t, s.LocalAPIKey, out.LocalAPIKey)
}

func TestSecretHashed(t *testing.T) {
	s := Settings{AdminSecret: "plaintext"}
	assert.False(t, s.SecretHashed())
	s.AdminSecret = "$2a$10$abcdef"
	assert.True(t, s.SecretHashed())
	s.AdminSecret = "$2b$10$abcdef"
	assert.True(t, s.SecretHashed())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LLMRELAY_DEFAULT_MODEL", "gemini-2.5-flash")
	t.Setenv("LLMRELAY_UPSTREAM_API_KEY", "env-key")

	settings, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", settings.DefaultModel)
	assert.Equal(t, "env-key", settings.UpstreamAPIKey)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	store, err := Open(path, "")
	require.NoError(t, err)
	key := store.Get().LocalAPIKey
	require.NotEmpty(t, key)

	_, err = store.Update(func(s *Settings) error {
		s.DefaultModel = "gemini-2.5-flash"
		return nil
	})
	require.NoError(t, err)

	reopened, err := Open(path, "")
	require.NoError(t, err)
	assert.Equal(t, key, reopened.Get().LocalAPIKey, "generated key survives restart")
	assert.Equal(t, "gemini-2.5-flash", reopened.Get().DefaultModel)
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := Open(path, "")
	require.NoError(t, err)

	before := store.Get()
	_, err = store.Update(func(s *Settings) error {
		s.UpstreamBaseURL = "http://insecure.example"
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, before, store.Get(), "failed update leaves the snapshot untouched")
}

func TestStoreWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	_, err := Open(path, "")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "settings.json", entries[0].Name())
}

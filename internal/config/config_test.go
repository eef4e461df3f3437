package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret.key")
	t.Setenv("SECRET_FILE", secretFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "expenses.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.NotEmpty(t, cfg.SecretKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("SECRET_KEY", "configured-secret")
	t.Setenv("TOKEN_TTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "configured-secret", cfg.SecretKey)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
}

func TestLoad_SecretPersistsAcrossRuns(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret.key")
	t.Setenv("SECRET_FILE", secretFile)

	first, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, first.SecretKey)
	assert.FileExists(t, secretFile)

	// Same secret on the next run, so outstanding tokens stay valid
	second, err := Load()
	require.NoError(t, err)
	assert.Equal(t, first.SecretKey, second.SecretKey)
}

func TestLoad_ExplicitSecretSkipsFile(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret.key")
	t.Setenv("SECRET_FILE", secretFile)
	t.Setenv("SECRET_KEY", "explicit")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.SecretKey)
	assert.NoFileExists(t, secretFile)
}

func TestLoadOrCreateSecret_FilePermissions(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "secret.key")

	key, err := loadOrCreateSecret(secretFile)
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	info, err := os.Stat(secretFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(secretFile)
	require.NoError(t, err)
	assert.Equal(t, key, strings.TrimSpace(string(data)))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "key.txt", cfg.KeyFile)
	assert.Equal(t, "aes-cbc", cfg.Cipher)
	assert.Equal(t, uint(5555), cfg.Port)
	assert.Equal(t, uint(4), cfg.Workers)
	assert.Equal(t, uint(5), cfg.Retries)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "inproc://workers", cfg.WorkerEndpoint)
	assert.Equal(t, []string{"password"}, cfg.HiddenKeys)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZBROKER_PORT", "6000")
	t.Setenv("ZBROKER_WORKERS", "2")
	t.Setenv("ZBROKER_TIMEOUT", "250ms")
	t.Setenv("ZBROKER_HIDDEN_KEYS", "password, token ,")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint(6000), cfg.Port)
	assert.Equal(t, uint(2), cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"password", "token"}, cfg.HiddenKeys)
	assert.True(t, cfg.IsHidden("token"))
	assert.False(t, cfg.IsHidden("user"))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zbroker.env")
	require.NoError(t, os.WriteFile(path, []byte("ZBROKER_RETRIES=3\nZBROKER_CIPHER=xchacha20poly1305\n"), 0600))

	// Don't leak the variables godotenv sets into other tests.
	t.Setenv("ZBROKER_RETRIES", "")
	t.Setenv("ZBROKER_CIPHER", "")
	os.Unsetenv("ZBROKER_RETRIES")
	os.Unsetenv("ZBROKER_CIPHER")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint(3), cfg.Retries)
	assert.Equal(t, "xchacha20poly1305", cfg.Cipher)
}

func TestMissingEnvFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.Cipher = "rot13"
	cfg.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZBROKER_WORKERS")
	assert.Contains(t, err.Error(), "ZBROKER_CIPHER")
	assert.Contains(t, err.Error(), "ZBROKER_PORT")
}

func TestURLs(t *testing.T) {
	cfg := Default()
	cfg.Host = "*"
	cfg.Port = 7000

	assert.Equal(t, "tcp://*:7000", cfg.BindURL())
	assert.Equal(t, "tcp://127.0.0.1:7000", cfg.ConnectURL())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photocore/phashcore/internal/phash"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, phash.DefaultOptions(), cfg.HashOptions())
	assert.True(t, cfg.IsImage(".JPG"))
	assert.False(t, cfg.IsImage(".mp4"))
}

func TestLoadHashSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
hash:
  addressing: row_major
  transform: direct
  parallel: true
cache:
  ttl: 30s
storage:
  media_paths: [/photos]
`))
	require.NoError(t, err)

	opts := cfg.HashOptions()
	assert.Equal(t, phash.AddressingRowMajor, opts.Addressing)
	assert.Equal(t, phash.TransformDirectMode, opts.Transform)
	assert.True(t, opts.Parallel)
	assert.Equal(t, "dct-32-8-row_major", opts.Signature())
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, []string{"/photos"}, cfg.Storage.MediaPaths)
}

func TestLoadRejectsBadHashSection(t *testing.T) {
	_, err := Load(writeConfig(t, "hash:\n  addressing: diagonal\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "hash:\n  size: 8\n  low_size: 8\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "./data/phash.db", cfg.Storage.DBPath)
}

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

	assert.Equal(t, "snapdoc.json", cfg.Store.Path)
	assert.Equal(t, "file", cfg.Store.Medium)
	assert.Equal(t, "json", cfg.Store.Codec)
	assert.Equal(t, 10, cfg.Lock.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Lock.StaleAfter.Std())
	assert.Empty(t, cfg.Encryption.Key)
	assert.Equal(t, 4, cfg.History.Workers)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Store, cfg.Store)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapdoc.yaml")
	doc := `
store:
  path: data/app.yaml
  medium: sqlite
  codec: yaml
lock:
  backoff: 100ms
encryption:
  key: hunter2
cache:
  ttl: 1m
  size: 64
author:
  name: Ada
  email: ada@example.com
history:
  workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/app.yaml", cfg.Store.Path)
	assert.Equal(t, "sqlite", cfg.Store.Medium)
	assert.Equal(t, "yaml", cfg.Store.Codec)
	assert.Equal(t, 100*time.Millisecond, cfg.Lock.Backoff.Std())
	assert.Equal(t, 10, cfg.Lock.MaxRetries, "unset fields keep defaults")
	assert.Equal(t, "hunter2", cfg.Encryption.Key)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, "Ada", cfg.Author.Name)
	assert.Equal(t, 8, cfg.History.Workers)
	assert.Equal(t, "data/app.yaml.lock", cfg.LockPath())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lock:\n  backoff: soon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationAcceptsNanoseconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapdoc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: 5000000000\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL.Std())
}

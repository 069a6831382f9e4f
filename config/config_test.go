package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultEcosystems, cfg.Ecosystems)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, "/tmp/repocache", cfg.RepoCacheDir)
	assert.Equal(t, "github-linguist", cfg.LinguistCmd)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, "revision-events", cfg.KafkaTopic)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
workers: 3
repo_cache_dir: /var/cache/repos
linguist_cmd: /usr/local/bin/github-linguist
task_timeout: 30m
ecosystems:
  - npm
  - PyPI
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "/var/cache/repos", cfg.RepoCacheDir)
	assert.Equal(t, "/usr/local/bin/github-linguist", cfg.LinguistCmd)
	assert.Equal(t, 30*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, []string{"npm", "PyPI"}, cfg.Ecosystems)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\n"), 0o600))

	t.Setenv("PIPELINE_WORKERS", "8")
	t.Setenv("OSV_ECOSYSTEMS", "Go,crates.io")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"Go", "crates.io"}, cfg.Ecosystems)
}

func TestLoadBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task_timeout: soon\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidWorkerCountFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: -2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
}

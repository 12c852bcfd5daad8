package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 1, cfg.Processing.NumThreads)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doublelog.yml")
	data := []byte(`processing:
  num_threads: 6
output:
  metrics_file: /tmp/doublelog.prom
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Processing.NumThreads)
	assert.Equal(t, 1, cfg.Processing.RegionsPerWorker, "unset keys keep defaults")
	assert.Equal(t, "/tmp/doublelog.prom", cfg.Output.MetricsFile)
	assert.Equal(t, "slices", cfg.Output.SlicesDir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doublelog.yml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  num_threads: 2\n"), 0o644))

	t.Setenv("DOUBLELOG_PROCESSING__NUM_THREADS", "12")
	t.Setenv("DOUBLELOG_LOG__JSON", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Processing.NumThreads)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [unclosed\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doublelog.yml")

	cfg := DefaultConfig()
	cfg.Processing.NumThreads = 3
	cfg.Processing.RegionsPerWorker = 4
	cfg.Output.ExtractSlices = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yml")
	require.NoError(t, CreateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "num_threads: 1")
	assert.Contains(t, string(data), "regions_per_worker: 1")
}

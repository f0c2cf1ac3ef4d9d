package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	baseDir := t.TempDir()

	cfg, err := LoadSettings(baseDir)
	require.NoError(t, err)
	assert.Equal(t, baseDir, cfg.Home)
	assert.Equal(t, "data", cfg.DataRoot)
	assert.Equal(t, filepath.Join(baseDir, "manifest.db"), cfg.ManifestPath)
	assert.Equal(t, "export", cfg.ExportDir)
	assert.Equal(t, 20, cfg.MaxWorkers)
	assert.Equal(t, 5, cfg.ExchangeSlots)
	assert.Equal(t, "info", cfg.StderrLevel)
	assert.Equal(t, "candlelake", cfg.Offload.Prefix)
	assert.Empty(t, cfg.Offload.Bucket)
}

func TestLoadSettingsOverrides(t *testing.T) {
	baseDir := t.TempDir()
	settings := `{
		"data_root": "/mnt/lake",
		"max_workers": 4,
		"exchange_slots": 2,
		"stderr_level": "debug",
		"offload_bucket": "my-archive",
		"offload_region": "eu-west-1"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "setting.json"), []byte(settings), 0o644))

	cfg, err := LoadSettings(baseDir)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/lake", cfg.DataRoot)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 2, cfg.ExchangeSlots)
	assert.Equal(t, "debug", cfg.StderrLevel)
	assert.Equal(t, "my-archive", cfg.Offload.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Offload.Region)
	// Unset fields keep their defaults.
	assert.Equal(t, "export", cfg.ExportDir)
	assert.Equal(t, "candlelake", cfg.Offload.Prefix)
}

func TestLoadSettingsZeroValuesRespected(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "setting.json"),
		[]byte(`{"export_dir": ""}`), 0o644))

	cfg, err := LoadSettings(baseDir)
	require.NoError(t, err)
	// Explicit empty string is kept, not replaced by the default.
	assert.Equal(t, "", cfg.ExportDir)
}

func TestLoadSettingsInvalidJSON(t *testing.T) {
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "setting.json"), []byte("{broken"), 0o644))

	_, err := LoadSettings(baseDir)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default(".candlelake")
	assert.Equal(t, 20, cfg.MaxWorkers)
	assert.Equal(t, filepath.Join(".candlelake", "manifest.db"), cfg.ManifestPath)
}

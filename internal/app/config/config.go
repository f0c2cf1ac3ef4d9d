// Package config loads runtime configuration for the lake.
//
// Configuration lives in <base>/setting.json; every field is optional and
// falls back to a default. The base directory defaults to ".candlelake"
// and can be overridden with the CANDLELAKE_HOME environment variable.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppConfig holds the resolved runtime configuration.
type AppConfig struct {
	Home          string
	DataRoot      string
	ManifestPath  string
	ExportDir     string
	MaxWorkers    int
	ExchangeSlots int
	StderrLevel   string
	Offload       OffloadConfig
}

// OffloadConfig configures the optional S3 cold-partition offload.
type OffloadConfig struct {
	Bucket string
	Prefix string
	Region string
}

// RawSettings mirrors setting.json. Pointer fields distinguish "absent"
// from a zero value.
type RawSettings struct {
	DataRoot      *string `json:"data_root"`
	ManifestPath  *string `json:"manifest_path"`
	ExportDir     *string `json:"export_dir"`
	MaxWorkers    *int    `json:"max_workers"`
	ExchangeSlots *int    `json:"exchange_slots"`
	StderrLevel   *string `json:"stderr_level"`
	OffloadBucket *string `json:"offload_bucket"`
	OffloadPrefix *string `json:"offload_prefix"`
	OffloadRegion *string `json:"offload_region"`
}

// LoadSettings loads configuration from <baseDir>/setting.json.
// Priority: setting.json > defaults.
func LoadSettings(baseDir string) (AppConfig, error) {
	settings := &RawSettings{}

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return AppConfig{}, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
	}

	applyDefaults(settings, baseDir)
	return buildAppConfig(settings, baseDir), nil
}

// Default returns the configuration used when no setting.json exists.
func Default(baseDir string) AppConfig {
	settings := &RawSettings{}
	applyDefaults(settings, baseDir)
	return buildAppConfig(settings, baseDir)
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings, baseDir string) {
	if settings.DataRoot == nil {
		v := "data"
		settings.DataRoot = &v
	}
	if settings.ManifestPath == nil {
		v := filepath.Join(baseDir, "manifest.db")
		settings.ManifestPath = &v
	}
	if settings.ExportDir == nil {
		v := "export"
		settings.ExportDir = &v
	}
	if settings.MaxWorkers == nil {
		v := 20
		settings.MaxWorkers = &v
	}
	if settings.ExchangeSlots == nil {
		v := 5
		settings.ExchangeSlots = &v
	}
	if settings.StderrLevel == nil {
		v := "info"
		settings.StderrLevel = &v
	}
	if settings.OffloadBucket == nil {
		v := ""
		settings.OffloadBucket = &v
	}
	if settings.OffloadPrefix == nil {
		v := "candlelake"
		settings.OffloadPrefix = &v
	}
	if settings.OffloadRegion == nil {
		v := ""
		settings.OffloadRegion = &v
	}
}

func buildAppConfig(settings *RawSettings, baseDir string) AppConfig {
	return AppConfig{
		Home:          baseDir,
		DataRoot:      *settings.DataRoot,
		ManifestPath:  *settings.ManifestPath,
		ExportDir:     *settings.ExportDir,
		MaxWorkers:    *settings.MaxWorkers,
		ExchangeSlots: *settings.ExchangeSlots,
		StderrLevel:   *settings.StderrLevel,
		Offload: OffloadConfig{
			Bucket: *settings.OffloadBucket,
			Prefix: *settings.OffloadPrefix,
			Region: *settings.OffloadRegion,
		},
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadYAML(t *testing.T, body string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := loadYAML(t, "server:\n  port: 9090\n")

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "basic", cfg.ML.FeatureMode)
	assert.InDelta(t, 0.8, cfg.ML.ConfidenceThreshold, 1e-9)
	require.NotNil(t, cfg.Retention.MaxAgeDays)
	assert.Equal(t, 30, *cfg.Retention.MaxAgeDays)
}

func TestLoadKeepsExplicitZeroMaxAge(t *testing.T) {
	// maxAgeDays: 0 means every entry is stale; it must not be coerced
	// to the 30-day default.
	cfg := loadYAML(t, "retention:\n  maxAgeDays: 0\n  minResultsToKeep: 5\n")

	require.NotNil(t, cfg.Retention.MaxAgeDays)
	assert.Equal(t, 0, *cfg.Retention.MaxAgeDays)
	assert.Equal(t, 5, cfg.Retention.MinResultsToKeep)
}

func TestLoadRejectsNegativeMaxAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention:\n  maxAgeDays: -1\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: oracle\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

package config_test

import (
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WPINSIGHT_ENV", config.Test)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "wpinsight", cfg.AppName)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 7*24*time.Hour, cfg.AttributionHalfLife())
	assert.Equal(t, 12, cfg.RetentionMonths)
	assert.Equal(t, "last_click", cfg.DefaultAttributionModel)
	assert.Equal(t, []string{"first_click", "last_click", "linear", "time_decay"}, cfg.AttributionModels)
	assert.Equal(t, "storage/wpinsight-test.db", cfg.DatabaseName)
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WPINSIGHT_ENV", config.Test)
	t.Setenv("WPINSIGHT_SESSION_TIMEOUT_SECONDS", "600")
	t.Setenv("WPINSIGHT_ATTRIBUTION_MODELS", "linear, time_decay")
	t.Setenv("WPINSIGHT_RETENTION_MONTHS", "0")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, []string{"linear", "time_decay"}, cfg.AttributionModels)
	assert.Equal(t, 0, cfg.RetentionMonths)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	t.Run("unknown environment", func(t *testing.T) {
		t.Setenv("WPINSIGHT_ENV", "staging")
		_, err := config.Load()
		assert.ErrorContains(t, err, "invalid environment")
	})

	t.Run("production with default key", func(t *testing.T) {
		t.Setenv("WPINSIGHT_ENV", config.Production)
		_, err := config.Load()
		assert.ErrorContains(t, err, "WPINSIGHT_PRIVATE_KEY")
	})

	t.Run("negative retention", func(t *testing.T) {
		t.Setenv("WPINSIGHT_ENV", config.Test)
		t.Setenv("WPINSIGHT_RETENTION_MONTHS", "-1")
		_, err := config.Load()
		assert.ErrorContains(t, err, "retention")
	})
}

func TestGetConfigCachesUntilReset(t *testing.T) {
	t.Setenv("WPINSIGHT_ENV", config.Test)
	config.Reset()
	t.Cleanup(config.Reset)

	first := config.GetConfig()
	t.Setenv("WPINSIGHT_RETENTION_MONTHS", "3")
	assert.Same(t, first, config.GetConfig())
	assert.Equal(t, 12, first.RetentionMonths)

	config.Reset()
	assert.Equal(t, 3, config.GetConfig().RetentionMonths)
}

func TestConfigProvidesCartridgeLogSettings(t *testing.T) {
	t.Setenv("WPINSIGHT_ENV", config.Test)
	t.Setenv("WPINSIGHT_LOGS_DIR", "var/log")
	cfg, err := config.Load()
	require.NoError(t, err)

	var provider cartridge.LogConfigProvider = cfg
	var _ cartridge.Config = cfg

	logCfg := cartridge.LogConfigFromProvider(provider)
	assert.Equal(t, "wpinsight", logCfg.AppName)
	assert.Equal(t, "info", logCfg.Level)
	assert.Equal(t, "var/log", logCfg.Directory)
	assert.Equal(t, 20, logCfg.MaxSizeMB)
	assert.Equal(t, 10, logCfg.MaxBackups)
	assert.Equal(t, 30, logCfg.MaxAgeDays)
}

package internal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal"
	"wpinsight/internal/attribution"
	"wpinsight/internal/config"
	"wpinsight/internal/testsupport"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:                  "wpinsight",
		Environment:              config.Test,
		PrivateKey:               testsupport.TestSecret,
		SessionTimeoutSeconds:    1800,
		SiteHostname:             testsupport.SiteHostname,
		DefaultCurrency:          "eur",
		AttributionModels:        []string{"last_click", "linear"},
		DefaultAttributionModel:  "linear",
		AttributionHalfLifeHours: 168,
		RetentionMonths:          12,
	}
}

func TestApplicationWiring(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	app, err := internal.NewAppWithDBManager(testConfig(), logger, dbManager)
	require.NoError(t, err)
	require.NoError(t, app.Migrate())

	assert.Equal(t, attribution.ModelLinear, app.DefaultModel)
	assert.Equal(t, []attribution.Model{attribution.ModelLastClick, attribution.ModelLinear}, app.Recorder.Models())
	assert.Equal(t, 30*time.Minute, app.Identity.SessionTimeout())
	assert.Equal(t, 12, app.Sweeper.HorizonMonths())

	ctx := context.Background()
	tracked, err := app.Tracker.Track(ctx, testsupport.Pageview("203.0.113.9", testsupport.DesktopUserAgent,
		"https://shop.example.com/?utm_source=google&utm_medium=cpc", "", time.Now()))
	require.NoError(t, err)

	result, err := app.Recorder.RecordConversion(ctx, attribution.Order{
		OrderID:   "wc-42",
		SessionID: tracked.Event.SessionID,
		Amount:    1500,
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", result.Conversion.Currency, "default currency applies")
	assert.Len(t, result.Allocations, 2)

	require.NoError(t, app.Start())
	assert.True(t, app.Scheduler().IsRunning())
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(shutdownCtx))
	assert.False(t, app.Scheduler().IsRunning())
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	cfg := testConfig()
	cfg.AttributionModels = []string{"u_shaped"}
	_, err := internal.NewAppWithDBManager(cfg, logger, dbManager)
	assert.ErrorIs(t, err, attribution.ErrUnknownModel)

	cfg = testConfig()
	cfg.DefaultCurrency = "ZZZ"
	_, err = internal.NewAppWithDBManager(cfg, logger, dbManager)
	assert.Error(t, err)
}

package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/config"
	"wpinsight/internal/database"
	"wpinsight/internal/testsupport"
)

func TestMigrateDatabase(t *testing.T) {
	cfg := &config.Config{
		Environment:  config.Test,
		DatabaseName: filepath.Join(t.TempDir(), "wpinsight.db"),
	}
	dm := database.NewDBManager(cfg, testsupport.GetLogger())
	require.NoError(t, dm.Init())
	require.NoError(t, dm.MigrateDatabase())

	db := dm.GetConnection()
	for _, table := range []string{
		"event_definitions", "events", "sessions", "touchpoints",
		"daily_aggregates", "revenue_stats", "conversions", "attribution_allocations",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// Migrating twice is a no-op
	require.NoError(t, dm.MigrateDatabase())
}

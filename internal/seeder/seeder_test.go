package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/attribution"
	"wpinsight/internal/registry"
	"wpinsight/internal/seeder"
	"wpinsight/internal/testsupport"
)

func TestSeederDrivesPipeline(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	p := testsupport.NewPipeline(t, db)
	s := seeder.NewSeeder(p.Registry, p.Tracker, p.Recorder, testsupport.GetLogger())
	ctx := context.Background()

	result, err := s.Run(ctx, seeder.Options{
		Sessions: 60,
		Days:     7,
		Now:      time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		Seed:     42,
	})
	require.NoError(t, err)
	assert.Positive(t, result.Hits)
	assert.Equal(t, int64(result.Hits), testsupport.CountRows(t, db, "events"))
	assert.Equal(t, int64(result.Conversions), testsupport.CountRows(t, db, "conversions"))

	def, err := p.Registry.Lookup(ctx, "video_play")
	require.NoError(t, err)
	assert.Equal(t, registry.CategoryVideo, def.Category)

	var conversions []attribution.Conversion
	require.NoError(t, db.Find(&conversions).Error)
	for _, conv := range conversions {
		byModel, err := p.Recorder.Allocations(ctx, conv.OrderID)
		require.NoError(t, err)
		for model, allocs := range byModel {
			var sum int64
			for _, a := range allocs {
				sum += a.RevenueShare
			}
			assert.Equal(t, conv.Amount, sum, "%s %s", conv.OrderID, model)
		}
	}
}

func TestSeederIsReproducible(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	run := func() (seeder.Result, int64) {
		p := testsupport.NewPipeline(t, db)
		result, err := seeder.NewSeeder(p.Registry, p.Tracker, p.Recorder, nil).Run(context.Background(), seeder.Options{
			Sessions: 20,
			Now:      time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
			Seed:     7,
		})
		require.NoError(t, err)
		return result, testsupport.CountRows(t, db, "touchpoints")
	}

	first, firstTouchpoints := run()
	testsupport.CleanTables(db)
	second, secondTouchpoints := run()

	assert.Equal(t, first, second)
	assert.Equal(t, firstTouchpoints, secondTouchpoints)
}

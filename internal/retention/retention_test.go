package retention_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/events"
	"wpinsight/internal/registry"
	"wpinsight/internal/retention"
	"wpinsight/internal/sessions"
	"wpinsight/internal/testsupport"
	"wpinsight/internal/touchpoints"
)

var now = time.Date(2026, 6, 15, 13, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, prefix string, at time.Time, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		sessionID := fmt.Sprintf("%s-%d", prefix, i)
		require.NoError(t, db.Create(&sessions.Session{
			SessionID: sessionID,
			VisitorID: "visitor-" + sessionID,
			FirstSeen: at,
			LastSeen:  at,
		}).Error)
		require.NoError(t, db.Create(&events.Event{
			EventName: registry.EventPageview,
			Category:  registry.CategoryEngagement,
			Timestamp: at,
			VisitorID: "visitor-" + sessionID,
			SessionID: sessionID,
		}).Error)
		require.NoError(t, touchpoints.NewLedger(db).Append(ctx, &touchpoints.Touchpoint{
			SessionID:  sessionID,
			OccurredAt: at,
			SourceType: touchpoints.SourcePageview,
			Source:     "direct",
		}))
		require.NoError(t, aggregates.NewStore(db).Increment(ctx, aggregates.Key{
			Date:           at,
			MetricType:     aggregates.MetricPageviews,
			Dimension:      aggregates.DimensionSite,
			DimensionValue: aggregates.SiteAll,
		}, 1))
	}
}

func TestCutoff(t *testing.T) {
	s := retention.NewSweeper(nil, testsupport.GetLogger(), 3)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), s.Cutoff(now))

	local := now.In(time.FixedZone("UTC+14", 14*3600))
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), s.Cutoff(local))
}

func TestRunPurgesRawRowsOnly(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seed(t, db, "old", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), 5)
	seed(t, db, "edge", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 1)
	seed(t, db, "new", time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), 3)

	s := retention.NewSweeper(db, testsupport.GetLogger(), 3,
		retention.WithBatchSize(2),
		retention.WithBatchPause(0),
		retention.WithClock(func() time.Time { return now }))

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Events)
	assert.Equal(t, int64(5), result.Touchpoints)
	assert.Equal(t, int64(5), result.Sessions)
	assert.Equal(t, int64(15), result.Total())

	assert.Equal(t, int64(4), testsupport.CountRows(t, db, "events"), "rows at the cutoff are kept")
	assert.Equal(t, int64(4), testsupport.CountRows(t, db, "touchpoints"))
	assert.Equal(t, int64(4), testsupport.CountRows(t, db, "sessions"))
	assert.Equal(t, int64(3), testsupport.CountRows(t, db, "daily_aggregates"), "aggregates are never purged")

	again, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestRunDisabledWithZeroHorizon(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seed(t, db, "old", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 2)

	result, err := retention.NewSweeper(db, testsupport.GetLogger(), 0).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Total())
	assert.Equal(t, int64(2), testsupport.CountRows(t, db, "events"))
}

func TestPurgeHonorsCancellation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seed(t, db, "old", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := retention.NewSweeper(db, testsupport.GetLogger(), 3, retention.WithBatchSize(1))
	_, err := s.Purge(ctx, now)
	assert.Error(t, err)
	assert.Equal(t, int64(3), testsupport.CountRows(t, db, "events"))
}

package aggregates_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/testsupport"
)

var day = time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

func TestIncrementConcurrent(t *testing.T) {
	db := testsupport.SetupFileDB(t, 8)
	store := aggregates.NewStore(db)
	key := aggregates.Key{Date: day, MetricType: "pageview", Dimension: "page", DimensionValue: "/x"}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Increment(context.Background(), key, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	r, err := aggregates.NewDateRange(day, day)
	require.NoError(t, err)
	total, err := store.Total(context.Background(), "pageview", r, "page", "/x")
	require.NoError(t, err)
	assert.Equal(t, int64(n), total)
	assert.Equal(t, int64(1), testsupport.CountRows(t, db, "daily_aggregates"))
}

func TestQueryGroupsAndOrders(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := aggregates.NewStore(db)
	ctx := context.Background()

	inc := func(at time.Time, dim, value string, delta int64) {
		require.NoError(t, store.Increment(ctx, aggregates.Key{Date: at, MetricType: aggregates.MetricPageviews,
			Dimension: dim, DimensionValue: value}, delta))
	}
	inc(day, aggregates.DimensionPage, "/a", 3)
	inc(day.AddDate(0, 0, 1), aggregates.DimensionPage, "/a", 2)
	inc(day, aggregates.DimensionPage, "/b", 5)
	inc(day, aggregates.DimensionPage, "/c", 5)
	inc(day.AddDate(0, 0, 5), aggregates.DimensionPage, "/b", 100) // outside range
	inc(day, aggregates.DimensionReferrer, "", 1)

	r, err := aggregates.NewDateRange(day, day.AddDate(0, 0, 1))
	require.NoError(t, err)

	rows, err := store.Query(ctx, aggregates.MetricPageviews, r, aggregates.DimensionPage)
	require.NoError(t, err)
	assert.Equal(t, []aggregates.Row{
		{Dimension: "page", DimensionValue: "/a", Value: 5},
		{Dimension: "page", DimensionValue: "/b", Value: 5},
		{Dimension: "page", DimensionValue: "/c", Value: 5},
	}, rows)

	top, err := store.Top(ctx, aggregates.MetricPageviews, r, aggregates.DimensionPage, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	// Empty referrer degrades to direct
	refs, err := store.Query(ctx, aggregates.MetricPageviews, r, aggregates.DimensionReferrer)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, aggregates.DirectValue, refs[0].DimensionValue)

	all, err := store.Query(ctx, aggregates.MetricPageviews, r, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestQueryDailyFillsGaps(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := aggregates.NewStore(db)
	ctx := context.Background()

	key := aggregates.Key{Date: day, MetricType: aggregates.MetricSessions, Dimension: aggregates.DimensionSite, DimensionValue: aggregates.SiteAll}
	require.NoError(t, store.Increment(ctx, key, 4))
	key.Date = day.AddDate(0, 0, 2)
	require.NoError(t, store.Increment(ctx, key, 1))

	r, err := aggregates.NewDateRange(day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	series, err := store.QueryDaily(ctx, aggregates.MetricSessions, r, aggregates.DimensionSite, aggregates.SiteAll)
	require.NoError(t, err)
	assert.Equal(t, []aggregates.DailyPoint{
		{Date: "2026-05-10", Value: 4},
		{Date: "2026-05-11", Value: 0},
		{Date: "2026-05-12", Value: 1},
	}, series)
}

func TestIncrementRevenue(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := aggregates.NewStore(db)
	ctx := context.Background()

	for _, amount := range []int64{1000, 250, 4000} {
		require.NoError(t, store.IncrementRevenue(ctx, day, "purchase", "usd", amount))
	}
	require.NoError(t, store.IncrementRevenue(ctx, day, "purchase", "EUR", 700))

	var stat aggregates.RevenueStat
	require.NoError(t, db.Where("currency = ?", "USD").First(&stat).Error)
	assert.Equal(t, int64(5250), stat.TotalAmount)
	assert.Equal(t, int64(3), stat.TransactionCount)
	assert.Equal(t, int64(250), stat.MinAmount)
	assert.Equal(t, int64(4000), stat.MaxAmount)
	assert.Equal(t, int64(1750), stat.AvgAmount)

	r, err := aggregates.NewDateRange(day, day)
	require.NoError(t, err)
	summaries, err := store.QueryRevenue(ctx, r, "")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "EUR", summaries[0].Currency)
	assert.Equal(t, int64(700), summaries[0].AvgAmount)

	usd, err := store.QueryRevenue(ctx, r, "usd")
	require.NoError(t, err)
	require.Len(t, usd, 1)
	assert.Equal(t, int64(1750), usd[0].AvgAmount)
}

func TestDateRange(t *testing.T) {
	_, err := aggregates.NewDateRange(day, day.AddDate(0, 0, -1))
	assert.Error(t, err)

	r, err := aggregates.ParseDateRange("2026-01-30", "2026-02-02")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02"}, r.Days())

	_, err = aggregates.ParseDateRange("yesterday", "2026-02-02")
	assert.Error(t, err)

	last := aggregates.LastDays(day, 7)
	assert.Len(t, last.Days(), 7)
	assert.Equal(t, "2026-05-10", last.Days()[6])
}

// Package reporting answers read-only questions over the aggregate store and
// the stored attribution. It never writes.
package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/pkg/async"
	"wpinsight/internal/pkg/referrers"
)

// DefaultTopLimit caps the top-N lists of an overview.
const DefaultTopLimit = 10

// Reporter runs report queries. Overview queries fan out over a worker pool.
type Reporter struct {
	db       *gorm.DB
	store    *aggregates.Store
	pool     *async.Pool
	logger   *slog.Logger
	topLimit int
}

func NewReporter(db *gorm.DB, logger *slog.Logger) *Reporter {
	return &Reporter{
		db:       db,
		store:    aggregates.NewStore(db),
		pool:     async.NewPool(6),
		logger:   logger,
		topLimit: DefaultTopLimit,
	}
}

// Overview is the dashboard summary of a date range.
type Overview struct {
	From         string                      `json:"from"`
	To           string                      `json:"to"`
	Pageviews    int64                       `json:"pageviews"`
	Visitors     int64                       `json:"visitors"`
	Sessions     int64                       `json:"sessions"`
	Conversions  int64                       `json:"conversions"`
	DailyViews   []aggregates.DailyPoint     `json:"daily_pageviews"`
	TopPages     []aggregates.Row            `json:"top_pages"`
	TopReferrers []aggregates.Row            `json:"top_referrers"`
	TopCountries []aggregates.Row            `json:"top_countries"`
	TopDevices   []aggregates.Row            `json:"top_devices"`
	TopEvents    []aggregates.Row            `json:"top_events"`
	Revenue      []aggregates.RevenueSummary `json:"revenue"`
}

func (r *Reporter) total(metric string, dates aggregates.DateRange) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return r.store.Total(ctx, metric, dates, aggregates.DimensionSite, aggregates.SiteAll)
	}
}

func (r *Reporter) top(metric, dimension string, dates aggregates.DateRange) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return r.store.Top(ctx, metric, dates, dimension, r.topLimit)
	}
}

// Overview gathers the site totals, the daily pageview series, top lists and
// revenue for dates. The first failing query fails the overview.
func (r *Reporter) Overview(ctx context.Context, dates aggregates.DateRange) (*Overview, error) {
	tasks := []async.Task{
		{Name: "pageviews", Execute: r.total(aggregates.MetricPageviews, dates)},
		{Name: "visitors", Execute: r.total(aggregates.MetricVisitors, dates)},
		{Name: "sessions", Execute: r.total(aggregates.MetricSessions, dates)},
		{Name: "conversions", Execute: r.total(aggregates.MetricConversions, dates)},
		{
			Name: "dailyViews",
			Execute: func(ctx context.Context) (any, error) {
				return r.store.QueryDaily(ctx, aggregates.MetricPageviews, dates, aggregates.DimensionSite, aggregates.SiteAll)
			},
		},
		{Name: "topPages", Execute: r.top(aggregates.MetricPageviews, aggregates.DimensionPage, dates)},
		{Name: "topReferrers", Execute: r.top(aggregates.MetricPageviews, aggregates.DimensionReferrer, dates)},
		{Name: "topCountries", Execute: r.top(aggregates.MetricPageviews, aggregates.DimensionCountry, dates)},
		{Name: "topDevices", Execute: r.top(aggregates.MetricPageviews, aggregates.DimensionDevice, dates)},
		{Name: "topEvents", Execute: r.top(aggregates.MetricEvents, aggregates.DimensionEvent, dates)},
		{
			Name: "revenue",
			Execute: func(ctx context.Context) (any, error) {
				return r.store.QueryRevenue(ctx, dates, "")
			},
		},
	}

	results := r.pool.Execute(ctx, tasks)
	for _, task := range tasks {
		if err := results[task.Name].Err; err != nil {
			r.logger.Error("Overview query failed", slog.String("query", task.Name), slog.Any("error", err))
			return nil, fmt.Errorf("error fetching %s: %w", task.Name, err)
		}
	}

	return &Overview{
		From:         aggregates.DayKey(dates.From),
		To:           aggregates.DayKey(dates.To),
		Pageviews:    results["pageviews"].Data.(int64),
		Visitors:     results["visitors"].Data.(int64),
		Sessions:     results["sessions"].Data.(int64),
		Conversions:  results["conversions"].Data.(int64),
		DailyViews:   results["dailyViews"].Data.([]aggregates.DailyPoint),
		TopPages:     rowsOrEmpty(results, "topPages"),
		TopReferrers: labelReferrers(rowsOrEmpty(results, "topReferrers")),
		TopCountries: rowsOrEmpty(results, "topCountries"),
		TopDevices:   rowsOrEmpty(results, "topDevices"),
		TopEvents:    rowsOrEmpty(results, "topEvents"),
		Revenue:      revenueOrEmpty(results, "revenue"),
	}, nil
}

func rowsOrEmpty(results map[string]async.Result, name string) []aggregates.Row {
	if rows, ok := results[name].Data.([]aggregates.Row); ok && rows != nil {
		return rows
	}
	return []aggregates.Row{}
}

// labelReferrers adds display names such as "Google" to referrer rows.
func labelReferrers(rows []aggregates.Row) []aggregates.Row {
	for i := range rows {
		if rows[i].DimensionValue != referrers.DirectSource {
			rows[i].Label = referrers.FriendlyName(rows[i].DimensionValue)
		}
	}
	return rows
}

func revenueOrEmpty(results map[string]async.Result, name string) []aggregates.RevenueSummary {
	if rows, ok := results[name].Data.([]aggregates.RevenueSummary); ok && rows != nil {
		return rows
	}
	return []aggregates.RevenueSummary{}
}

// Package aggregates maintains the daily dimensional counters. Every write is
// a single INSERT ... ON CONFLICT DO UPDATE statement so concurrent writers to
// the same key never lose an update.
package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// Key identifies one daily counter.
type Key struct {
	Date           time.Time
	MetricType     string
	Dimension      string
	DimensionValue string
}

// Row is a counter summed over a date range.
type Row struct {
	Dimension      string `json:"dimension"`
	DimensionValue string `json:"dimension_value"`
	Value          int64  `json:"value"`
	Label          string `json:"label,omitempty"`
}

// DailyPoint is one day of a series.
type DailyPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// RevenueSummary is revenue summed over a date range for one event and currency.
type RevenueSummary struct {
	EventName        string `json:"event_name"`
	Currency         string `json:"currency"`
	TotalAmount      int64  `json:"total_amount"`
	TransactionCount int64  `json:"transaction_count"`
	MinAmount        int64  `json:"min_amount"`
	MaxAmount        int64  `json:"max_amount"`
	AvgAmount        int64  `json:"avg_amount"`
}

// Store is the aggregate store. Use WithTx to join a caller's transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// normalizeValue degrades missing values to "unknown", or "direct" for
// traffic sources, and caps the length.
func normalizeValue(dimension, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		switch dimension {
		case DimensionReferrer, DimensionSource:
			return DirectValue
		case DimensionSite:
			return SiteAll
		default:
			return UnknownValue
		}
	}
	if utf8.RuneCountInString(value) > maxValueRunes {
		value = string([]rune(value)[:maxValueRunes])
	}
	return value
}

// Increment adds delta to the counter for key, creating it when missing.
func (s *Store) Increment(ctx context.Context, key Key, delta int64) error {
	if key.MetricType == "" || key.Dimension == "" {
		return fmt.Errorf("aggregate key needs a metric type and a dimension")
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO daily_aggregates (date, metric_type, dimension, dimension_value, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date, metric_type, dimension, dimension_value) DO UPDATE SET
			value = daily_aggregates.value + excluded.value,
			updated_at = excluded.updated_at
	`
	err := s.db.WithContext(ctx).Exec(query,
		DayKey(key.Date), key.MetricType, key.Dimension,
		normalizeValue(key.Dimension, key.DimensionValue),
		delta, now, now).Error
	if err != nil {
		return fmt.Errorf("failed to increment %s/%s: %w", key.MetricType, key.Dimension, err)
	}
	return nil
}

// IncrementAll increments every key by delta, stopping at the first error.
func (s *Store) IncrementAll(ctx context.Context, keys []Key, delta int64) error {
	for _, key := range keys {
		if err := s.Increment(ctx, key, delta); err != nil {
			return err
		}
	}
	return nil
}

// IncrementRevenue records one transaction of amount minor units. Min and max
// are folded in SQL and the average is recomputed from total and count.
func (s *Store) IncrementRevenue(ctx context.Context, date time.Time, eventName, currency string, amount int64) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO revenue_stats (date, event_name, currency, total_amount, transaction_count,
			min_amount, max_amount, avg_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT (date, event_name, currency) DO UPDATE SET
			total_amount = revenue_stats.total_amount + excluded.total_amount,
			transaction_count = revenue_stats.transaction_count + 1,
			min_amount = MIN(revenue_stats.min_amount, excluded.min_amount),
			max_amount = MAX(revenue_stats.max_amount, excluded.max_amount),
			avg_amount = (revenue_stats.total_amount + excluded.total_amount) / (revenue_stats.transaction_count + 1),
			updated_at = excluded.updated_at
	`
	err := s.db.WithContext(ctx).Exec(query,
		DayKey(date), eventName, strings.ToUpper(currency),
		amount, amount, amount, amount, now, now).Error
	if err != nil {
		return fmt.Errorf("failed to increment revenue for %s: %w", eventName, err)
	}
	return nil
}

// Query sums a metric over r grouped by dimension and value, ordered by value
// descending then by dimension and value. An empty dimension returns every dimension.
func (s *Store) Query(ctx context.Context, metricType string, r DateRange, dimension string) ([]Row, error) {
	q := s.db.WithContext(ctx).Model(&DailyAggregate{}).
		Select("dimension, dimension_value, SUM(value) AS value").
		Where("metric_type = ? AND date >= ? AND date <= ?", metricType, r.fromKey(), r.toKey())
	if dimension != "" {
		q = q.Where("dimension = ?", dimension)
	}

	var rows []Row
	err := q.Group("dimension, dimension_value").
		Order("value DESC, dimension ASC, dimension_value ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", metricType, err)
	}
	return rows, nil
}

// Top returns at most limit rows of Query.
func (s *Store) Top(ctx context.Context, metricType string, r DateRange, dimension string, limit int) ([]Row, error) {
	rows, err := s.Query(ctx, metricType, r, dimension)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Total sums a single dimension value over r, e.g. site/all.
func (s *Store) Total(ctx context.Context, metricType string, r DateRange, dimension, value string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&DailyAggregate{}).
		Select("COALESCE(SUM(value), 0)").
		Where("metric_type = ? AND dimension = ? AND dimension_value = ? AND date >= ? AND date <= ?",
			metricType, dimension, value, r.fromKey(), r.toKey()).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to total %s: %w", metricType, err)
	}
	return total, nil
}

// QueryDaily returns one point per day in r for a dimension value. Days
// without a row are zero.
func (s *Store) QueryDaily(ctx context.Context, metricType string, r DateRange, dimension, value string) ([]DailyPoint, error) {
	var stored []DailyPoint
	err := s.db.WithContext(ctx).Model(&DailyAggregate{}).
		Select("date, value").
		Where("metric_type = ? AND dimension = ? AND dimension_value = ? AND date >= ? AND date <= ?",
			metricType, dimension, value, r.fromKey(), r.toKey()).
		Order("date ASC").
		Scan(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query daily %s: %w", metricType, err)
	}

	byDate := make(map[string]int64, len(stored))
	for _, p := range stored {
		byDate[p.Date] = p.Value
	}
	days := r.Days()
	series := make([]DailyPoint, 0, len(days))
	for _, day := range days {
		series = append(series, DailyPoint{Date: day, Value: byDate[day]})
	}
	return series, nil
}

// QueryRevenue sums revenue stats over r per event and currency. An empty
// currency returns every currency.
func (s *Store) QueryRevenue(ctx context.Context, r DateRange, currency string) ([]RevenueSummary, error) {
	q := s.db.WithContext(ctx).Model(&RevenueStat{}).
		Select(`event_name, currency,
			SUM(total_amount) AS total_amount,
			SUM(transaction_count) AS transaction_count,
			MIN(min_amount) AS min_amount,
			MAX(max_amount) AS max_amount`).
		Where("date >= ? AND date <= ?", r.fromKey(), r.toKey())
	if currency != "" {
		q = q.Where("currency = ?", strings.ToUpper(currency))
	}

	var summaries []RevenueSummary
	err := q.Group("event_name, currency").
		Order("event_name ASC, currency ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	for i := range summaries {
		if summaries[i].TransactionCount > 0 {
			summaries[i].AvgAmount = summaries[i].TotalAmount / summaries[i].TransactionCount
		}
	}
	return summaries, nil
}

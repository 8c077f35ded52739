// Package retention purges raw per-visitor rows past the retention horizon.
// Daily aggregates, revenue stats, conversions and allocations are kept forever.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/models"
)

// DefaultBatchSize is the number of rows deleted per statement.
const DefaultBatchSize = 1000

// ErrSweepInProgress is returned when a sweep is already running.
var ErrSweepInProgress = errors.New("retention sweep already in progress")

// target is a raw table and the timestamp column that ages its rows.
type target struct {
	table  string
	column string
}

var targets = []target{
	{table: "events", column: "timestamp"},
	{table: "touchpoints", column: "occurred_at"},
	{table: "sessions", column: "last_seen"},
}

// Result holds the number of rows deleted per table.
type Result struct {
	Cutoff      time.Time `json:"cutoff"`
	Events      int64     `json:"events"`
	Touchpoints int64     `json:"touchpoints"`
	Sessions    int64     `json:"sessions"`
}

// Total is the number of rows deleted across tables.
func (r Result) Total() int64 {
	return r.Events + r.Touchpoints + r.Sessions
}

func (r *Result) add(table string, n int64) {
	switch table {
	case "events":
		r.Events += n
	case "touchpoints":
		r.Touchpoints += n
	case "sessions":
		r.Sessions += n
	}
}

// Sweeper deletes raw rows older than the horizon. Only one sweep runs at a time.
type Sweeper struct {
	db            *gorm.DB
	logger        *slog.Logger
	horizonMonths int
	batchSize     int
	batchPause    time.Duration
	now           func() time.Time
	running       atomic.Bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchPause sets the delay between delete batches.
func WithBatchPause(d time.Duration) Option {
	return func(s *Sweeper) { s.batchPause = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a Sweeper keeping horizonMonths of raw data. Zero months
// disables Run.
func NewSweeper(db *gorm.DB, logger *slog.Logger, horizonMonths int, opts ...Option) *Sweeper {
	s := &Sweeper{
		db:            db,
		logger:        logger,
		horizonMonths: horizonMonths,
		batchSize:     DefaultBatchSize,
		batchPause:    100 * time.Millisecond,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HorizonMonths returns the configured horizon.
func (s *Sweeper) HorizonMonths() int {
	return s.horizonMonths
}

// Cutoff returns the start of the UTC day containing now, minus the horizon.
func (s *Sweeper) Cutoff(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, -s.horizonMonths, 0)
}

// Run purges rows older than the cutoff for the current time. With a zero
// horizon it does nothing.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if s.horizonMonths <= 0 {
		s.logger.Debug("Retention disabled, skipping sweep")
		return Result{}, nil
	}
	return s.Purge(ctx, s.Cutoff(s.now()))
}

// Purge deletes raw rows strictly older than olderThan.
func (s *Sweeper) Purge(ctx context.Context, olderThan time.Time) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	result := Result{Cutoff: olderThan.UTC()}
	s.logger.Info("Starting retention sweep", slog.Time("cutoff", result.Cutoff))

	for _, t := range targets {
		n, err := s.purgeTable(ctx, t, result.Cutoff)
		result.add(t.table, n)
		if err != nil {
			s.logger.Error("Retention sweep failed",
				slog.String("table", t.table),
				slog.Int64("deleted_so_far", n),
				slog.Any("error", err))
			return result, err
		}
	}

	s.logger.Info("Retention sweep finished",
		slog.Int64("events", result.Events),
		slog.Int64("touchpoints", result.Touchpoints),
		slog.Int64("sessions", result.Sessions))
	return result, nil
}

func (s *Sweeper) purgeTable(ctx context.Context, t target, cutoff time.Time) (int64, error) {
	// sqlite ignores LIMIT on DELETE unless compiled with it, so batch by id
	stmt := fmt.Sprintf("DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s WHERE %[2]s < ? ORDER BY id LIMIT ?)",
		t.table, t.column)

	var total int64
	for {
		var affected int64
		err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
			res := tx.Exec(stmt, cutoff, s.batchSize)
			affected = res.RowsAffected
			return res.Error
		})
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", t.table, err)
		}
		total += affected

		if affected < int64(s.batchSize) {
			return total, nil
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(s.batchPause):
		}
	}
}

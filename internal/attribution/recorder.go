package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/models"
	"wpinsight/internal/money"
	"wpinsight/internal/sessions"
	"wpinsight/internal/touchpoints"
)

// ConversionRevenueEvent is the revenue stats event name of recorded conversions.
const ConversionRevenueEvent = "conversion"

// Result is the outcome of RecordConversion.
type Result struct {
	Conversion  Conversion
	Allocations map[Model][]Allocation
	// Duplicate is set when the order was already recorded; nothing was written.
	Duplicate bool
}

// Recorder records conversions: it stores the order, attributes it with every
// configured model and writes the revenue aggregates, all in one transaction.
type Recorder struct {
	db              *gorm.DB
	logger          *slog.Logger
	engine          *Engine
	models          []Model
	defaultCurrency string

	sessions *sessions.Store
	ledger   *touchpoints.Ledger
	store    *aggregates.Store
}

// NewRecorder creates a Recorder. An empty model list records every model.
func NewRecorder(db *gorm.DB, logger *slog.Logger, engine *Engine, attributionModels []Model, defaultCurrency string) *Recorder {
	if len(attributionModels) == 0 {
		attributionModels = AllModels()
	}
	return &Recorder{
		db:              db,
		logger:          logger,
		engine:          engine,
		models:          attributionModels,
		defaultCurrency: defaultCurrency,
		sessions:        sessions.NewStore(db),
		ledger:          touchpoints.NewLedger(db),
		store:           aggregates.NewStore(db),
	}
}

// Models returns the models computed for every conversion.
func (r *Recorder) Models() []Model {
	return r.models
}

func (r *Recorder) prepare(order Order) (Order, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.OrderID == "" {
		return order, fmt.Errorf("order id is required: %w", ErrInvalidOrder)
	}
	if !money.InRange(order.Amount) {
		return order, fmt.Errorf("order %s amount %d: %w: %w", order.OrderID, order.Amount, ErrInvalidOrder, money.ErrAmountOutOfRange)
	}
	code := order.Currency
	if strings.TrimSpace(code) == "" {
		code = r.defaultCurrency
	}
	unit, err := money.ParseCurrency(code)
	if err != nil {
		return order, fmt.Errorf("order %s: %w", order.OrderID, err)
	}
	order.Currency = unit.String()
	if order.OccurredAt.IsZero() {
		order.OccurredAt = time.Now()
	}
	order.OccurredAt = order.OccurredAt.UTC()
	for i := range order.LineItems {
		if order.LineItems[i].Quantity <= 0 {
			order.LineItems[i].Quantity = 1
		}
	}
	return order, nil
}

// RecordConversion attributes order and records it. It is idempotent by order
// id: recording the same order again returns the stored allocations and
// changes nothing. A missing session is attributed to direct.
func (r *Recorder) RecordConversion(ctx context.Context, order Order) (*Result, error) {
	order, err := r.prepare(order)
	if err != nil {
		return nil, err
	}

	result := &Result{Allocations: make(map[Model][]Allocation, len(r.models))}
	err = models.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		result.Duplicate = false
		result.Allocations = make(map[Model][]Allocation, len(r.models))

		session, tps, err := r.loadLedger(ctx, tx, order.SessionID)
		if err != nil {
			return err
		}
		eligible := Eligible(order, tps)

		conversion, inserted, err := insertConversion(ctx, tx, order, len(eligible) == 0)
		if err != nil {
			return err
		}
		result.Conversion = conversion
		if !inserted {
			result.Duplicate = true
			return nil
		}

		var all []Allocation
		for _, model := range r.models {
			allocs, err := r.engine.Attribute(order, eligible, model)
			if err != nil {
				return err
			}
			result.Allocations[model] = allocs
			all = append(all, allocs...)
		}
		if len(all) > 0 {
			if err := tx.WithContext(ctx).Create(&all).Error; err != nil {
				return fmt.Errorf("failed to store allocations: %w", err)
			}
			// Create fills IDs on the flattened slice only
			for model := range result.Allocations {
				result.Allocations[model] = filterModel(all, model)
			}
		}

		if err := r.writeAggregates(ctx, tx, order, result.Allocations); err != nil {
			return err
		}

		if session != nil {
			if err := r.sessions.WithTx(tx).AddRevenue(ctx, session.SessionID, order.Amount); err != nil {
				return err
			}
		}
		if len(eligible) > 0 {
			upTo := 0
			for _, tp := range eligible {
				if tp.SequenceNo > upTo {
					upTo = tp.SequenceNo
				}
			}
			if _, err := r.ledger.WithTx(tx).Consume(ctx, order.SessionID, upTo, order.OrderID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to record conversion",
			slog.String("order_id", order.OrderID),
			slog.Any("error", err))
		return nil, err
	}

	if result.Duplicate {
		r.logger.Info("Conversion already recorded", slog.String("order_id", order.OrderID))
		allocs, err := r.Allocations(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
		result.Allocations = allocs
		return result, nil
	}

	r.logger.Info("Recorded conversion",
		slog.String("order_id", order.OrderID),
		slog.String("session_id", order.SessionID),
		slog.Int64("amount", order.Amount),
		slog.String("currency", order.Currency),
		slog.Bool("direct", result.Conversion.Direct))
	return result, nil
}

func (r *Recorder) loadLedger(ctx context.Context, tx *gorm.DB, sessionID string) (*sessions.Session, []touchpoints.Touchpoint, error) {
	if sessionID == "" {
		return nil, nil, nil
	}
	session, err := r.sessions.WithTx(tx).Get(ctx, sessionID)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		r.logger.Debug("Conversion session not found, attributing to direct", slog.String("session_id", sessionID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	tps, err := r.ledger.WithTx(tx).GetTouchpoints(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, tps, nil
}

func insertConversion(ctx context.Context, tx *gorm.DB, order Order, direct bool) (Conversion, bool, error) {
	lineItems, err := models.MarshalJSONColumn(order.LineItems)
	if err != nil {
		return Conversion{}, false, fmt.Errorf("failed to encode line items: %w", err)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO conversions (order_id, session_id, amount, currency, occurred_at, line_items, direct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING
	`
	res := tx.WithContext(ctx).Exec(query,
		order.OrderID, order.SessionID, order.Amount, order.Currency, order.OccurredAt, lineItems, direct, now)
	if res.Error != nil {
		return Conversion{}, false, fmt.Errorf("failed to store conversion: %w", res.Error)
	}

	var conversion Conversion
	if err := tx.WithContext(ctx).Where("order_id = ?", order.OrderID).First(&conversion).Error; err != nil {
		return Conversion{}, false, fmt.Errorf("failed to load conversion: %w", err)
	}
	return conversion, res.RowsAffected > 0, nil
}

func (r *Recorder) writeAggregates(ctx context.Context, tx *gorm.DB, order Order, byModel map[Model][]Allocation) error {
	store := r.store.WithTx(tx)
	day := order.OccurredAt

	if err := store.Increment(ctx, aggregates.Key{Date: day, MetricType: aggregates.MetricConversions,
		Dimension: aggregates.DimensionSite, DimensionValue: aggregates.SiteAll}, 1); err != nil {
		return err
	}
	if err := store.Increment(ctx, aggregates.Key{Date: day, MetricType: aggregates.MetricRevenue,
		Dimension: aggregates.DimensionCurrency, DimensionValue: order.Currency}, order.Amount); err != nil {
		return err
	}
	if err := store.IncrementRevenue(ctx, day, ConversionRevenueEvent, order.Currency, order.Amount); err != nil {
		return err
	}

	for _, item := range order.LineItems {
		product := item.ProductKey()
		if err := store.Increment(ctx, aggregates.Key{Date: day, MetricType: aggregates.MetricProductRevenue,
			Dimension: aggregates.DimensionProduct, DimensionValue: product}, item.Amount); err != nil {
			return err
		}
		if err := store.Increment(ctx, aggregates.Key{Date: day, MetricType: aggregates.MetricProductQuantity,
			Dimension: aggregates.DimensionProduct, DimensionValue: product}, item.Quantity); err != nil {
			return err
		}
	}

	for model, allocs := range byModel {
		metric := aggregates.AttributedRevenueMetric(string(model))
		for _, a := range allocs {
			for _, by := range []GroupDimension{GroupBySource, GroupByMedium, GroupByCampaign, GroupByPage} {
				key := aggregates.Key{Date: day, MetricType: metric, Dimension: string(by), DimensionValue: a.Value(by)}
				if err := store.Increment(ctx, key, a.RevenueShare); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Allocations returns the stored allocations of an order per model.
func (r *Recorder) Allocations(ctx context.Context, orderID string) (map[Model][]Allocation, error) {
	var stored []Allocation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("attribution_type ASC, id ASC").
		Find(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	byModel := make(map[Model][]Allocation)
	for _, a := range stored {
		byModel[a.AttributionType] = append(byModel[a.AttributionType], a)
	}
	return byModel, nil
}

func filterModel(allocs []Allocation, model Model) []Allocation {
	var out []Allocation
	for _, a := range allocs {
		if a.AttributionType == model {
			out = append(out, a)
		}
	}
	return out
}

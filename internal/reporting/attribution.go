package reporting

import (
	"context"
	"fmt"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/attribution"
)

// CurrencyShares is the grouped attribution of one currency.
type CurrencyShares struct {
	Currency string                     `json:"currency"`
	Total    int64                      `json:"total"`
	Orders   int64                      `json:"orders"`
	Groups   []attribution.GroupedShare `json:"groups"`
}

// AttributionReport is stored allocations of one model summed per dimension
// value over the orders placed in a date range.
type AttributionReport struct {
	Model      attribution.Model          `json:"model"`
	GroupBy    attribution.GroupDimension `json:"group_by"`
	From       string                     `json:"from"`
	To         string                     `json:"to"`
	Currencies []CurrencyShares           `json:"currencies"`
}

type shareRow struct {
	Currency string
	Value    string
	Amount   int64
	Count    int64
}

// AttributionReport sums the allocations of model for conversions in r. An
// empty model means the default model.
func (r *Reporter) AttributionReport(ctx context.Context, model attribution.Model, dates aggregates.DateRange, by attribution.GroupDimension) (*AttributionReport, error) {
	if model == "" {
		model = attribution.DefaultModel
	}
	if !model.Valid() {
		return nil, fmt.Errorf("%w: %q", attribution.ErrUnknownModel, model)
	}
	if _, err := attribution.ParseGroupDimension(string(by)); err != nil {
		return nil, err
	}

	report := &AttributionReport{
		Model:      model,
		GroupBy:    by,
		From:       aggregates.DayKey(dates.From),
		To:         aggregates.DayKey(dates.To),
		Currencies: []CurrencyShares{},
	}

	var rows []shareRow
	err := r.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT a.currency AS currency,
			COALESCE(NULLIF(a.%s, ''), '(none)') AS value,
			SUM(a.revenue_share) AS amount,
			COUNT(*) AS count
		FROM attribution_allocations a
		JOIN conversions c ON c.order_id = a.order_id
		WHERE a.attribution_type = ?
		AND c.occurred_at >= ? AND c.occurred_at < ?
		GROUP BY a.currency, value`, by.Column()),
		model, dates.From, dates.End(),
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution report: %w", err)
	}

	var orders []struct {
		Currency string
		Orders   int64
		Total    int64
	}
	err = r.db.WithContext(ctx).Raw(`
		SELECT a.currency AS currency,
			COUNT(DISTINCT a.order_id) AS orders,
			SUM(a.revenue_share) AS total
		FROM attribution_allocations a
		JOIN conversions c ON c.order_id = a.order_id
		WHERE a.attribution_type = ?
		AND c.occurred_at >= ? AND c.occurred_at < ?
		GROUP BY a.currency
		ORDER BY a.currency`,
		model, dates.From, dates.End(),
	).Scan(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count attributed orders: %w", err)
	}

	index := make(map[string]int, len(orders))
	for _, o := range orders {
		index[o.Currency] = len(report.Currencies)
		report.Currencies = append(report.Currencies, CurrencyShares{
			Currency: o.Currency,
			Total:    o.Total,
			Orders:   o.Orders,
			Groups:   []attribution.GroupedShare{},
		})
	}
	for _, row := range rows {
		i, ok := index[row.Currency]
		if !ok {
			continue
		}
		report.Currencies[i].Groups = append(report.Currencies[i].Groups, attribution.GroupedShare{
			Value:  row.Value,
			Amount: row.Amount,
			Count:  row.Count,
		})
	}
	for i := range report.Currencies {
		attribution.SortGroups(report.Currencies[i].Groups)
	}
	return report, nil
}

// ConversionDetail is one stored order with its allocations per model.
type ConversionDetail struct {
	Conversion  attribution.Conversion                         `json:"conversion"`
	LineItems   []attribution.LineItem                         `json:"line_items"`
	Allocations map[attribution.Model][]attribution.Allocation `json:"allocations"`
}

// Conversion returns the stored order and its allocations.
func (r *Reporter) Conversion(ctx context.Context, orderID string) (*ConversionDetail, error) {
	var conv attribution.Conversion
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to load conversion %q: %w", orderID, err)
	}

	var items []attribution.LineItem
	if err := conv.LineItems.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}

	var allocs []attribution.Allocation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).
		Order("attribution_type ASC, occurred_at ASC, id ASC").
		Find(&allocs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}

	detail := &ConversionDetail{
		Conversion:  conv,
		LineItems:   items,
		Allocations: make(map[attribution.Model][]attribution.Allocation),
	}
	for _, a := range allocs {
		detail.Allocations[a.AttributionType] = append(detail.Allocations[a.AttributionType], a)
	}
	return detail, nil
}

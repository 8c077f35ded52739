// Package attribution splits conversion revenue across the touchpoints of the
// converting session.
package attribution

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"wpinsight/internal/money"
	"wpinsight/internal/pkg/referrers"
	"wpinsight/internal/touchpoints"
)

// DefaultHalfLife is the time_decay half-life.
const DefaultHalfLife = 7 * 24 * time.Hour

// shareEpsilon is added to a share before flooring to absorb float error.
const shareEpsilon = 1e-9

// Engine computes allocations. It is pure and safe for concurrent use.
type Engine struct {
	halfLife time.Duration
	logger   *slog.Logger
}

// NewEngine creates an Engine. A non-positive half-life uses DefaultHalfLife.
func NewEngine(halfLife time.Duration, logger *slog.Logger) *Engine {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Engine{halfLife: halfLife, logger: logger}
}

// HalfLife returns the configured time_decay half-life.
func (e *Engine) HalfLife() time.Duration {
	return e.halfLife
}

// Eligible returns the touchpoints that can be credited for order: those not
// consumed by an earlier order and not after order.OccurredAt, in chronological
// order. A zero OccurredAt keeps every unconsumed touchpoint.
func Eligible(order Order, tps []touchpoints.Touchpoint) []touchpoints.Touchpoint {
	eligible := make([]touchpoints.Touchpoint, 0, len(tps))
	for _, tp := range tps {
		if tp.Consumed {
			continue
		}
		if !order.OccurredAt.IsZero() && tp.OccurredAt.After(order.OccurredAt) {
			continue
		}
		eligible = append(eligible, tp)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].OccurredAt.Equal(eligible[j].OccurredAt) {
			return eligible[i].SequenceNo < eligible[j].SequenceNo
		}
		return eligible[i].OccurredAt.Before(eligible[j].OccurredAt)
	})
	return eligible
}

// Attribute allocates order.Amount across tps with model. The shares always
// sum to order.Amount exactly; an empty ledger credits a synthetic direct
// touchpoint with the whole amount.
func (e *Engine) Attribute(order Order, tps []touchpoints.Touchpoint, model Model) ([]Allocation, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("%q: %w", model, ErrUnknownModel)
	}
	if !money.InRange(order.Amount) {
		return nil, fmt.Errorf("order %s amount %d: %w: %w", order.OrderID, order.Amount, ErrInvalidOrder, money.ErrAmountOutOfRange)
	}
	eligible := Eligible(order, tps)

	var allocs []Allocation
	switch {
	case len(eligible) == 0:
		allocs = []Allocation{directAllocation(order, model)}
	case model == ModelFirstClick:
		allocs = []Allocation{newAllocation(order, model, eligible[0], order.Amount, 1)}
	case model == ModelLastClick:
		allocs = []Allocation{newAllocation(order, model, eligible[len(eligible)-1], order.Amount, 1)}
	case model == ModelLinear:
		weights := make([]float64, len(eligible))
		for i := range weights {
			weights[i] = 1
		}
		allocs = e.weighted(order, model, eligible, weights)
	default: // time_decay
		weights := make([]float64, len(eligible))
		for i, tp := range eligible {
			weights[i] = e.decayWeight(order, tp)
		}
		allocs = e.weighted(order, model, eligible, weights)
	}

	if err := e.reconcile(order, model, allocs); err != nil {
		return nil, err
	}
	return allocs, nil
}

// decayWeight is 2^(-Δt/halfLife) with Δt measured back from the order.
func (e *Engine) decayWeight(order Order, tp touchpoints.Touchpoint) float64 {
	if order.OccurredAt.IsZero() {
		return 1
	}
	dt := order.OccurredAt.Sub(tp.OccurredAt)
	if dt < 0 {
		dt = 0
	}
	return math.Pow(2, -dt.Hours()/e.halfLife.Hours())
}

func (e *Engine) weighted(order Order, model Model, eligible []touchpoints.Touchpoint, weights []float64) []Allocation {
	shares := Distribute(order.Amount, weights)
	allocs := make([]Allocation, len(eligible))
	for i, tp := range eligible {
		allocs[i] = newAllocation(order, model, tp, shares[i], weights[i])
	}
	return allocs
}

// Distribute splits amount proportionally to weights. Every share but the
// last is floored on the absolute amount; the last receives the remainder, so
// the shares always sum to amount. Negative amounts split symmetrically.
func Distribute(amount int64, weights []float64) []int64 {
	shares := make([]int64, len(weights))
	if len(weights) == 0 {
		return shares
	}

	var total float64
	for _, w := range weights {
		total += w
	}

	sign := int64(1)
	abs := amount
	if amount < 0 {
		sign, abs = -1, -amount
	}

	var allocated int64
	for i := 0; i < len(weights)-1; i++ {
		var share int64
		if total > 0 {
			share = int64(math.Floor(float64(abs)*weights[i]/total + shareEpsilon))
		}
		if share > abs-allocated {
			share = abs - allocated
		}
		shares[i] = sign * share
		allocated += share
	}
	shares[len(weights)-1] = sign * (abs - allocated)
	return shares
}

func (e *Engine) reconcile(order Order, model Model, allocs []Allocation) error {
	var sum int64
	for _, a := range allocs {
		sum += a.RevenueShare
	}
	if sum == order.Amount {
		return nil
	}
	e.logger.Error("Attribution shares do not reconcile",
		slog.String("order_id", order.OrderID),
		slog.String("model", string(model)),
		slog.Int64("amount", order.Amount),
		slog.Int64("allocated", sum))
	return fmt.Errorf("order %s model %s: allocated %d of %d: %w",
		order.OrderID, model, sum, order.Amount, ErrReconciliationMismatch)
}

func newAllocation(order Order, model Model, tp touchpoints.Touchpoint, share int64, weight float64) Allocation {
	id := tp.ID
	return Allocation{
		OrderID:         order.OrderID,
		SessionID:       order.SessionID,
		AttributionType: model,
		TouchpointRef:   tp.Ref(),
		TouchpointID:    &id,
		RevenueShare:    share,
		Currency:        order.Currency,
		Source:          tp.Source,
		Medium:          tp.Medium,
		Campaign:        tp.Campaign(),
		Page:            tp.PageRef,
		Weight:          weight,
		OccurredAt:      order.OccurredAt,
	}
}

func directAllocation(order Order, model Model) Allocation {
	return Allocation{
		OrderID:         order.OrderID,
		SessionID:       order.SessionID,
		AttributionType: model,
		TouchpointRef:   DirectRef,
		RevenueShare:    order.Amount,
		Currency:        order.Currency,
		Source:          referrers.DirectSource,
		Medium:          referrers.MediumDirect,
		Campaign:        "(none)",
		Page:            "",
		Weight:          1,
		OccurredAt:      order.OccurredAt,
	}
}

package attribution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wpinsight/internal/models"
)

// Model is an attribution algorithm.
type Model string

const (
	ModelFirstClick Model = "first_click"
	ModelLastClick  Model = "last_click"
	ModelLinear     Model = "linear"
	ModelTimeDecay  Model = "time_decay"

	DefaultModel = ModelLastClick
)

var (
	// ErrUnknownModel is returned by ParseModel.
	ErrUnknownModel = errors.New("unknown attribution model")
	// ErrReconciliationMismatch means allocated shares do not sum to the order amount.
	ErrReconciliationMismatch = errors.New("attribution shares do not reconcile with order amount")
	// ErrInvalidOrder rejects orders that cannot be recorded.
	ErrInvalidOrder = errors.New("invalid order")
)

// AllModels returns every supported model.
func AllModels() []Model {
	return []Model{ModelFirstClick, ModelLastClick, ModelLinear, ModelTimeDecay}
}

// Valid reports whether m is a supported model.
func (m Model) Valid() bool {
	for _, valid := range AllModels() {
		if m == valid {
			return true
		}
	}
	return false
}

// ParseModel validates a model name, case-insensitively.
func ParseModel(s string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownModel)
	}
	return m, nil
}

// ParseModels validates a list of model names, dropping duplicates.
func ParseModels(names []string) ([]Model, error) {
	seen := make(map[Model]bool, len(names))
	var out []Model
	for _, name := range names {
		m, err := ParseModel(name)
		if err != nil {
			return nil, err
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// DirectRef is the touchpoint reference of the synthetic direct touchpoint.
const DirectRef = "direct"

// LineItem is one product of an order. Amount is in minor units.
type LineItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Amount      int64  `json:"amount"`
}

// ProductKey is the product dimension value: the id, or the name when there is no id.
func (li LineItem) ProductKey() string {
	if li.ProductID != "" {
		return li.ProductID
	}
	return li.ProductName
}

// Order is a conversion reported by an e-commerce integration. Amount is in
// minor units of Currency.
type Order struct {
	OrderID    string     `json:"order_id"`
	SessionID  string     `json:"session_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	OccurredAt time.Time  `json:"occurred_at"`
	LineItems  []LineItem `json:"line_items"`
}

// Allocation is the revenue share of one touchpoint for one order and model.
type Allocation struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         string    `gorm:"not null;size:255;uniqueIndex:idx_allocations_order_model_ref,priority:1" json:"order_id"`
	SessionID       string    `gorm:"size:64;index" json:"session_id"`
	AttributionType Model     `gorm:"not null;size:32;uniqueIndex:idx_allocations_order_model_ref,priority:2;index" json:"attribution_type"`
	TouchpointRef   string    `gorm:"not null;size:255;uniqueIndex:idx_allocations_order_model_ref,priority:3" json:"touchpoint_ref"`
	TouchpointID    *uint     `json:"touchpoint_id,omitempty"`
	RevenueShare    int64     `gorm:"not null" json:"revenue_share"`
	Currency        string    `gorm:"size:3" json:"currency"`
	Source          string    `gorm:"size:255" json:"source"`
	Medium          string    `gorm:"size:255" json:"medium"`
	Campaign        string    `gorm:"size:255" json:"campaign"`
	Page            string    `gorm:"size:2048" json:"page"`
	Weight          float64   `json:"weight"`
	OccurredAt      time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Allocation) TableName() string {
	return "attribution_allocations"
}

// Conversion is the stored order. It makes RecordConversion idempotent by order id.
type Conversion struct {
	ID         uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    string      `gorm:"not null;size:255;uniqueIndex:idx_conversions_order_id" json:"order_id"`
	SessionID  string      `gorm:"size:64;index" json:"session_id"`
	Amount     int64       `gorm:"not null" json:"amount"`
	Currency   string      `gorm:"not null;size:3" json:"currency"`
	OccurredAt time.Time   `gorm:"not null;index" json:"occurred_at"`
	LineItems  models.JSON `gorm:"type:text" json:"line_items"`
	Direct     bool        `gorm:"not null;default:false" json:"direct"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Conversion) TableName() string {
	return "conversions"
}

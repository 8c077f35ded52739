package aggregates

import "time"

// Metric types written by ingestion and conversion recording.
const (
	MetricPageviews       = "pageviews"
	MetricVisitors        = "visitors"
	MetricSessions        = "sessions"
	MetricEntrances       = "entrances"
	MetricEvents          = "events"
	MetricClicks          = "clicks"
	MetricProductViews    = "product_views"
	MetricConversions     = "conversions"
	MetricRevenue         = "revenue"
	MetricProductRevenue  = "product_revenue"
	MetricProductQuantity = "product_quantity"

	attributedRevenuePrefix = "attributed_revenue:"
)

// AttributedRevenueMetric is the metric type holding revenue attributed by model.
func AttributedRevenueMetric(model string) string {
	return attributedRevenuePrefix + model
}

// Dimensions.
const (
	DimensionSite     = "site"
	DimensionPage     = "page"
	DimensionReferrer = "referrer"
	DimensionDevice   = "device"
	DimensionBrowser  = "browser"
	DimensionOS       = "os"
	DimensionCountry  = "country"
	DimensionCampaign = "campaign"
	DimensionEvent    = "event"
	DimensionCategory = "category"
	DimensionElement  = "element"
	DimensionProduct  = "product"
	DimensionCurrency = "currency"
	DimensionSource   = "source"
	DimensionMedium   = "medium"
)

// Dimension values used when a raw value is missing.
const (
	SiteAll       = "all"
	UnknownValue  = "unknown"
	DirectValue   = "direct"
	maxValueRunes = 512
)

// DailyAggregate is a pre-summed metric row for one UTC day
type DailyAggregate struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Date           string    `gorm:"not null;size:10;uniqueIndex:idx_daily_aggregates_key,priority:1" json:"date"`
	MetricType     string    `gorm:"not null;size:128;uniqueIndex:idx_daily_aggregates_key,priority:2" json:"metric_type"`
	Dimension      string    `gorm:"not null;size:64;uniqueIndex:idx_daily_aggregates_key,priority:3" json:"dimension"`
	DimensionValue string    `gorm:"not null;size:512;uniqueIndex:idx_daily_aggregates_key,priority:4" json:"dimension_value"`
	Value          int64     `gorm:"not null;default:0" json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (DailyAggregate) TableName() string {
	return "daily_aggregates"
}

// RevenueStat holds running revenue figures per day, event and currency.
// Amounts are minor currency units.
type RevenueStat struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Date             string    `gorm:"not null;size:10;uniqueIndex:idx_revenue_stats_key,priority:1" json:"date"`
	EventName        string    `gorm:"not null;size:128;uniqueIndex:idx_revenue_stats_key,priority:2" json:"event_name"`
	Currency         string    `gorm:"not null;size:3;uniqueIndex:idx_revenue_stats_key,priority:3" json:"currency"`
	TotalAmount      int64     `gorm:"not null;default:0" json:"total_amount"`
	TransactionCount int64     `gorm:"not null;default:0" json:"transaction_count"`
	MinAmount        int64     `gorm:"not null;default:0" json:"min_amount"`
	MaxAmount        int64     `gorm:"not null;default:0" json:"max_amount"`
	AvgAmount        int64     `gorm:"not null;default:0" json:"avg_amount"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RevenueStat) TableName() string {
	return "revenue_stats"
}

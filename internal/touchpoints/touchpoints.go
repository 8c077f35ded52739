// Package touchpoints is the per-session ledger of attribution-relevant visits.
// Rows are append-only: attribution flags them consumed and only retention
// deletes them.
package touchpoints

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/models"
)

// SourceType classifies how a touchpoint was created.
type SourceType string

const (
	SourcePageview      SourceType = "pageview"
	SourceCampaignClick SourceType = "campaign_click"
	SourceEmailClick    SourceType = "email_click"
)

// Touchpoint is one entry of a session's ledger
type Touchpoint struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID       string     `gorm:"not null;size:64;uniqueIndex:idx_touchpoints_session_seq,priority:1" json:"session_id"`
	SequenceNo      int        `gorm:"not null;uniqueIndex:idx_touchpoints_session_seq,priority:2" json:"sequence_no"`
	OccurredAt      time.Time  `gorm:"not null;index" json:"occurred_at"`
	SourceType      SourceType `gorm:"not null;size:32" json:"source_type"`
	Source          string     `gorm:"size:255" json:"source"`
	Medium          string     `gorm:"size:255" json:"medium"`
	UTM             models.UTM `gorm:"embedded;embeddedPrefix:utm_" json:"utm"`
	PageRef         string     `gorm:"size:2048" json:"page_ref"`
	Consumed        bool       `gorm:"not null;default:false" json:"consumed"`
	ConsumedAt      *time.Time `json:"consumed_at,omitempty"`
	ConsumedByOrder string     `gorm:"size:255" json:"consumed_by_order,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Touchpoint) TableName() string {
	return "touchpoints"
}

// Ref is a stable reference to the touchpoint used by attribution allocations.
func (t Touchpoint) Ref() string {
	return fmt.Sprintf("%s#%d", t.SessionID, t.SequenceNo)
}

// Campaign is the campaign name, or "(none)".
func (t Touchpoint) Campaign() string {
	if t.UTM.Campaign == "" {
		return "(none)"
	}
	return t.UTM.Campaign
}

// Ledger appends and reads touchpoints. Use WithTx to join a caller's transaction.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithTx returns a Ledger bound to tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx}
}

// Append stores tp as the next entry of its session. The sequence number is
// allocated by the insert statement itself; ID and SequenceNo are set on tp.
func (l *Ledger) Append(ctx context.Context, tp *Touchpoint) error {
	if tp.SessionID == "" {
		return fmt.Errorf("touchpoint needs a session id")
	}
	occurredAt := tp.OccurredAt.UTC()
	if tp.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO touchpoints (session_id, sequence_no, occurred_at, source_type, source, medium,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term, page_ref, consumed, created_at)
		SELECT ?, COALESCE(MAX(sequence_no), 0) + 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?
		FROM touchpoints WHERE session_id = ?
		RETURNING id, sequence_no
	`
	var inserted struct {
		ID         uint
		SequenceNo int
	}
	err := l.db.WithContext(ctx).Raw(query,
		tp.SessionID, occurredAt, tp.SourceType, tp.Source, tp.Medium,
		tp.UTM.Source, tp.UTM.Medium, tp.UTM.Campaign, tp.UTM.Content, tp.UTM.Term,
		tp.PageRef, now, tp.SessionID).Scan(&inserted).Error
	if err != nil {
		return fmt.Errorf("failed to append touchpoint: %w", err)
	}

	tp.ID = inserted.ID
	tp.SequenceNo = inserted.SequenceNo
	tp.OccurredAt = occurredAt
	tp.CreatedAt = now
	return nil
}

// GetTouchpoints returns the whole ledger of a session in sequence order,
// consumed entries included. An unknown session has an empty ledger.
func (l *Ledger) GetTouchpoints(ctx context.Context, sessionID string) ([]Touchpoint, error) {
	var tps []Touchpoint
	err := l.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence_no ASC").
		Find(&tps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read touchpoints: %w", err)
	}
	return tps, nil
}

// Consume flags every unconsumed entry with sequence_no <= upTo as attributed
// to orderID and returns the number of rows flagged.
func (l *Ledger) Consume(ctx context.Context, sessionID string, upTo int, orderID string) (int64, error) {
	now := time.Now().UTC()
	result := l.db.WithContext(ctx).Model(&Touchpoint{}).
		Where("session_id = ? AND sequence_no <= ? AND consumed = ?", sessionID, upTo, false).
		Updates(map[string]any{
			"consumed":          true,
			"consumed_at":       now,
			"consumed_by_order": orderID,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to consume touchpoints: %w", result.Error)
	}
	return result.RowsAffected, nil
}

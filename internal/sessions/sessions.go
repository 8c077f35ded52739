// Package sessions stores one row per visitor session. A session is created on
// the first hit of a visitor's identity window and updated by every later hit
// and conversion in that window.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/models"
)

// ErrSessionNotFound is returned by Get for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is a visitor session row
type Session struct {
	ID                 uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID          string     `gorm:"not null;size:64;uniqueIndex:idx_sessions_session_id" json:"session_id"`
	VisitorID          string     `gorm:"not null;size:64;index:idx_sessions_visitor_last_seen" json:"visitor_id"`
	FirstPage          string     `gorm:"size:2048" json:"first_page"`
	FirstReferrer      string     `gorm:"size:2048" json:"first_referrer"`
	UTM                models.UTM `gorm:"embedded;embeddedPrefix:utm_" json:"utm"`
	CountryCode        string     `gorm:"size:16" json:"country_code"`
	DeviceType         string     `gorm:"size:16" json:"device_type"`
	PageviewCount      int64      `gorm:"not null;default:0" json:"pageview_count"`
	AccumulatedRevenue int64      `gorm:"not null;default:0" json:"accumulated_revenue"`
	FirstSeen          time.Time  `gorm:"not null" json:"first_seen"`
	LastSeen           time.Time  `gorm:"not null;index;index:idx_sessions_visitor_last_seen" json:"last_seen"`
}

// TableName specifies the table name for GORM
func (Session) TableName() string {
	return "sessions"
}

// Hit is the part of a tracked event that touches its session.
type Hit struct {
	SessionID   string
	VisitorID   string
	Page        string
	Referrer    string
	UTM         models.UTM
	CountryCode string
	DeviceType  string
	Pageview    bool
	At          time.Time
}

// TouchResult reports what a hit did to the session table.
type TouchResult struct {
	NewSession bool
	NewVisitor bool
}

// Store reads and writes sessions. Use WithTx to join a caller's transaction.
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

// Touch records a hit. The first hit creates the session with its landing
// snapshot; later hits bump the pageview count and move last_seen forward.
// Out-of-order hits never move last_seen backwards.
func (s *Store) Touch(ctx context.Context, hit Hit) (TouchResult, error) {
	db := s.db.WithContext(ctx)
	at := hit.At.UTC()
	pageviews := 0
	if hit.Pageview {
		pageviews = 1
	}

	insert := `
		INSERT INTO sessions (session_id, visitor_id, first_page, first_referrer,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			country_code, device_type, pageview_count, accumulated_revenue, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (session_id) DO NOTHING
	`
	result := db.Exec(insert,
		hit.SessionID, hit.VisitorID, hit.Page, hit.Referrer,
		hit.UTM.Source, hit.UTM.Medium, hit.UTM.Campaign, hit.UTM.Content, hit.UTM.Term,
		hit.CountryCode, hit.DeviceType, pageviews, at, at)
	if result.Error != nil {
		return TouchResult{}, fmt.Errorf("failed to insert session: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		update := `
			UPDATE sessions SET
				pageview_count = pageview_count + ?,
				first_seen = MIN(first_seen, ?),
				last_seen = MAX(last_seen, ?)
			WHERE session_id = ?
		`
		if err := db.Exec(update, pageviews, at, at, hit.SessionID).Error; err != nil {
			return TouchResult{}, fmt.Errorf("failed to update session: %w", err)
		}
		return TouchResult{}, nil
	}

	var earlier int64
	err := db.Model(&Session{}).
		Where("visitor_id = ? AND session_id <> ?", hit.VisitorID, hit.SessionID).
		Count(&earlier).Error
	if err != nil {
		return TouchResult{}, fmt.Errorf("failed to check visitor history: %w", err)
	}

	return TouchResult{NewSession: true, NewVisitor: earlier == 0}, nil
}

// OpenSessionFor returns the visitor's most recent session that was active
// within timeout of at, or nil when there is none.
func (s *Store) OpenSessionFor(ctx context.Context, visitorID string, at time.Time, timeout time.Duration) (*Session, error) {
	at = at.UTC()
	var session Session
	err := s.db.WithContext(ctx).
		Where("visitor_id = ? AND last_seen >= ? AND first_seen <= ?", visitorID, at.Add(-timeout), at).
		Order("last_seen DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open session: %w", err)
	}
	return &session, nil
}

// AddRevenue adds amount (minor units) to the session's accumulated revenue.
func (s *Store) AddRevenue(ctx context.Context, sessionID string, amount int64) error {
	result := s.db.WithContext(ctx).Exec(
		"UPDATE sessions SET accumulated_revenue = accumulated_revenue + ? WHERE session_id = ?",
		amount, sessionID)
	if result.Error != nil {
		return fmt.Errorf("failed to add session revenue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

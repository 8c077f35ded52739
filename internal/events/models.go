package events

import (
	"time"

	"wpinsight/internal/models"
	"wpinsight/internal/registry"
)

// Event is a recorded hit. Rows are immutable; only retention deletes them.
type Event struct {
	ID               uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	EventName        string            `gorm:"not null;size:128;index:idx_events_name_timestamp" json:"event_name"`
	Category         registry.Category `gorm:"not null;size:50" json:"category"`
	Timestamp        time.Time         `gorm:"not null;index;index:idx_events_name_timestamp" json:"timestamp"`
	VisitorID        string            `gorm:"not null;size:64;index" json:"visitor_id"`
	SessionID        string            `gorm:"not null;size:64;index" json:"session_id"`
	PageURL          string            `gorm:"size:2048" json:"page_url"`
	Hostname         string            `gorm:"size:255" json:"hostname"`
	Pathname         string            `gorm:"size:2048" json:"pathname"`
	Referrer         string            `gorm:"size:2048" json:"referrer"`
	ReferrerHostname string            `gorm:"size:255" json:"referrer_hostname"`
	UTM              models.UTM        `gorm:"embedded;embeddedPrefix:utm_" json:"utm"`
	CountryCode      string            `gorm:"size:16" json:"country_code"`
	DeviceType       string            `gorm:"size:16" json:"device_type"`
	Browser          string            `gorm:"size:64" json:"browser"`
	OperatingSystem  string            `gorm:"size:64" json:"operating_system"`
	Properties       models.JSON       `gorm:"type:text" json:"properties"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Event) TableName() string {
	return "events"
}

// DecodeProperties returns the stored properties.
func (e Event) DecodeProperties() (Properties, error) {
	props := Properties{}
	if err := e.Properties.Decode(&props); err != nil {
		return nil, err
	}
	return props, nil
}

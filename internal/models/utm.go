package models

import (
	"net/url"
	"strings"
)

// UTM is the campaign tag snapshot embedded in events, sessions and touchpoints.
type UTM struct {
	Source   string `gorm:"size:255" json:"source,omitempty"`
	Medium   string `gorm:"size:255" json:"medium,omitempty"`
	Campaign string `gorm:"size:255" json:"campaign,omitempty"`
	Content  string `gorm:"size:255" json:"content,omitempty"`
	Term     string `gorm:"size:255" json:"term,omitempty"`
}

// UTMFromQuery reads the utm_* parameters of a query string. Values are
// trimmed and lower-cased so tags differing only in case aggregate together.
func UTMFromQuery(values url.Values) UTM {
	get := func(key string) string {
		return strings.ToLower(strings.TrimSpace(values.Get(key)))
	}
	return UTM{
		Source:   get("utm_source"),
		Medium:   get("utm_medium"),
		Campaign: get("utm_campaign"),
		Content:  get("utm_content"),
		Term:     get("utm_term"),
	}
}

// IsZero reports whether no campaign tag is set.
func (u UTM) IsZero() bool {
	return u == UTM{}
}

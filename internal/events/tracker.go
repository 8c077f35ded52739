package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"wpinsight/internal/aggregates"
	"wpinsight/internal/identity"
	"wpinsight/internal/models"
	"wpinsight/internal/money"
	"wpinsight/internal/pkg/geoip"
	"wpinsight/internal/pkg/referrers"
	"wpinsight/internal/pkg/user_agent"
	"wpinsight/internal/registry"
	"wpinsight/internal/sessions"
	"wpinsight/internal/touchpoints"
)

// GeoResolver maps an IP address to a country code. *geoip.Resolver implements it.
type GeoResolver interface {
	ResolveGeo(ipAddress string) string
}

// UserAgentParser parses user agents. *user_agent.Parser implements it.
type UserAgentParser interface {
	Parse(userAgent string) user_agent.UserAgent
}

// Hit is a raw tracked event. VisitorID and SessionID are optional context
// ids; without them identity is derived from the IP address and user agent.
type Hit struct {
	EventName  string
	Properties Properties
	VisitorID  string
	SessionID  string
	PageURL    string
	Referrer   string
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
}

// TrackResult describes what a tracked hit recorded.
type TrackResult struct {
	Event      *Event
	Normalized *NormalizedEvent
	NewSession bool
	NewVisitor bool
	Touchpoint *touchpoints.Touchpoint
	// SkippedBot is set when the hit came from a bot and nothing was recorded.
	SkippedBot bool
}

// TrackerConfig holds the collaborators of a Tracker.
type TrackerConfig struct {
	Normalizer   *Normalizer
	Identity     *identity.Resolver
	Geo          GeoResolver
	UserAgents   UserAgentParser
	SiteHostname string
	// DefaultCurrency applies to revenue properties without a currency.
	DefaultCurrency string
}

// Tracker runs the ingestion pipeline: normalize, resolve identity, then
// write the session, the event, its aggregates and its touchpoint in one
// transaction.
type Tracker struct {
	db     *gorm.DB
	logger *slog.Logger
	cfg    TrackerConfig

	sessions *sessions.Store
	store    *aggregates.Store
	ledger   *touchpoints.Ledger
}

func NewTracker(db *gorm.DB, logger *slog.Logger, cfg TrackerConfig) *Tracker {
	return &Tracker{
		db:       db,
		logger:   logger,
		cfg:      cfg,
		sessions: sessions.NewStore(db),
		store:    aggregates.NewStore(db),
		ledger:   touchpoints.NewLedger(db),
	}
}

// prepared is a hit after every lookup that happens outside the transaction.
type prepared struct {
	hit          Hit
	event        *NormalizedEvent
	ua           user_agent.UserAgent
	visitorID    string
	sessionID    string
	derived      bool
	page         PageInfo
	referrerHost string
	country      string
	at           time.Time
}

// Track records a hit. Only a *ValidationError rejects it; everything else
// degrades to defaults. Storage errors are logged and returned so callers
// that fire and forget can drop them.
func (t *Tracker) Track(ctx context.Context, hit Hit) (*TrackResult, error) {
	p, err := t.prepare(ctx, hit)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.logger.Debug("Rejected hit", slog.String("event_name", hit.EventName), slog.Any("error", err))
		}
		return nil, err
	}
	if p.ua.Bot {
		t.logger.Debug("Skipping bot hit", slog.String("browser", p.ua.Browser))
		return &TrackResult{Normalized: p.event, SkippedBot: true}, nil
	}

	result := &TrackResult{Normalized: p.event}
	err = models.PerformWrite(t.logger, t.db.WithContext(ctx), func(tx *gorm.DB) error {
		return t.record(ctx, tx, p, result)
	})
	if err != nil {
		t.logger.Error("Failed to record hit",
			slog.String("event_name", p.event.Name),
			slog.Any("error", err))
		return nil, err
	}

	t.logger.Debug("Tracked hit",
		slog.String("event_name", p.event.Name),
		slog.String("session_id", result.Event.SessionID),
		slog.Bool("new_session", result.NewSession))
	return result, nil
}

func (t *Tracker) prepare(ctx context.Context, hit Hit) (*prepared, error) {
	event, err := t.cfg.Normalizer.Normalize(ctx, hit.EventName, hit.Properties)
	if err != nil {
		return nil, err
	}

	p := &prepared{hit: hit, event: event, at: hit.Timestamp.UTC()}
	if hit.Timestamp.IsZero() {
		p.at = time.Now().UTC()
	}

	if hit.UserAgent != "" && t.cfg.UserAgents != nil {
		p.ua = t.cfg.UserAgents.Parse(hit.UserAgent)
	} else {
		p.ua = user_agent.UserAgent{UserAgent: hit.UserAgent, OS: "Unknown", Browser: "Unknown", Device: "Desktop", Desktop: true}
	}

	p.visitorID = strings.TrimSpace(hit.VisitorID)
	p.sessionID = strings.TrimSpace(hit.SessionID)
	if p.visitorID == "" && p.sessionID == "" && hit.IPAddress == "" && hit.UserAgent == "" {
		return nil, &ValidationError{Field: "identity", Reason: "hit has no visitor, session, ip address or user agent"}
	}
	if p.visitorID == "" {
		if p.sessionID != "" && hit.IPAddress == "" && hit.UserAgent == "" {
			p.visitorID = p.sessionID
		} else {
			p.visitorID = t.cfg.Identity.ResolveAt(hit.IPAddress, hit.UserAgent, p.at).VisitorID
		}
	}
	if p.sessionID == "" {
		p.sessionID = t.cfg.Identity.SessionID(p.visitorID, p.at)
		p.derived = true
	}

	p.page = ParsePage(hit.PageURL)
	p.referrerHost = ReferrerHostname(hit.Referrer)
	if IsSelfReferral(p.referrerHost, t.cfg.SiteHostname) || IsSelfReferral(p.referrerHost, p.page.Hostname) {
		p.referrerHost = ""
	}

	p.country = geoip.UnknownCountry
	if hit.IPAddress != "" && t.cfg.Geo != nil {
		p.country = t.cfg.Geo.ResolveGeo(hit.IPAddress)
	}
	return p, nil
}

func (t *Tracker) record(ctx context.Context, tx *gorm.DB, p *prepared, result *TrackResult) error {
	sessionStore := t.sessions.WithTx(tx)
	isPageview := p.event.Name == registry.EventPageview

	sessionID := p.sessionID
	if p.derived {
		// Continue a session that started in an earlier time bucket
		open, err := sessionStore.OpenSessionFor(ctx, p.visitorID, p.at, t.cfg.Identity.SessionTimeout())
		if err != nil {
			return err
		}
		if open != nil {
			sessionID = open.SessionID
		}
	}

	touch, err := sessionStore.Touch(ctx, sessions.Hit{
		SessionID:   sessionID,
		VisitorID:   p.visitorID,
		Page:        p.page.Pathname,
		Referrer:    p.referrerHost,
		UTM:         p.page.UTM,
		CountryCode: p.country,
		DeviceType:  p.ua.DeviceType(),
		Pageview:    isPageview,
		At:          p.at,
	})
	if err != nil {
		return err
	}
	result.NewSession = touch.NewSession
	result.NewVisitor = touch.NewVisitor

	props, err := models.MarshalJSONColumn(p.event.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}
	event := &Event{
		EventName:        p.event.Name,
		Category:         p.event.Category,
		Timestamp:        p.at,
		VisitorID:        p.visitorID,
		SessionID:        sessionID,
		PageURL:          p.page.URL,
		Hostname:         p.page.Hostname,
		Pathname:         p.page.Pathname,
		Referrer:         p.hit.Referrer,
		ReferrerHostname: p.referrerHost,
		UTM:              p.page.UTM,
		CountryCode:      p.country,
		DeviceType:       p.ua.DeviceType(),
		Browser:          p.ua.Browser,
		OperatingSystem:  p.ua.OS,
		Properties:       props,
		CreatedAt:        time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	result.Event = event

	if err := t.updateAggregates(ctx, tx, p, event, touch); err != nil {
		return err
	}

	tp := t.touchpointFor(p, event, touch)
	if tp != nil {
		if err := t.ledger.WithTx(tx).Append(ctx, tp); err != nil {
			return err
		}
		result.Touchpoint = tp
	}
	return nil
}

func (t *Tracker) updateAggregates(ctx context.Context, tx *gorm.DB, p *prepared, event *Event, touch sessions.TouchResult) error {
	store := t.store.WithTx(tx)
	key := func(metric, dimension, value string) aggregates.Key {
		return aggregates.Key{Date: p.at, MetricType: metric, Dimension: dimension, DimensionValue: value}
	}
	referrer := referrers.Source(p.referrerHost)

	keys := []aggregates.Key{
		key(aggregates.MetricEvents, aggregates.DimensionEvent, event.EventName),
		key(aggregates.MetricEvents, aggregates.DimensionCategory, string(event.Category)),
	}

	switch event.EventName {
	case registry.EventPageview:
		keys = append(keys,
			key(aggregates.MetricPageviews, aggregates.DimensionSite, aggregates.SiteAll),
			key(aggregates.MetricPageviews, aggregates.DimensionPage, event.Pathname),
			key(aggregates.MetricPageviews, aggregates.DimensionReferrer, referrer),
			key(aggregates.MetricPageviews, aggregates.DimensionDevice, event.DeviceType),
			key(aggregates.MetricPageviews, aggregates.DimensionBrowser, event.Browser),
			key(aggregates.MetricPageviews, aggregates.DimensionOS, event.OperatingSystem),
			key(aggregates.MetricPageviews, aggregates.DimensionCountry, event.CountryCode),
		)
		if !event.UTM.IsZero() {
			keys = append(keys, key(aggregates.MetricPageviews, aggregates.DimensionCampaign, event.UTM.Campaign))
		}
	case registry.EventClick, registry.EventEmailClick:
		keys = append(keys, key(aggregates.MetricClicks, aggregates.DimensionElement,
			p.event.Properties.First("element", "url", "href")))
	case registry.EventProductView:
		keys = append(keys, key(aggregates.MetricProductViews, aggregates.DimensionProduct,
			p.event.Properties.First("product", "product_id", "product_name")))
	}

	if touch.NewVisitor {
		keys = append(keys,
			key(aggregates.MetricVisitors, aggregates.DimensionSite, aggregates.SiteAll),
			key(aggregates.MetricVisitors, aggregates.DimensionPage, event.Pathname),
			key(aggregates.MetricVisitors, aggregates.DimensionReferrer, referrer),
			key(aggregates.MetricVisitors, aggregates.DimensionDevice, event.DeviceType),
			key(aggregates.MetricVisitors, aggregates.DimensionCountry, event.CountryCode),
		)
	}
	if touch.NewSession {
		keys = append(keys,
			key(aggregates.MetricSessions, aggregates.DimensionSite, aggregates.SiteAll),
			key(aggregates.MetricEntrances, aggregates.DimensionPage, event.Pathname),
		)
	}

	if err := store.IncrementAll(ctx, keys, 1); err != nil {
		return err
	}
	return t.recordEventRevenue(ctx, store, p, event)
}

// recordEventRevenue folds an ecommerce event's numeric revenue or amount
// property into the revenue stats for that event name.
func (t *Tracker) recordEventRevenue(ctx context.Context, store *aggregates.Store, p *prepared, event *Event) error {
	if event.Category != registry.CategoryEcommerce {
		return nil
	}
	var amount Value
	for _, k := range []string{"revenue", "amount", "value"} {
		if v, ok := p.event.Properties[k]; ok {
			amount = v
			break
		}
	}
	amount, ok := amount.Coerce(registry.TypeNumber)
	if !ok || amount.IsNull() {
		return nil
	}

	code := p.event.Properties.First("currency")
	if code == "" {
		code = t.cfg.DefaultCurrency
	}
	minor, err := money.ToMinor(amount.Num(), code)
	if err != nil {
		t.logger.Warn("Ignoring event revenue",
			slog.String("event_name", event.EventName),
			slog.Any("error", err))
		return nil
	}
	unit, _ := money.ParseCurrency(code)
	return store.IncrementRevenue(ctx, p.at, event.EventName, unit.String(), minor)
}

// touchpointFor decides whether the hit is attribution relevant: the first
// pageview of a session, a campaign-tagged pageview, or an explicit email click.
func (t *Tracker) touchpointFor(p *prepared, event *Event, touch sessions.TouchResult) *touchpoints.Touchpoint {
	tp := &touchpoints.Touchpoint{
		SessionID:  event.SessionID,
		OccurredAt: event.Timestamp,
		UTM:        event.UTM,
		PageRef:    event.Pathname,
		Source:     referrers.Source(p.referrerHost),
		Medium:     referrers.Medium(p.referrerHost),
	}
	if event.UTM.Source != "" {
		tp.Source = event.UTM.Source
	}
	if event.UTM.Medium != "" {
		tp.Medium = event.UTM.Medium
	}

	switch {
	case event.EventName == registry.EventEmailClick:
		tp.SourceType = touchpoints.SourceEmailClick
		tp.Medium = referrers.MediumEmail
		if src := p.event.Properties.First("source", "campaign"); src != "" && event.UTM.Source == "" {
			tp.Source = src
		}
	case event.EventName != registry.EventPageview:
		return nil
	case !event.UTM.IsZero():
		tp.SourceType = touchpoints.SourceCampaignClick
		if event.UTM.Medium == referrers.MediumEmail {
			tp.SourceType = touchpoints.SourceEmailClick
		}
	case touch.NewSession:
		tp.SourceType = touchpoints.SourcePageview
	default:
		return nil
	}
	return tp
}

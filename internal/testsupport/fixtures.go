package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wpinsight/internal/attribution"
	"wpinsight/internal/events"
	"wpinsight/internal/identity"
	"wpinsight/internal/pkg/geoip"
	"wpinsight/internal/pkg/user_agent"
	"wpinsight/internal/registry"
)

// Common user agents for fixtures.
const (
	DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	MobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	BotUserAgent     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

	TestSecret   = "test-secret"
	SiteHostname = "shop.example.com"
)

// Pipeline is a fully wired ingestion and attribution stack over one database.
type Pipeline struct {
	DB         *gorm.DB
	Registry   *registry.Registry
	Normalizer *events.Normalizer
	Identity   *identity.Resolver
	Tracker    *events.Tracker
	Engine     *attribution.Engine
	Recorder   *attribution.Recorder
}

// NewPipeline wires every component against db without GeoIP.
func NewPipeline(t *testing.T, db *gorm.DB) *Pipeline {
	t.Helper()

	logger := GetLogger()
	parser, err := user_agent.NewParser(logger)
	require.NoError(t, err)

	reg := registry.New(db, logger)
	normalizer := events.NewNormalizer(reg, logger)
	resolver := identity.NewResolver(TestSecret, identity.DefaultSessionTimeout)
	tracker := events.NewTracker(db, logger, events.TrackerConfig{
		Normalizer:      normalizer,
		Identity:        resolver,
		Geo:             geoip.NewResolver("", logger),
		UserAgents:      parser,
		SiteHostname:    SiteHostname,
		DefaultCurrency: "USD",
	})
	engine := attribution.NewEngine(attribution.DefaultHalfLife, logger)

	return &Pipeline{
		DB:         db,
		Registry:   reg,
		Normalizer: normalizer,
		Identity:   resolver,
		Tracker:    tracker,
		Engine:     engine,
		Recorder:   attribution.NewRecorder(db, logger, engine, attribution.AllModels(), "USD"),
	}
}

// Pageview builds a pageview hit.
func Pageview(ip, userAgent, pageURL, referrer string, at time.Time) events.Hit {
	return events.Hit{
		EventName: registry.EventPageview,
		IPAddress: ip,
		UserAgent: userAgent,
		PageURL:   pageURL,
		Referrer:  referrer,
		Timestamp: at,
	}
}

// Track records hit and fails the test on error.
func (p *Pipeline) Track(t *testing.T, hit events.Hit) *events.TrackResult {
	t.Helper()
	result, err := p.Tracker.Track(context.Background(), hit)
	require.NoError(t, err)
	return result
}

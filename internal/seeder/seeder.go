// Package seeder generates realistic demo traffic and orders through the real
// ingestion and attribution pipeline.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"wpinsight/internal/attribution"
	"wpinsight/internal/events"
	"wpinsight/internal/registry"
)

// Options controls the volume and shape of generated data.
type Options struct {
	Sessions int
	// Days spreads sessions over the days ending at Now.
	Days     int
	Hostname string
	Currency string
	Now      time.Time
	// Seed makes a run reproducible.
	Seed uint64
}

// Result counts what was written.
type Result struct {
	Hits        int
	SkippedBots int
	Conversions int
}

// Seeder drives the Tracker and Recorder with generated journeys.
type Seeder struct {
	registry *registry.Registry
	tracker  *events.Tracker
	recorder *attribution.Recorder
	logger   *slog.Logger
}

func NewSeeder(reg *registry.Registry, tracker *events.Tracker, recorder *attribution.Recorder, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{registry: reg, tracker: tracker, recorder: recorder, logger: logger}
}

var journeyTemplates = [][]string{
	{"/", "/shop", "/product/ceramic-mug", "/cart", "/checkout"},
	{"/blog/brewing-guide", "/shop", "/product/pour-over-kit"},
	{"/", "/about", "/contact"},
	{"/product/ceramic-mug", "/cart", "/checkout"},
	{"/", "/shop", "/product/tote-bag", "/product/ceramic-mug", "/cart"},
	{"/blog/brewing-guide", "/blog/grinders"},
	{"/sale", "/product/pour-over-kit", "/cart", "/checkout"},
}

var products = []attribution.LineItem{
	{ProductID: "mug-01", ProductName: "Ceramic mug", Amount: 1800},
	{ProductID: "kit-02", ProductName: "Pour-over kit", Amount: 4900},
	{ProductID: "bag-03", ProductName: "Tote bag", Amount: 2200},
}

// pluginEvents are registered so generated custom events carry a category.
var pluginEvents = map[string]registry.Definition{
	"form_submit":       {Label: "Form submitted", Category: registry.CategoryForm, Owner: "contact-form-7", Schema: registry.Schema{"form_id": registry.TypeString}},
	"video_play":        {Label: "Video played", Category: registry.CategoryVideo, Owner: "presto-player", Schema: registry.Schema{"seconds": registry.TypeNumber}},
	"newsletter_signup": {Label: "Newsletter signup", Category: registry.CategoryEngagement, Owner: "mailpoet"},
}

// Run registers the demo plugin events and generates opts.Sessions journeys.
func (s *Seeder) Run(ctx context.Context, opts Options) (Result, error) {
	opts = withDefaults(opts)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	start := time.Now()
	s.logger.Info("Starting seeding", slog.Int("sessions", opts.Sessions), slog.Int("days", opts.Days))

	for name, def := range pluginEvents {
		if _, err := s.registry.Register(ctx, name, def); err != nil {
			return Result{}, fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	ipPool := generateIPPool(rng, 100)
	var result Result
	for i := 0; i < opts.Sessions; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.seedJourney(ctx, rng, opts, ipPool, &result); err != nil {
			return result, err
		}
	}

	s.logger.Info("Seeding completed successfully",
		slog.Int("hits", result.Hits),
		slog.Int("skipped_bots", result.SkippedBots),
		slog.Int("conversions", result.Conversions),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

func withDefaults(opts Options) Options {
	if opts.Sessions <= 0 {
		opts.Sessions = 100
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Hostname == "" {
		opts.Hostname = "shop.example.com"
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return opts
}

func (s *Seeder) seedJourney(ctx context.Context, rng *rand.Rand, opts Options, ipPool []string, result *Result) error {
	journey := journeyTemplates[rng.IntN(len(journeyTemplates))]
	ip := ipPool[rng.IntN(len(ipPool))]
	userAgent := userAgents[rng.IntN(len(userAgents))]
	referrer := referrers[rng.IntN(len(referrers))]

	at := opts.Now.Add(-time.Duration(rng.Int64N(int64(opts.Days) * int64(24*time.Hour))))
	var sessionID string

	track := func(hit events.Hit) error {
		hit.IPAddress, hit.UserAgent, hit.Timestamp = ip, userAgent, at
		tracked, err := s.tracker.Track(ctx, hit)
		if err != nil {
			return fmt.Errorf("failed to track %s: %w", hit.EventName, err)
		}
		if tracked.SkippedBot {
			result.SkippedBots++
			return nil
		}
		result.Hits++
		sessionID = tracked.Event.SessionID
		return nil
	}

	for i, path := range journey {
		if i > 0 {
			at = at.Add(time.Duration(rng.IntN(110)+10) * time.Second)
		}
		page := "https://" + opts.Hostname + path
		hit := events.Hit{EventName: registry.EventPageview, PageURL: page}
		if i == 0 {
			hit.PageURL = addUTMParams(rng, page)
			hit.Referrer = referrer
		} else {
			hit.Referrer = "https://" + opts.Hostname + journey[i-1]
		}
		if err := track(hit); err != nil {
			return err
		}

		if product, ok := productFor(path); ok {
			if err := track(events.Hit{
				EventName:  registry.EventProductView,
				PageURL:    page,
				Properties: events.Properties{"product": events.String(product.ProductID), "price": events.Number(float64(product.Amount) / 100)},
			}); err != nil {
				return err
			}
		}
	}

	if rng.Float64() < 0.15 {
		names := []string{"form_submit", "video_play", "newsletter_signup"}
		name := names[rng.IntN(len(names))]
		at = at.Add(30 * time.Second)
		if err := track(events.Hit{
			EventName:  name,
			PageURL:    "https://" + opts.Hostname + journey[len(journey)-1],
			Properties: events.Properties{"form_id": events.String("contact"), "seconds": events.Number(float64(rng.IntN(300)))},
		}); err != nil {
			return err
		}
	}

	if sessionID == "" || journey[len(journey)-1] != "/checkout" || rng.Float64() > 0.6 {
		return nil
	}

	order := attribution.Order{
		OrderID:    fmt.Sprintf("demo-%d-%d", opts.Seed, result.Conversions+1),
		SessionID:  sessionID,
		Currency:   opts.Currency,
		OccurredAt: at.Add(time.Minute),
	}
	for n := rng.IntN(len(products)) + 1; n > 0; n-- {
		item := products[rng.IntN(len(products))]
		item.Quantity = int64(rng.IntN(3) + 1)
		item.Amount *= item.Quantity
		order.Amount += item.Amount
		order.LineItems = append(order.LineItems, item)
	}

	recorded, err := s.recorder.RecordConversion(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to record order %s: %w", order.OrderID, err)
	}
	if !recorded.Duplicate {
		result.Conversions++
	}
	return nil
}

func productFor(path string) (attribution.LineItem, bool) {
	switch path {
	case "/product/ceramic-mug":
		return products[0], true
	case "/product/pour-over-kit":
		return products[1], true
	case "/product/tote-bag":
		return products[2], true
	}
	return attribution.LineItem{}, false
}

// generateIPPool creates a pool of unique IPv4 addresses
func generateIPPool(rng *rand.Rand, count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rng.IntN(223)+1, rng.IntN(256), rng.IntN(256), rng.IntN(256))
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
}

var referrers = []string{
	"", // Direct visit
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://l.facebook.com/",
	"https://t.co/abc123",
	"https://www.pinterest.com/",
	"https://mail.google.com/",
	"https://coffee-forum.example.org/thread/42",
}

// addUTMParams tags a landing page with campaign parameters, sometimes.
func addUTMParams(rng *rand.Rand, page string) string {
	if rng.IntN(10) < 7 {
		return page
	}
	u, err := url.Parse(page)
	if err != nil {
		return page
	}

	campaigns := []struct{ source, medium, campaign string }{
		{"google", "cpc", "brand"},
		{"facebook", "paid_social", "spring_sale"},
		{"newsletter", "email", "weekly_digest"},
		{"instagram", "social", "new_mugs"},
	}
	c := campaigns[rng.IntN(len(campaigns))]
	params := u.Query()
	params.Set("utm_source", c.source)
	params.Set("utm_medium", c.medium)
	params.Set("utm_campaign", c.campaign)
	u.RawQuery = params.Encode()
	return u.String()
}

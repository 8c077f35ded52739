package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"wpinsight/internal"
	"wpinsight/internal/aggregates"
	"wpinsight/internal/attribution"
	"wpinsight/internal/events"
	"wpinsight/internal/money"
	"wpinsight/internal/registry"
	"wpinsight/internal/retention"
	"wpinsight/internal/seeder"
)

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if err := app.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintln(out.w, "Migrations completed successfully")
	return nil
}

// RegisterCommand registers or replaces an event definition
type RegisterCommand struct{}

func (c *RegisterCommand) Name() string        { return "register" }
func (c *RegisterCommand) Description() string { return "Registers an event definition" }

func (c *RegisterCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	label := fs.String("label", "", "display label")
	category := fs.String("category", string(registry.CategoryCustom), "event category")
	owner := fs.String("owner", "", "plugin that owns the event")
	schema := fs.String("schema", "", "property types, e.g. amount=number,sku=string")
	disable := fs.Bool("disable", false, "mark the definition inactive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s [flags] <event_name>", c.Name())
	}

	parsed, err := parseSchema(*schema)
	if err != nil {
		return err
	}
	def, err := app.Registry.Register(ctx, fs.Arg(0), registry.Definition{
		Label:    *label,
		Category: registry.Category(*category),
		Owner:    *owner,
		Schema:   parsed,
	})
	if err != nil {
		return err
	}
	if *disable {
		if err := app.Registry.SetActive(ctx, def.EventName, false); err != nil {
			return err
		}
		def.Active = false
	}

	return out.Result(def, func(w io.Writer) {
		fmt.Fprintf(w, "Registered %s (%s, active=%t)\n", def.EventName, def.Category, def.Active)
	})
}

func parseSchema(s string) (registry.Schema, error) {
	schema := registry.Schema{}
	for _, pair := range strings.Split(s, ",") {
		if pair = strings.TrimSpace(pair); pair == "" {
			continue
		}
		name, typ, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid schema entry %q, expected name=type", pair)
		}
		schema[strings.TrimSpace(name)] = registry.PropertyType(strings.TrimSpace(typ))
	}
	return schema, nil
}

// DefinitionsCommand lists registered event definitions
type DefinitionsCommand struct{}

func (c *DefinitionsCommand) Name() string        { return "definitions" }
func (c *DefinitionsCommand) Description() string { return "Lists registered event definitions" }

func (c *DefinitionsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	defs, err := app.Registry.List(ctx)
	if err != nil {
		return err
	}
	return out.Result(defs, func(w io.Writer) {
		for _, def := range defs {
			fmt.Fprintf(w, "%-32s %-12s active=%-5t owner=%s schema=%s\n",
				def.EventName, def.Category, def.Active, def.Owner, string(def.Schema))
		}
	})
}

// TrackCommand records a single hit
type TrackCommand struct{}

func (c *TrackCommand) Name() string        { return "track" }
func (c *TrackCommand) Description() string { return "Tracks an event" }

func (c *TrackCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	event := fs.String("event", registry.EventPageview, "event name")
	pageURL := fs.String("url", "", "page URL")
	referrer := fs.String("referrer", "", "referrer URL")
	ip := fs.String("ip", "", "client IP address")
	ua := fs.String("ua", "", "client user agent")
	visitor := fs.String("visitor", "", "visitor id from the request context")
	session := fs.String("session", "", "session id from the request context")
	props := fs.String("props", "", "properties as a JSON object")
	at := fs.String("at", "", "RFC 3339 timestamp (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hit := events.Hit{
		EventName: *event,
		VisitorID: *visitor,
		SessionID: *session,
		PageURL:   *pageURL,
		Referrer:  *referrer,
		IPAddress: *ip,
		UserAgent: *ua,
	}
	if *props != "" {
		parsed, err := events.ParseProperties([]byte(*props))
		if err != nil {
			return fmt.Errorf("invalid properties: %w", err)
		}
		hit.Properties = parsed
	}
	if *at != "" {
		ts, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		hit.Timestamp = ts
	}

	result, err := app.Tracker.Track(ctx, hit)
	if err != nil {
		return err
	}
	return out.Result(result, func(w io.Writer) {
		if result.SkippedBot {
			fmt.Fprintln(w, "Skipped bot traffic")
			return
		}
		fmt.Fprintf(w, "Tracked %s session=%s new_session=%t new_visitor=%t\n",
			result.Event.EventName, result.Event.SessionID, result.NewSession, result.NewVisitor)
		if tp := result.Touchpoint; tp != nil {
			fmt.Fprintf(w, "Touchpoint #%d %s %s/%s\n", tp.SequenceNo, tp.SourceType, tp.Source, tp.Medium)
		}
	})
}

// ConvertCommand records a conversion and attributes it
type ConvertCommand struct{}

func (c *ConvertCommand) Name() string        { return "convert" }
func (c *ConvertCommand) Description() string { return "Records an order and attributes its revenue" }

func (c *ConvertCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	session := fs.String("session", "", "session id of the buyer")
	amount := fs.String("amount", "", "order total in major units, e.g. 49.90")
	currency := fs.String("currency", app.Config.DefaultCurrency, "ISO 4217 currency")
	items := fs.String("items", "", `line items as JSON: [{"product_id":"sku","quantity":1,"amount":"9.90"}]`)
	at := fs.String("at", "", "RFC 3339 order time (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	total, err := money.ParseMinor(*amount, *currency)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	order := attribution.Order{
		OrderID:   *orderID,
		SessionID: *session,
		Amount:    total,
		Currency:  *currency,
	}
	if *at != "" {
		if order.OccurredAt, err = time.Parse(time.RFC3339, *at); err != nil {
			return fmt.Errorf("invalid order time: %w", err)
		}
	}
	if *items != "" {
		if order.LineItems, err = parseLineItems(*items, *currency); err != nil {
			return err
		}
	}

	result, err := app.Recorder.RecordConversion(ctx, order)
	if err != nil {
		return err
	}
	return out.Result(result, func(w io.Writer) {
		conv := result.Conversion
		if result.Duplicate {
			fmt.Fprintf(w, "Order %s was already recorded\n", conv.OrderID)
		}
		fmt.Fprintf(w, "Order %s %s direct=%t\n", conv.OrderID, money.FormatMinor(conv.Amount, conv.Currency), conv.Direct)
		for _, model := range app.Recorder.Models() {
			for _, a := range result.Allocations[model] {
				fmt.Fprintf(w, "  %-11s %-24s %s\n", model, a.Source+"/"+a.Medium, money.FormatMinor(a.RevenueShare, a.Currency))
			}
		}
	})
}

func parseLineItems(raw, currency string) ([]attribution.LineItem, error) {
	var input []struct {
		ProductID   string `json:"product_id"`
		ProductName string `json:"product_name"`
		Quantity    int64  `json:"quantity"`
		Amount      string `json:"amount"`
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("invalid line items: %w", err)
	}
	items := make([]attribution.LineItem, 0, len(input))
	for _, in := range input {
		amount, err := money.ParseMinor(in.Amount, currency)
		if err != nil {
			return nil, fmt.Errorf("invalid line item amount for %s: %w", in.ProductID, err)
		}
		items = append(items, attribution.LineItem{
			ProductID:   in.ProductID,
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			Amount:      amount,
		})
	}
	return items, nil
}

func dateRangeFlags(fs *flag.FlagSet) (from, to *string, days *int) {
	from = fs.String("from", "", "first day, YYYY-MM-DD")
	to = fs.String("to", "", "last day, YYYY-MM-DD")
	days = fs.Int("days", 30, "days ending today when --from/--to are not set")
	return from, to, days
}

func resolveRange(from, to string, days int) (aggregates.DateRange, error) {
	if from == "" && to == "" {
		return aggregates.LastDays(time.Now(), days), nil
	}
	if to == "" {
		to = aggregates.DayKey(time.Now())
	}
	if from == "" {
		from = to
	}
	return aggregates.ParseDateRange(from, to)
}

// ReportCommand prints the overview of a date range
type ReportCommand struct{}

func (c *ReportCommand) Name() string        { return "report" }
func (c *ReportCommand) Description() string { return "Shows traffic and revenue for a date range" }

func (c *ReportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	from, to, days := dateRangeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := resolveRange(*from, *to, *days)
	if err != nil {
		return err
	}

	overview, err := app.Reporter.Overview(ctx, r)
	if err != nil {
		return err
	}
	return out.Result(overview, func(w io.Writer) {
		fmt.Fprintf(w, "%s to %s\n", overview.From, overview.To)
		fmt.Fprintf(w, "  pageviews %d  visitors %d  sessions %d  conversions %d\n",
			overview.Pageviews, overview.Visitors, overview.Sessions, overview.Conversions)
		printRows(w, "Top pages", overview.TopPages)
		printRows(w, "Top referrers", overview.TopReferrers)
		printRows(w, "Top countries", overview.TopCountries)
		printRows(w, "Top devices", overview.TopDevices)
		printRows(w, "Top events", overview.TopEvents)
		if len(overview.Revenue) > 0 {
			fmt.Fprintln(w, "Revenue")
			for _, rev := range overview.Revenue {
				fmt.Fprintf(w, "  %-24s %s (%d)\n", rev.EventName, money.FormatMinor(rev.TotalAmount, rev.Currency), rev.TransactionCount)
			}
		}
	})
}

func printRows(w io.Writer, title string, rows []aggregates.Row) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, row := range rows {
		value := row.DimensionValue
		if row.Label != "" && row.Label != value {
			value = fmt.Sprintf("%s (%s)", row.Label, value)
		}
		fmt.Fprintf(w, "  %-40s %d\n", value, row.Value)
	}
}

// AttributionCommand prints attributed revenue grouped by a dimension
type AttributionCommand struct{}

func (c *AttributionCommand) Name() string { return "attribution" }

func (c *AttributionCommand) Description() string {
	return "Shows attributed revenue per source, medium, campaign or page"
}

func (c *AttributionCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	model := fs.String("model", string(app.DefaultModel), "attribution model")
	by := fs.String("by", string(attribution.GroupBySource), "source, medium, campaign or page")
	from, to, days := dateRangeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := attribution.ParseModel(*model)
	if err != nil {
		return err
	}
	dimension, err := attribution.ParseGroupDimension(*by)
	if err != nil {
		return err
	}
	r, err := resolveRange(*from, *to, *days)
	if err != nil {
		return err
	}

	report, err := app.Reporter.AttributionReport(ctx, m, r, dimension)
	if err != nil {
		return err
	}
	return out.Result(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s by %s, %s to %s\n", report.Model, report.GroupBy, report.From, report.To)
		for _, cur := range report.Currencies {
			fmt.Fprintf(w, "%s  %s over %d orders\n", cur.Currency, money.FormatMinor(cur.Total, cur.Currency), cur.Orders)
			for _, g := range cur.Groups {
				fmt.Fprintf(w, "  %-40s %s\n", g.Value, money.FormatMinor(g.Amount, cur.Currency))
			}
		}
	})
}

// ConversionCommand shows a stored order with its allocations
type ConversionCommand struct{}

func (c *ConversionCommand) Name() string        { return "conversion" }
func (c *ConversionCommand) Description() string { return "Shows an order and its attribution" }

func (c *ConversionCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <order_id>", c.Name())
	}
	detail, err := app.Reporter.Conversion(ctx, args[0])
	if err != nil {
		return err
	}
	return out.Result(detail, func(w io.Writer) {
		conv := detail.Conversion
		fmt.Fprintf(w, "Order %s %s at %s session=%s\n", conv.OrderID,
			money.FormatMinor(conv.Amount, conv.Currency), conv.OccurredAt.Format(time.RFC3339), conv.SessionID)
		for model, allocs := range detail.Allocations {
			for _, a := range allocs {
				fmt.Fprintf(w, "  %-11s %-20s %-24s %s\n", model, a.TouchpointRef, a.Source+"/"+a.Medium,
					money.FormatMinor(a.RevenueShare, a.Currency))
			}
		}
	})
}

// PurgeCommand runs the retention sweep
type PurgeCommand struct{}

func (c *PurgeCommand) Name() string { return "purge" }

func (c *PurgeCommand) Description() string {
	return "Deletes raw events, sessions and touchpoints past retention"
}

func (c *PurgeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	before := fs.String("before", "", "purge rows older than this day, YYYY-MM-DD (default: configured horizon)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		result retention.Result
		err    error
	)
	if *before != "" {
		cutoff, parseErr := time.Parse(aggregates.DateLayout, *before)
		if parseErr != nil {
			return fmt.Errorf("invalid date %q: %w", *before, parseErr)
		}
		result, err = app.Sweeper.Purge(ctx, cutoff)
	} else {
		result, err = app.Sweeper.Run(ctx)
	}
	if errors.Is(err, retention.ErrSweepInProgress) {
		return fmt.Errorf("%w, try again later", err)
	}
	if err != nil {
		return err
	}

	return out.Result(result, func(w io.Writer) {
		if result.Cutoff.IsZero() {
			fmt.Fprintln(w, "Retention is disabled")
			return
		}
		fmt.Fprintf(w, "Purged rows before %s: events %d, touchpoints %d, sessions %d\n",
			aggregates.DayKey(result.Cutoff), result.Events, result.Touchpoints, result.Sessions)
	})
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

type status struct {
	Database        string           `json:"database"`
	GeoIP           bool             `json:"geoip"`
	RetentionMonths int              `json:"retention_months"`
	Models          []string         `json:"attribution_models"`
	Rows            map[string]int64 `json:"rows"`
	OpenConns       int              `json:"open_connections"`
	MaxOpenConns    int              `json:"max_open_connections"`
}

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DB.WithContext(ctx)
	st := status{
		Database:        app.Config.GetDatabasePath(),
		GeoIP:           app.Geo.Available(),
		RetentionMonths: app.Config.RetentionMonths,
		Rows:            map[string]int64{},
	}
	for _, m := range app.Recorder.Models() {
		st.Models = append(st.Models, string(m))
	}
	for _, table := range []string{"events", "sessions", "touchpoints", "daily_aggregates", "revenue_stats", "conversions", "attribution_allocations", "event_definitions"} {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		st.Rows[table] = count
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	st.OpenConns = sqlDB.Stats().OpenConnections
	st.MaxOpenConns = sqlDB.Stats().MaxOpenConnections

	return out.Result(st, func(w io.Writer) {
		fmt.Fprintln(w, "System Status:")
		fmt.Fprintf(w, "- Database: %s\n", st.Database)
		fmt.Fprintf(w, "- GeoIP: %t\n", st.GeoIP)
		fmt.Fprintf(w, "- Retention: %d months\n", st.RetentionMonths)
		fmt.Fprintf(w, "- Attribution models: %s\n", strings.Join(st.Models, ", "))
		for table, count := range st.Rows {
			fmt.Fprintf(w, "- %s: %d\n", table, count)
		}
		fmt.Fprintf(w, "- Connections: %d open / %d max\n", st.OpenConns, st.MaxOpenConns)
	})
}

// SeedCommand populates the DB with demo traffic and orders
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with demo traffic and orders" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	sessions := fs.Int("sessions", 500, "number of visitor journeys to generate")
	days := fs.Int("days", 30, "spread journeys over this many days")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hostname := app.Config.SiteHostname
	s := seeder.NewSeeder(app.Registry, app.Tracker, app.Recorder, app.Logger)
	result, err := s.Run(ctx, seeder.Options{
		Sessions: *sessions,
		Days:     *days,
		Hostname: hostname,
		Currency: app.Config.DefaultCurrency,
		Seed:     *seed,
	})
	if err != nil {
		return err
	}
	return out.Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded %d hits (%d bot hits skipped) and %d orders\n", result.Hits, result.SkippedBots, result.Conversions)
	})
}

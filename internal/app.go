// Package internal wires the engine's components into one Application.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"wpinsight/internal/attribution"
	"wpinsight/internal/config"
	"wpinsight/internal/database"
	"wpinsight/internal/events"
	"wpinsight/internal/identity"
	"wpinsight/internal/jobs"
	"wpinsight/internal/logging"
	"wpinsight/internal/money"
	"wpinsight/internal/pkg/geoip"
	"wpinsight/internal/pkg/user_agent"
	"wpinsight/internal/registry"
	"wpinsight/internal/reporting"
	"wpinsight/internal/retention"
)

// Application holds every component, constructed once and passed to callers.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager cartridge.DBManager
	DB        *gorm.DB

	Registry     *registry.Registry
	Normalizer   *events.Normalizer
	Identity     *identity.Resolver
	Geo          *geoip.Resolver
	UserAgents   *user_agent.Parser
	Tracker      *events.Tracker
	Engine       *attribution.Engine
	Recorder     *attribution.Recorder
	Reporter     *reporting.Reporter
	Sweeper      *retention.Sweeper
	DefaultModel attribution.Model

	scheduler *jobs.Scheduler
}

// NewApp opens the database configured in cfg and wires the application.
func NewApp(cfg *config.Config, logOpts logging.Options) (*Application, error) {
	logger := logging.New(cfg, logOpts)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return NewAppWithDBManager(cfg, logger, dbManager)
}

// NewAppWithDBManager wires the application over an existing connection.
func NewAppWithDBManager(cfg *config.Config, logger *slog.Logger, dbManager cartridge.DBManager) (*Application, error) {
	db := dbManager.GetConnection()
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}

	models, err := attribution.ParseModels(cfg.AttributionModels)
	if err != nil {
		return nil, fmt.Errorf("invalid attribution models: %w", err)
	}
	defaultModel, err := attribution.ParseModel(cfg.DefaultAttributionModel)
	if err != nil {
		return nil, fmt.Errorf("invalid default attribution model: %w", err)
	}
	currency, err := money.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("invalid default currency: %w", err)
	}

	parser, err := user_agent.NewParser(logger)
	if err != nil {
		return nil, err
	}

	app := &Application{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		DB:           db,
		Registry:     registry.New(db, logger),
		Identity:     identity.NewResolver(cfg.PrivateKey, cfg.SessionTimeout()),
		Geo:          geoip.NewResolver(cfg.GeoDBPath, logger),
		UserAgents:   parser,
		Engine:       attribution.NewEngine(cfg.AttributionHalfLife(), logger),
		Reporter:     reporting.NewReporter(db, logger),
		Sweeper:      retention.NewSweeper(db, logger, cfg.RetentionMonths),
		DefaultModel: defaultModel,
	}
	app.Normalizer = events.NewNormalizer(app.Registry, logger)
	app.Tracker = events.NewTracker(db, logger, events.TrackerConfig{
		Normalizer:      app.Normalizer,
		Identity:        app.Identity,
		Geo:             app.Geo,
		UserAgents:      app.UserAgents,
		SiteHostname:    cfg.SiteHostname,
		DefaultCurrency: currency.String(),
	})
	app.Recorder = attribution.NewRecorder(db, logger, app.Engine, models, currency.String())

	checkpointer, _ := dbManager.(jobs.Checkpointer)
	app.scheduler = jobs.NewScheduler(logger,
		jobs.NewRetentionJob(app.Sweeper, checkpointer, logger),
		jobs.NewGeoReloadJob(app.Geo, cfg.GeoDBPath, logger),
	)

	return app, nil
}

// Migrate creates or updates every table.
func (a *Application) Migrate() error {
	if dm, ok := a.DBManager.(*database.DBManager); ok {
		return dm.MigrateDatabase()
	}
	return a.DB.AutoMigrate(database.Models()...)
}

// Scheduler returns the background job scheduler.
func (a *Application) Scheduler() *jobs.Scheduler {
	return a.scheduler
}

// Start launches the background jobs.
func (a *Application) Start() error {
	return a.scheduler.Start()
}

// Shutdown stops the background jobs and releases the GeoIP database and the
// connection pool.
func (a *Application) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.scheduler.Stop()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background jobs did not stop: %w", ctx.Err()))
	}

	if err := a.Geo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close geoip database: %w", err))
	}
	if _, ok := a.DBManager.(*database.DBManager); ok {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

package jobs

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// GeoReloadJobName identifies the GeoLite2 file watcher.
const GeoReloadJobName = "geoip_reload"

// GeoReloader reopens the GeoIP database. *geoip.Resolver implements it.
type GeoReloader interface {
	Reload()
}

// GeoReloadJob reloads the GeoLite2 database when the file on disk changes,
// e.g. after geoipupdate replaced it.
type GeoReloadJob struct {
	resolver GeoReloader
	path     string
	logger   *slog.Logger
	interval time.Duration
	modTime  time.Time
}

func NewGeoReloadJob(resolver GeoReloader, path string, logger *slog.Logger) *GeoReloadJob {
	j := &GeoReloadJob{
		resolver: resolver,
		path:     path,
		logger:   logger,
		interval: time.Hour,
	}
	if info, err := os.Stat(path); err == nil {
		j.modTime = info.ModTime()
	}
	return j
}

func (j *GeoReloadJob) Name() string { return GeoReloadJobName }

func (j *GeoReloadJob) Interval() time.Duration { return j.interval }

// Run reloads the database if its modification time moved.
func (j *GeoReloadJob) Run(ctx context.Context) error {
	if j.path == "" {
		return nil
	}
	info, err := os.Stat(j.path)
	if os.IsNotExist(err) {
		j.logger.Debug("GeoLite2 database not present", slog.String("path", j.path))
		return nil
	} else if err != nil {
		return err
	}

	if info.ModTime().Equal(j.modTime) {
		return nil
	}
	j.logger.Info("GeoLite2 database changed on disk, reloading",
		slog.String("path", j.path),
		slog.Time("modified", info.ModTime()))
	j.resolver.Reload()
	j.modTime = info.ModTime()
	return nil
}

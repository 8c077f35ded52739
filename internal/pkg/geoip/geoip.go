package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
)

// UnknownCountry is returned whenever a lookup cannot produce an ISO code.
const UnknownCountry = "unknown"

var (
	countriesOnce sync.Once
	countries     *gountries.Query
)

func countryQuery() *gountries.Query {
	countriesOnce.Do(func() {
		countries = gountries.New()
	})
	return countries
}

// Resolver maps IP addresses to lowercase ISO 3166-1 alpha-2 country codes.
// A Resolver without a database answers UnknownCountry for every address.
type Resolver struct {
	mu     sync.RWMutex
	db     *geoip2.Reader
	path   string
	logger *slog.Logger
}

// NewResolver opens the GeoLite2 database at path. A missing or unreadable
// database is not an error: GeoIP is optional and lookups degrade to
// UnknownCountry.
func NewResolver(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{path: path, logger: logger}
	r.db = r.open()
	return r
}

func (r *Resolver) open() *geoip2.Reader {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	fileInfo, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return nil
	}

	r.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", r.path),
		slog.Int64("size_bytes", fileInfo.Size()))
	return db
}

// Available reports whether a database is loaded.
func (r *Resolver) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// ResolveGeo resolves an IP address to a lowercase ISO country code or UnknownCountry.
func (r *Resolver) ResolveGeo(ipAddress string) string {
	r.mu.RLock()
	db := r.db
	r.mu.RUnlock()
	if db == nil {
		return UnknownCountry
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		r.logger.Debug("Failed to parse IP address", slog.String("ip_address", ipAddress))
		return UnknownCountry
	}

	record, err := db.Country(ip)
	if err != nil {
		r.logger.Warn("Error looking up country for IP", slog.Any("error", err))
		return UnknownCountry
	}

	return NormalizeCountryCode(record.Country.IsoCode)
}

// NormalizeCountryCode validates an ISO alpha-2 code and lowercases it.
// Anything that is not a known country becomes UnknownCountry.
func NormalizeCountryCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) != 2 {
		return UnknownCountry
	}
	country, err := countryQuery().FindCountryByAlpha(strings.ToUpper(code))
	if err != nil {
		return UnknownCountry
	}
	return strings.ToLower(country.Codes.Alpha2)
}

// Reload reopens the database from disk, e.g. after a GeoLite2 update.
func (r *Resolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		r.db.Close()
	}
	r.db = r.open()

	if r.db != nil {
		r.logger.Info("GeoLite2 database reloaded successfully")
	}
}

// Close releases the database.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

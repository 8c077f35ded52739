// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	PrivateKey            string   `mapstructure:"privatekey"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	SiteHostname          string   `mapstructure:"sitehostname"`
	DefaultCurrency       string   `mapstructure:"defaultcurrency"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Attribution settings
	AttributionModels        []string `mapstructure:"attributionmodels"`
	DefaultAttributionModel  string   `mapstructure:"defaultattributionmodel"`
	AttributionHalfLifeHours int      `mapstructure:"attributionhalflifehours"`

	// Data retention settings
	RetentionMonths int `mapstructure:"retentionmonths"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the process-wide configuration, loading it on first use.
// Invalid configuration is fatal.
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads configuration from the environment and returns a validated Config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "wpinsight")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelInfo))
	v.SetDefault("privatekey", defaultPrivateKey)
	v.SetDefault("sessiontimeoutseconds", 1800)
	v.SetDefault("sitehostname", "")
	v.SetDefault("defaultcurrency", "USD")
	v.SetDefault("storagepath", "storage")
	v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("attributionmodels", "first_click,last_click,linear,time_decay")
	v.SetDefault("defaultattributionmodel", "last_click")
	v.SetDefault("attributionhalflifehours", 168)
	v.SetDefault("retentionmonths", 12)

	v.BindEnv("appname", "WPINSIGHT_APP_NAME")
	v.BindEnv("environment", "WPINSIGHT_ENV")
	v.BindEnv("loglevel", "WPINSIGHT_LOG_LEVEL")
	v.BindEnv("privatekey", "WPINSIGHT_PRIVATE_KEY")
	v.BindEnv("sessiontimeoutseconds", "WPINSIGHT_SESSION_TIMEOUT_SECONDS")
	v.BindEnv("sitehostname", "WPINSIGHT_SITE_HOSTNAME")
	v.BindEnv("defaultcurrency", "WPINSIGHT_DEFAULT_CURRENCY")
	v.BindEnv("storagepath", "WPINSIGHT_STORAGE_PATH")
	v.BindEnv("geodbpath", "WPINSIGHT_GEO_DB_PATH")
	v.BindEnv("logsdir", "WPINSIGHT_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "WPINSIGHT_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "WPINSIGHT_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "WPINSIGHT_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("dbmaxopenconns", "WPINSIGHT_DB_MAX_OPEN_CONNS")
	v.BindEnv("dbmaxidleconns", "WPINSIGHT_DB_MAX_IDLE_CONNS")
	v.BindEnv("attributionmodels", "WPINSIGHT_ATTRIBUTION_MODELS")
	v.BindEnv("defaultattributionmodel", "WPINSIGHT_DEFAULT_ATTRIBUTION_MODEL")
	v.BindEnv("attributionhalflifehours", "WPINSIGHT_ATTRIBUTION_HALF_LIFE_HOURS")
	v.BindEnv("retentionmonths", "WPINSIGHT_RETENTION_MONTHS")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	c.AttributionModels = splitList(c.AttributionModels)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

// splitList flattens comma separated entries; env vars arrive as a single string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.IsProduction() && c.PrivateKey == defaultPrivateKey {
		return fmt.Errorf("production requires a unique WPINSIGHT_PRIVATE_KEY (cannot use default)")
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.SessionTimeoutSeconds)
	}
	if c.AttributionHalfLifeHours <= 0 {
		return fmt.Errorf("attribution half-life must be positive, got %d", c.AttributionHalfLifeHours)
	}
	if c.RetentionMonths < 0 {
		return fmt.Errorf("retention months cannot be negative, got %d", c.RetentionMonths)
	}
	if len(c.AttributionModels) == 0 {
		return fmt.Errorf("at least one attribution model is required")
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort satisfies cartridge.Config. wpinsight serves no HTTP.
func (c *Config) GetPort() string {
	return ""
}

// GetPublicDirectory satisfies cartridge.Config.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix satisfies cartridge.Config.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name (implements cartridge.LogConfigProvider).
func (c *Config) GetAppName() string {
	return c.AppName
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// SessionTimeout returns the visitor inactivity gap that closes a session.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// AttributionHalfLife returns the time_decay half-life.
func (c *Config) AttributionHalfLife() time.Duration {
	return time.Duration(c.AttributionHalfLifeHours) * time.Hour
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (in-memory databases need a single connection)
// - Development/Production: 10 (allows concurrent reads for reporting queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}

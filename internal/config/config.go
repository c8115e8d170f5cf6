package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"capex/internal/breaker"
	"capex/internal/core"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendSheets}

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	RateLimit       float64
	RateBurst       int

	// Auth. An empty secret disables token checks.
	JWTSecret string

	// Backend selection
	Backend      string
	SeedFile     string
	SQLiteDBPath string
	PostgresURL  string

	// Google Sheets
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsJSON string
	GoogleCredentialsFile string

	// Cache
	RedisURL             string
	CacheTTL             time.Duration
	DraftSessions        int
	DraftTTL             time.Duration
	CacheRefreshSchedule string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	MirrorBackend  string
	MirrorSchedule string

	// Reporting calendar
	ReportingMonth  int
	ForwardMonths   []int
	ReadinessWindow time.Duration

	// Circuit breaker
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration

	LogLevel string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cal := core.DefaultCalendar()
	br := breaker.DefaultConfig()
	return &Config{
		Port:            "8081",
		ShutdownTimeout: 10 * time.Second,
		RateLimit:       5,
		RateBurst:       10,

		Backend:      BackendMemory,
		SQLiteDBPath: "./data/capex.db",

		GoogleSheetName: "Ledger",

		CacheTTL:             30 * time.Second,
		DraftSessions:        1000,
		DraftTTL:             8 * time.Hour,
		CacheRefreshSchedule: "@every 1h",

		AMQPExchange:   "capex",
		AMQPQueue:      "ledger.changed",
		MirrorSchedule: "@daily",

		ReportingMonth:  cal.ReportingMonth,
		ForwardMonths:   cal.ForwardMonths,
		ReadinessWindow: cal.ReadinessWindow,

		BreakerFailures:    br.ConsecutiveFailures,
		BreakerOpenTimeout: br.OpenTimeout,

		LogLevel: "info",
	}
}

// Load reads .env when present, then the YAML file named by
// CAPEX_CONFIG_FILE, then the environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CAPEX_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("CAPEX_PORT", getEnv("PORT", c.Port))
	c.ShutdownTimeout = getEnvDuration("CAPEX_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.RateLimit = getEnvFloat("CAPEX_RATE_LIMIT", c.RateLimit)
	c.RateBurst = getEnvInt("CAPEX_RATE_BURST", c.RateBurst)
	c.JWTSecret = getEnv("CAPEX_JWT_SECRET", c.JWTSecret)

	c.Backend = strings.ToLower(getEnv("CAPEX_BACKEND", c.Backend))
	c.SeedFile = getEnv("CAPEX_SEED_FILE", c.SeedFile)
	c.SQLiteDBPath = getEnv("CAPEX_SQLITE_PATH", c.SQLiteDBPath)
	c.PostgresURL = getEnv("CAPEX_POSTGRES_URL", c.PostgresURL)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_LEDGER_SHEET_NAME", c.GoogleSheetName)
	c.GoogleCredentialsJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleCredentialsJSON)
	c.GoogleCredentialsFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsFile))

	c.RedisURL = getEnv("CAPEX_REDIS_URL", c.RedisURL)
	c.CacheTTL = getEnvDuration("CAPEX_CACHE_TTL", c.CacheTTL)
	c.DraftSessions = getEnvInt("CAPEX_DRAFT_SESSIONS", c.DraftSessions)
	c.DraftTTL = getEnvDuration("CAPEX_DRAFT_TTL", c.DraftTTL)
	c.CacheRefreshSchedule = getEnv("CAPEX_CACHE_REFRESH_SCHEDULE", c.CacheRefreshSchedule)

	c.AMQPURL = getEnv("CAPEX_AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("CAPEX_AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("CAPEX_AMQP_QUEUE", c.AMQPQueue)

	c.MirrorBackend = strings.ToLower(getEnv("CAPEX_MIRROR_BACKEND", c.MirrorBackend))
	c.MirrorSchedule = getEnv("CAPEX_MIRROR_SCHEDULE", c.MirrorSchedule)

	c.ReportingMonth = getEnvInt("CAPEX_REPORTING_MONTH", c.ReportingMonth)
	c.ForwardMonths = getEnvInts("CAPEX_FORWARD_MONTHS", c.ForwardMonths)
	c.ReadinessWindow = getEnvDuration("CAPEX_READINESS_WINDOW", c.ReadinessWindow)

	c.BreakerFailures = uint32(getEnvInt("CAPEX_BREAKER_FAILURES", int(c.BreakerFailures)))
	c.BreakerOpenTimeout = getEnvDuration("CAPEX_BREAKER_OPEN_TIMEOUT", c.BreakerOpenTimeout)

	c.LogLevel = getEnv("CAPEX_LOG_LEVEL", c.LogLevel)
}

// fileConfig is the YAML overlay. Absent keys keep the current value.
type fileConfig struct {
	Server struct {
		Port            string         `yaml:"port"`
		ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
		RateLimit       *float64       `yaml:"rate_limit"`
		RateBurst       *int           `yaml:"rate_burst"`
	} `yaml:"server"`
	Backend  string `yaml:"backend"`
	Calendar struct {
		ReportingMonth  *int           `yaml:"reporting_month"`
		ForwardMonths   []int          `yaml:"forward_months"`
		ReadinessWindow *time.Duration `yaml:"readiness_window"`
	} `yaml:"calendar"`
	Cache struct {
		TTL             *time.Duration `yaml:"ttl"`
		RefreshSchedule string         `yaml:"refresh_schedule"`
	} `yaml:"cache"`
	LogLevel string `yaml:"log_level"`
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if f.Server.Port != "" {
		c.Port = f.Server.Port
	}
	if f.Server.ShutdownTimeout != nil {
		c.ShutdownTimeout = *f.Server.ShutdownTimeout
	}
	if f.Server.RateLimit != nil {
		c.RateLimit = *f.Server.RateLimit
	}
	if f.Server.RateBurst != nil {
		c.RateBurst = *f.Server.RateBurst
	}
	if f.Backend != "" {
		c.Backend = strings.ToLower(f.Backend)
	}
	if f.Calendar.ReportingMonth != nil {
		c.ReportingMonth = *f.Calendar.ReportingMonth
	}
	if len(f.Calendar.ForwardMonths) > 0 {
		c.ForwardMonths = f.Calendar.ForwardMonths
	}
	if f.Calendar.ReadinessWindow != nil {
		c.ReadinessWindow = *f.Calendar.ReadinessWindow
	}
	if f.Cache.TTL != nil {
		c.CacheTTL = *f.Cache.TTL
	}
	if f.Cache.RefreshSchedule != "" {
		c.CacheRefreshSchedule = f.Cache.RefreshSchedule
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	return nil
}

// Calendar is the reporting calendar the core runs with.
func (c *Config) Calendar() core.Calendar {
	return core.Calendar{
		ReportingMonth:  c.ReportingMonth,
		ForwardMonths:   slices.Clone(c.ForwardMonths),
		ReadinessWindow: c.ReadinessWindow,
	}
}

func (c *Config) Breaker() breaker.Config {
	cfg := breaker.DefaultConfig()
	cfg.ConsecutiveFailures = c.BreakerFailures
	cfg.OpenTimeout = c.BreakerOpenTimeout
	return cfg
}

// AuthEnabled reports whether requests must carry a signed token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.Backend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.Backend, validBackends))
	}
	errors = append(errors, c.validateBackend(c.Backend)...)

	if c.MirrorBackend != "" {
		if c.MirrorBackend == c.Backend {
			errors = append(errors, fmt.Sprintf("mirror backend '%s' must differ from the primary backend", c.MirrorBackend))
		} else if !slices.Contains(validBackends, c.MirrorBackend) || c.MirrorBackend == BackendMemory {
			errors = append(errors, fmt.Sprintf("invalid mirror backend '%s': must be one of %v", c.MirrorBackend, validBackends[1:]))
		} else {
			errors = append(errors, c.validateBackend(c.MirrorBackend)...)
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" && strings.Contains(c.RedisURL, "://") {
		if u, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if u.Scheme != "redis" && u.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", u.Scheme))
		}
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT secret must be at least 32 bytes")
	}

	if err := c.Calendar().Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid reporting calendar: %v", err))
	}

	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.DraftSessions < 1 {
		errors = append(errors, fmt.Sprintf("invalid draft session capacity %d: must be at least 1", c.DraftSessions))
	}
	if c.DraftTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid draft TTL %v: must be at least 1 minute", c.DraftTTL))
	}
	if c.RateLimit <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimit))
	}
	if c.RateBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate burst %d: must be at least 1", c.RateBurst))
	}
	if c.BreakerFailures < 1 {
		errors = append(errors, "breaker failure threshold must be at least 1")
	}
	if c.BreakerOpenTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid breaker open timeout %v: must be at least 1 second", c.BreakerOpenTimeout))
	}

	schedules := []struct{ name, spec string }{
		{"cache refresh", c.CacheRefreshSchedule},
		{"mirror", c.MirrorSchedule},
	}
	for _, s := range schedules {
		if s.spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(s.spec); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s schedule '%s': %v", s.name, s.spec, err))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func (c *Config) validateBackend(backend string) []string {
	var errors []string
	switch backend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
			break
		}
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			errors = append(errors, "Postgres URL is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL '%s': scheme must be 'postgres' or 'postgresql'", c.PostgresURL))
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleCredentialsFile != "" {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvInts parses a comma separated list; any bad element keeps the default.
func getEnvInts(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, i)
	}
	return out
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration. Values come from the
// environment; see the envconfig tags for names and defaults.
type Config struct {
	// Server
	Port string `envconfig:"SERVER_PORT" default:"8080"`
	Host string `envconfig:"SERVER_HOST" default:""`

	// Ledger store
	DatabaseDriver       string        `envconfig:"DATABASE_DRIVER" default:"sqlite3"`
	DatabaseDSN          string        `envconfig:"DATABASE_DSN" default:"./venue_ledger.db"`
	DatabaseMaxOpenConns int           `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"10"`
	StoreTimeout         time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	// Replay cache
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	ReplayCacheTTL time.Duration `envconfig:"REPLAY_CACHE_TTL" default:"10m"`

	// Ledger policy
	UndoWindow       time.Duration `envconfig:"UNDO_WINDOW" default:"60s"`
	StockPolicy      string        `envconfig:"STOCK_POLICY" default:"allow"`
	BalancePolicy    string        `envconfig:"BALANCE_POLICY" default:"allow"`
	UndoRefundWallet bool          `envconfig:"UNDO_REFUND_WALLET" default:"false"`
	CheckInXP        int64         `envconfig:"CHECKIN_XP" default:"50"`
	CheckInNC        int64         `envconfig:"CHECKIN_NC" default:"10"`

	// Security
	MaxRequestBodySize int64  `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`
	AllowedOrigins     string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	TLSCertFile        string `envconfig:"TLS_CERT_FILE" default:""`
	TLSKeyFile         string `envconfig:"TLS_KEY_FILE" default:""`

	// Rate limiting
	RateLimitEnabled bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRate    int           `envconfig:"RATE_LIMIT_RATE" default:"300"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Tracing
	TracingEnabled     bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TracingEndpoint    string  `envconfig:"TRACING_ENDPOINT" default:""`
	TracingSampleRatio float64 `envconfig:"TRACING_SAMPLE_RATIO" default:"1"`
	AppEnv             string  `envconfig:"APP_ENV" default:"development"`

	// Feature flags
	FeatureRulesEnabled       bool `envconfig:"FEATURE_RULES_ENABLED" default:"true"`
	FeatureReplayCacheEnabled bool `envconfig:"FEATURE_REPLAY_CACHE_ENABLED" default:"true"`
	FeatureCheckinRewards     bool `envconfig:"FEATURE_CHECKIN_REWARDS_ENABLED" default:"true"`

	// Logging
	LogLevel  string `envconfig:"APP_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"APP_LOG_FORMAT" default:"text"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.StockPolicy = strings.ToLower(strings.TrimSpace(cfg.StockPolicy))
	cfg.BalancePolicy = strings.ToLower(strings.TrimSpace(cfg.BalancePolicy))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// TLSEnabled reports whether the server listens with HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Origins splits ALLOWED_ORIGINS.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	switch c.DatabaseDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite3 or pgx, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.UndoWindow <= 0 {
		return fmt.Errorf("UNDO_WINDOW must be positive")
	}
	if !validPolicy(c.StockPolicy) {
		return fmt.Errorf("STOCK_POLICY must be allow or reject, got %q", c.StockPolicy)
	}
	if !validPolicy(c.BalancePolicy) {
		return fmt.Errorf("BALANCE_POLICY must be allow or reject, got %q", c.BalancePolicy)
	}
	if c.CheckInXP < 0 || c.CheckInNC < 0 {
		return fmt.Errorf("CHECKIN_XP and CHECKIN_NC must be non-negative")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.RateLimitEnabled {
		if c.RateLimitRate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.TracingEnabled && c.TracingEndpoint == "" {
		return fmt.Errorf("TRACING_ENDPOINT is required when tracing is enabled")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("APP_LOG_LEVEL: %w", err)
	}
	return nil
}

func validPolicy(p string) bool {
	return p == "allow" || p == "reject"
}

// SetupLogging configures the global logrus logger.
func (c *Config) SetupLogging() {
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
}

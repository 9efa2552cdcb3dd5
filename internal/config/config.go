// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// HTTP server, logging, persistence, the chat platform, the task queues,
// outbound email, and observability.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
	Region      string  // CLOUD_REGION, defaults to QUEUE_REGION
}

// DiscordConfig holds the chat platform credentials and limits.
type DiscordConfig struct {
	ApplicationID string        // DISCORD_APPLICATION_ID
	PublicKey     string        // DISCORD_PUBLIC_KEY (hex, ed25519)
	BotToken      string        // DISCORD_BOT_TOKEN
	APIBase       string        // DISCORD_API_BASE
	APIRPS        float64       // DISCORD_API_RPS
	TokenTTL      time.Duration // INTERACTION_TOKEN_TTL
}

// QueueConfig controls the redis-backed task queues.
type QueueConfig struct {
	Region        string        // QUEUE_REGION
	PrimaryRegion string        // QUEUE_PRIMARY_REGION
	MaxAttempts   int           // QUEUE_MAX_ATTEMPTS
	BackoffMin    time.Duration // QUEUE_BACKOFF_MIN
	BackoffMax    time.Duration // QUEUE_BACKOFF_MAX
	Concurrency   int           // QUEUE_CONCURRENCY
	PollInterval  time.Duration // QUEUE_POLL_INTERVAL
	Lease         time.Duration // QUEUE_LEASE, how long a claimed task stays hidden
}

// SMTPConfig configures the outbound mail dispatcher. Email is disabled when
// Host or From are empty.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // base path for the internal API

	// Persistence
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN
	RedisURL    string

	// Chat platform
	Discord DiscordConfig

	// Interaction processing
	LockTTL             time.Duration // reclaim window for crashed "processing" locks
	VoteSessionTTL      time.Duration // idle expiry of vote sessions
	LinkCodeMaxAttempts int
	LinkCodeTTL         time.Duration
	CardSyncDebounce    time.Duration

	// Queues
	Queue QueueConfig

	// Email
	SMTP       SMTPConfig
	AppBaseURL string

	// Internal collaborator API
	InternalAPIToken string
	RateRPS          float64
	RateBurst        int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad is Load for main: it panics on a bad configuration.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates the result.
// Unset or empty variables take their default; set but malformed values are
// errors rather than silently ignored. Every problem found is reported.
func Load() (Config, error) {
	var e env
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/internal")),

		DBDriver:    strings.ToLower(e.str("DB_DRIVER", "sqlite")),
		DBPath:      e.str("DB_PATH", "pollcord.db"),
		DatabaseURL: e.str("DATABASE_URL", ""),
		RedisURL:    e.str("REDIS_URL", "redis://localhost:6379/0"),

		Discord: DiscordConfig{
			ApplicationID: e.str("DISCORD_APPLICATION_ID", ""),
			PublicKey:     e.str("DISCORD_PUBLIC_KEY", ""),
			BotToken:      e.str("DISCORD_BOT_TOKEN", ""),
			APIBase:       strings.TrimRight(e.str("DISCORD_API_BASE", "https://discord.com/api/v10"), "/"),
			APIRPS:        e.float("DISCORD_API_RPS", 40),
			TokenTTL:      e.dur("INTERACTION_TOKEN_TTL", 15*time.Minute),
		},

		LockTTL:             e.dur("LOCK_TTL", 10*time.Minute),
		VoteSessionTTL:      e.dur("VOTE_SESSION_TTL", 24*time.Hour),
		LinkCodeMaxAttempts: e.int("LINK_CODE_MAX_ATTEMPTS", 5),
		LinkCodeTTL:         e.dur("LINK_CODE_TTL", 15*time.Minute),
		CardSyncDebounce:    e.dur("CARD_SYNC_DEBOUNCE", 2*time.Second),

		Queue: QueueConfig{
			Region:        e.str("QUEUE_REGION", "us-central1"),
			PrimaryRegion: e.str("QUEUE_PRIMARY_REGION", "us-central1"),
			MaxAttempts:   e.int("QUEUE_MAX_ATTEMPTS", 5),
			BackoffMin:    e.dur("QUEUE_BACKOFF_MIN", time.Second),
			BackoffMax:    e.dur("QUEUE_BACKOFF_MAX", 5*time.Minute),
			Concurrency:   e.int("QUEUE_CONCURRENCY", 4),
			PollInterval:  e.dur("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
			Lease:         e.dur("QUEUE_LEASE", 5*time.Minute),
		},

		SMTP: SMTPConfig{
			Host:     e.str("SMTP_HOST", ""),
			Port:     e.str("SMTP_PORT", "587"),
			Username: e.str("SMTP_USERNAME", ""),
			Password: e.str("SMTP_PASSWORD", ""),
			From:     e.str("SMTP_FROM", ""),
			FromName: e.str("SMTP_FROM_NAME", "Pollcord"),
		},
		AppBaseURL: strings.TrimRight(e.str("APP_BASE_URL", "http://localhost:3000"), "/"),

		InternalAPIToken: e.str("INTERNAL_API_TOKEN", ""),
		RateRPS:          e.float("RATE_RPS", 5.0),
		RateBurst:        e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "pollcord"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	cfg.OTEL.Region = e.str("CLOUD_REGION", cfg.Queue.Region)

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

// validate lists every constraint the loaded values break.
func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	switch c.DBDriver {
	case "sqlite":
		check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DatabaseURL) != "", "DATABASE_URL is required when DB_DRIVER=postgres")
	default:
		check(false, "DB_DRIVER must be sqlite or postgres")
	}
	check(strings.TrimSpace(c.RedisURL) != "", "REDIS_URL must not be empty")

	check(strings.TrimSpace(c.Discord.ApplicationID) != "", "DISCORD_APPLICATION_ID must not be empty")
	key, err := hex.DecodeString(c.Discord.PublicKey)
	check(err == nil && len(key) == 32, "DISCORD_PUBLIC_KEY must be a 32-byte hex ed25519 key")
	check(c.Discord.APIRPS > 0, "DISCORD_API_RPS must be > 0")
	check(c.Discord.TokenTTL > 0 && c.LockTTL > 0 && c.VoteSessionTTL > 0,
		"INTERACTION_TOKEN_TTL, LOCK_TTL and VOTE_SESSION_TTL must be > 0")
	check(c.LinkCodeMaxAttempts >= 1, "LINK_CODE_MAX_ATTEMPTS must be >= 1")
	check(c.LinkCodeTTL > 0, "LINK_CODE_TTL must be > 0")
	check(c.CardSyncDebounce >= 0, "CARD_SYNC_DEBOUNCE must be >= 0")

	check(c.Queue.MaxAttempts >= 1 && c.Queue.Concurrency >= 1, "QUEUE_MAX_ATTEMPTS and QUEUE_CONCURRENCY must be >= 1")
	check(c.Queue.BackoffMin > 0 && c.Queue.BackoffMax >= c.Queue.BackoffMin,
		"QUEUE_BACKOFF_MIN must be > 0 and <= QUEUE_BACKOFF_MAX")
	check(c.Queue.PollInterval > 0, "QUEUE_POLL_INTERVAL must be > 0")
	check(c.Queue.Lease > 0, "QUEUE_LEASE must be > 0")

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// EmailEnabled reports whether enough SMTP settings are present to send mail.
func (c Config) EmailEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.Port != "" && c.SMTP.From != ""
}

// env reads typed variables and remembers the ones that failed to parse.
type env struct {
	errs []error
}

// lookup returns the trimmed value of k; ok is false when unset or blank.
func (e *env) lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func (e *env) bad(k, v, kind string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, kind))
}

// str keeps the raw value, so a value of only spaces still reaches validation.
func (e *env) str(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.bad(k, v, "integer")
		return def
	}
	return n
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(k, v, "number")
		return def
	}
	return f
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(k, v, "duration")
		return def
	}
	return d
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.bad(k, v, "boolean")
	return def
}

// splitCSV splits a comma list, dropping blank entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing one;
// empty means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}

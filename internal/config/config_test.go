package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPublicKey is a syntactically valid 32-byte hex key.
const testPublicKey = "b8c1a7a5d1f3f6a1c0e2b4d6f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b"

// setRequired sets the variables that have no usable default.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_APPLICATION_ID", "123456789012345678")
	t.Setenv("DISCORD_PUBLIC_KEY", testPublicKey)
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/internal", cfg.APIBasePath)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "https://discord.com/api/v10", cfg.Discord.APIBase)
	assert.Equal(t, 15*time.Minute, cfg.Discord.TokenTTL)
	assert.Equal(t, "us-central1", cfg.Queue.Region)
	assert.Equal(t, 5*time.Minute, cfg.Queue.Lease)
	assert.Equal(t, 15*time.Minute, cfg.LinkCodeTTL)
	assert.Equal(t, "us-central1", cfg.OTEL.Region, "tracing region follows the queue region")
	assert.False(t, cfg.EmailEnabled())
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	for k, v := range map[string]string{
		"PORT":                   "8088",
		"READ_TIMEOUT":           "2s",
		"GIN_MODE":               "weird",
		"LOG_LEVEL":              "Warning",
		"LOG_PRETTY":             " yes ",
		"API_BASE_PATH":          "hooks/",
		"DISCORD_API_BASE":       "https://example.test/api/",
		"INTERACTION_TOKEN_TTL":  "14m",
		"LINK_CODE_MAX_ATTEMPTS": "3",
		"LINK_CODE_TTL":          "30m",
		"QUEUE_LEASE":            "90s",
		"CARD_SYNC_DEBOUNCE":     "500ms",
		"QUEUE_REGION":           "europe-west1",
		"QUEUE_CONCURRENCY":      "8",
		"CLOUD_REGION":           "eu-central",
		"SMTP_HOST":              "smtp.example.test",
		"SMTP_FROM":              "noreply@example.test",
		"CORS_ALLOWED_ORIGINS":   " https://a.com , , http://b ",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8088", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "/hooks", cfg.APIBasePath)
	assert.Equal(t, "https://example.test/api", cfg.Discord.APIBase)
	assert.Equal(t, 14*time.Minute, cfg.Discord.TokenTTL)
	assert.Equal(t, 3, cfg.LinkCodeMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.LinkCodeTTL)
	assert.Equal(t, 90*time.Second, cfg.Queue.Lease)
	assert.Equal(t, 500*time.Millisecond, cfg.CardSyncDebounce)
	assert.Equal(t, "europe-west1", cfg.Queue.Region)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	assert.Equal(t, "eu-central", cfg.OTEL.Region)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"unknown DB_DRIVER", "DB_DRIVER", "mysql", "DB_DRIVER"},
		{"postgres without url", "DB_DRIVER", "postgres", "DATABASE_URL"},
		{"bad public key", "DISCORD_PUBLIC_KEY", "zz", "DISCORD_PUBLIC_KEY"},
		{"short public key", "DISCORD_PUBLIC_KEY", "abcd", "DISCORD_PUBLIC_KEY"},
		{"zero api rps", "DISCORD_API_RPS", "0", "DISCORD_API_RPS"},
		{"zero lock ttl", "LOCK_TTL", "0s", "LOCK_TTL"},
		{"link attempts < 1", "LINK_CODE_MAX_ATTEMPTS", "0", "LINK_CODE_MAX_ATTEMPTS"},
		{"zero link code ttl", "LINK_CODE_TTL", "0s", "LINK_CODE_TTL"},
		{"zero queue lease", "QUEUE_LEASE", "0s", "QUEUE_LEASE"},
		{"negative debounce", "CARD_SYNC_DEBOUNCE", "-1s", "CARD_SYNC_DEBOUNCE"},
		{"queue concurrency < 1", "QUEUE_CONCURRENCY", "0", "QUEUE_CONCURRENCY"},
		{"backoff inverted", "QUEUE_BACKOFF_MIN", "10m", "QUEUE_BACKOFF_MIN"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
		{"malformed integer", "QUEUE_MAX_ATTEMPTS", "nope", `QUEUE_MAX_ATTEMPTS="nope" is not a valid integer`},
		{"malformed duration", "LOCK_TTL", "10 minutes", "is not a valid duration"},
		{"malformed boolean", "ENABLE_HSTS", "sometimes", "is not a valid boolean"},
		{"malformed number", "RATE_RPS", "fast", "is not a valid number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.ErrorContains(t, err, tc.want)
		})
	}

	t.Run("missing application id", func(t *testing.T) {
		t.Setenv("DISCORD_PUBLIC_KEY", testPublicKey)
		t.Setenv("DISCORD_APPLICATION_ID", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DISCORD_APPLICATION_ID")
	})
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("DISCORD_APPLICATION_ID", "")
	t.Setenv("DISCORD_PUBLIC_KEY", "")
	t.Setenv("RATE_BURST", "many")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{"DISCORD_APPLICATION_ID", "DISCORD_PUBLIC_KEY", `RATE_BURST="many"`} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMustLoad(t *testing.T) {
	setRequired(t)
	assert.NotPanics(t, func() { _ = MustLoad() })

	t.Setenv("LOG_LEVEL", "verbose")
	assert.Panics(t, func() { _ = MustLoad() })
}

func TestSplitCSVAndBasePath(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV(" a, ,b ,  c  ,"))

	for in, want := range map[string]string{"": "/", "/": "/", "v1": "/v1", "/v1/": "/v1", " /internal ": "/internal"} {
		assert.Equal(t, want, normalizeBasePath(in), "%q", in)
	}
}

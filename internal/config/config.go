package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

const cryptoKeyLength = 32 // AES-256

// ErrConfiguration marks startup configuration failures. Nothing wrapped in
// it is retryable at runtime.
var ErrConfiguration = errors.New("configuration error")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string
	LogFormat   string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	Amazon AmazonConfig

	// TokenCryptoKey is the decoded AES-256 key used to encrypt token
	// columns at rest. Loaded from TOKEN_CRYPTO_KEY (base64, 32 bytes).
	TokenCryptoKey []byte

	AdminToken string

	RedisAddr     string
	RedisPassword string

	Refresh RefreshConfig

	AuditRetention time.Duration
}

// AmazonConfig describes the Login with Amazon application and the
// Advertising API endpoints.
type AmazonConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	RedirectURI  string
	Scopes       []string
}

// RefreshConfig controls proactive token refresh behaviour.
type RefreshConfig struct {
	LookaheadWindow time.Duration
	ScanInterval    time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	RequestTimeout  time.Duration
}

// Load reads configuration from environment variables and an optional .env
// file. It fails on anything that cannot possibly work at runtime: a missing
// or malformed encryption key, or absent Amazon client credentials.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "adsboard"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getenv("LOG_FORMAT", "json")),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "adsboard"),
		DBUser:     getenv("DATABASE_USER", "adsboard"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		Amazon: AmazonConfig{
			ClientID:     strings.TrimSpace(getenv("AMAZON_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("AMAZON_CLIENT_SECRET", "")),
			AuthURL:      getenv("AMAZON_AUTH_URL", "https://www.amazon.com/ap/oa"),
			TokenURL:     getenv("AMAZON_TOKEN_URL", "https://api.amazon.com/auth/o2/token"),
			APIBaseURL:   getenv("AMAZON_ADS_API_URL", "https://advertising-api.amazon.com"),
			RedirectURI:  strings.TrimSpace(getenv("AMAZON_REDIRECT_URI", "")),
			Scopes:       splitScopes(getenv("AMAZON_SCOPES", "advertising::campaign_management")),
		},

		AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Refresh: RefreshConfig{
			LookaheadWindow: getenvDuration("REFRESH_LOOKAHEAD", 5*time.Minute),
			ScanInterval:    getenvDuration("REFRESH_SCAN_INTERVAL", time.Minute),
			MaxAttempts:     getenvInt("REFRESH_MAX_ATTEMPTS", 4),
			BaseDelay:       getenvDuration("REFRESH_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:        getenvDuration("REFRESH_MAX_DELAY", 30*time.Second),
			RequestTimeout:  getenvDuration("REFRESH_REQUEST_TIMEOUT", 15*time.Second),
		},

		AuditRetention: getenvDuration("AUDIT_RETENTION", 90*24*time.Hour),
	}

	key, err := decodeCryptoKey(os.Getenv("TOKEN_CRYPTO_KEY"))
	if err != nil {
		return Config{}, err
	}
	cfg.TokenCryptoKey = key

	if cfg.Amazon.ClientID == "" || cfg.Amazon.ClientSecret == "" {
		return Config{}, fmt.Errorf("%w: AMAZON_CLIENT_ID and AMAZON_CLIENT_SECRET are required", ErrConfiguration)
	}

	return cfg, nil
}

func decodeCryptoKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: TOKEN_CRYPTO_KEY is not set; generate one with: openssl rand -base64 32", ErrConfiguration)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode TOKEN_CRYPTO_KEY: %v", ErrConfiguration, err)
	}
	if len(key) != cryptoKeyLength {
		return nil, fmt.Errorf("%w: TOKEN_CRYPTO_KEY must decode to %d bytes, got %d", ErrConfiguration, cryptoKeyLength, len(key))
	}
	return key, nil
}

func splitScopes(raw string) []string {
	parts := strings.Fields(raw)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

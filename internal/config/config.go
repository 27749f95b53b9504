package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPAddr string

	// Trusted header carrying the caller identity resolved by the auth gateway.
	CallerHeader string

	PayPal    PayPalConfig
	Chain     ChainConfig
	RateLimit RateLimitConfig

	SchedulerEnabled bool

	// SeedDefaultPlans installs the standard plan catalog on startup.
	SeedDefaultPlans bool
	// SeedAdminAccountID grants the admin role to this account on startup.
	// Zero means no admin is seeded.
	SeedAdminAccountID int64
}

// RateLimitConfig throttles the payment capture endpoints. Disabled by
// default; when enabled it needs its own redis connection settings.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CaptureAccountRate  float64
	CaptureAccountBurst int
	CaptureGatewayRate  float64
	CaptureGatewayBurst int

	CaptureLockTTLSeconds int
}

// PayPalConfig configures the PayPal order-capture verifier.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TimeoutSec   int
}

// ChainConfig configures the on-chain transfer verifier.
type ChainConfig struct {
	BaseURL         string
	APIKey          string
	ReceiverAddress string
	TokenContract   string
	TimeoutSec      int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "vitrina"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "vitrina"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		CallerHeader: getenv("CALLER_HEADER", "X-Caller-ID"),

		PayPal: PayPalConfig{
			BaseURL:      getenv("PAYPAL_BASE_URL", "https://api-m.paypal.com"),
			ClientID:     strings.TrimSpace(getenv("PAYPAL_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("PAYPAL_CLIENT_SECRET", "")),
			TimeoutSec:   getenvInt("PAYPAL_TIMEOUT_SEC", 10),
		},
		Chain: ChainConfig{
			BaseURL:         getenv("CHAIN_API_BASE_URL", "https://api.bscscan.com/api"),
			APIKey:          strings.TrimSpace(getenv("CHAIN_API_KEY", "")),
			ReceiverAddress: strings.ToLower(strings.TrimSpace(getenv("CHAIN_RECEIVER_ADDRESS", ""))),
			TokenContract:   strings.ToLower(strings.TrimSpace(getenv("CHAIN_TOKEN_CONTRACT", ""))),
			TimeoutSec:      getenvInt("CHAIN_TIMEOUT_SEC", 10),
		},

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", getenvInt("REDIS_DB", 0)),

			CaptureAccountRate:  getenvFloat("RATE_LIMIT_CAPTURE_ACCOUNT_RATE", 0.5),
			CaptureAccountBurst: getenvInt("RATE_LIMIT_CAPTURE_ACCOUNT_BURST", 5),
			CaptureGatewayRate:  getenvFloat("RATE_LIMIT_CAPTURE_GATEWAY_RATE", 20),
			CaptureGatewayBurst: getenvInt("RATE_LIMIT_CAPTURE_GATEWAY_BURST", 40),

			CaptureLockTTLSeconds: getenvInt("RATE_LIMIT_CAPTURE_LOCK_TTL_SEC", 30),
		},

		SchedulerEnabled: getenvBool("SCHEDULER_ENABLED", true),

		SeedDefaultPlans:   getenvBool("SEED_DEFAULT_PLANS", true),
		SeedAdminAccountID: int64(getenvInt("SEED_ADMIN_ACCOUNT_ID", 0)),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
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

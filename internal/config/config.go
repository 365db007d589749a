package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port      string
	Env       string
	JWTSecret string

	DB        DatabaseConfig
	Redis     RedisConfig
	Razorpay  RazorpayConfig
	Pricing   PricingConfig
	Cache     CacheConfig
	Mail      MailConfig
	SMS       SMSConfig
	Worker    WorkerConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RazorpayConfig contains credentials for the Razorpay payment gateway.
type RazorpayConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// PricingConfig centralizes the business numbers used by the pricing engine.
type PricingConfig struct {
	BundleDiscountRate     float64 // 0.15 means 15% off the sum of package services
	TestServicePrice       int64
	InjectPackageFallbacks bool
	FetchTimeout           time.Duration
}

// CacheConfig contains TTLs for the price cache and the admin status cache.
type CacheConfig struct {
	PriceTTL       time.Duration
	AdminStatusTTL time.Duration
}

// MailConfig contains Amazon SES settings for confirmation emails.
type MailConfig struct {
	Region           string
	FromEmail        string
	AdminNotifyEmail string
}

// SMSConfig contains Twilio credentials. SMS is disabled when AccountSID is empty.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileMaxAge     time.Duration
	EmailRetryInterval  time.Duration
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig configures the per-IP limiter on public endpoints.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; production relies on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Razorpay
	cfg.Razorpay = RazorpayConfig{
		BaseURL:       getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
		KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
		WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		Currency:      getEnv("RAZORPAY_CURRENCY", "INR"),
	}

	// Pricing
	var err error
	cfg.Pricing = PricingConfig{
		TestServicePrice:       int64(getEnvInt("PRICING_TEST_SERVICE_PRICE", 11)),
		InjectPackageFallbacks: getEnvBool("PRICING_INJECT_PACKAGE_FALLBACKS", false),
	}
	if cfg.Pricing.BundleDiscountRate, err = getEnvFloat("PRICING_BUNDLE_DISCOUNT_RATE", 0.15); err != nil {
		return nil, fmt.Errorf("invalid PRICING_BUNDLE_DISCOUNT_RATE: %w", err)
	}
	if cfg.Pricing.BundleDiscountRate < 0 || cfg.Pricing.BundleDiscountRate >= 1 {
		return nil, errors.New("PRICING_BUNDLE_DISCOUNT_RATE must be in [0, 1)")
	}
	if cfg.Pricing.FetchTimeout, err = parseDurationEnv("PRICING_FETCH_TIMEOUT", "5s"); err != nil {
		return nil, fmt.Errorf("invalid PRICING_FETCH_TIMEOUT: %w", err)
	}

	// Cache TTLs
	if cfg.Cache.PriceTTL, err = parseDurationEnv("PRICE_CACHE_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid PRICE_CACHE_TTL: %w", err)
	}
	if cfg.Cache.AdminStatusTTL, err = parseDurationEnv("ADMIN_STATUS_CACHE_TTL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid ADMIN_STATUS_CACHE_TTL: %w", err)
	}

	// Mail (Amazon SES)
	cfg.Mail = MailConfig{
		Region:           getEnv("AWS_REGION", "ap-south-1"),
		FromEmail:        getEnv("SES_FROM_EMAIL", ""),
		AdminNotifyEmail: getEnv("ADMIN_NOTIFY_EMAIL", ""),
	}

	// SMS (Twilio)
	cfg.SMS = SMSConfig{
		AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
	}

	// Workers (durations)
	if cfg.Worker.ReconcileInterval, err = parseDurationEnv("RECONCILE_INTERVAL", "1m"); err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}
	if cfg.Worker.ReconcileStaleAfter, err = parseDurationEnv("RECONCILE_STALE_AFTER", "10m"); err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_STALE_AFTER: %w", err)
	}
	if cfg.Worker.ReconcileMaxAge, err = parseDurationEnv("RECONCILE_MAX_AGE", "72h"); err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_MAX_AGE: %w", err)
	}
	if cfg.Worker.EmailRetryInterval, err = parseDurationEnv("EMAIL_RETRY_INTERVAL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid EMAIL_RETRY_INTERVAL: %w", err)
	}

	// CORS
	cfg.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	// Rate limiting
	if cfg.RateLimit.RPS, err = getEnvFloat("RATE_LIMIT_RPS", 5); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	cfg.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", 20)

	// Basic validation for DB parameters
	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	// Validate JWT_SECRET
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set for authentication")
	}

	if cfg.Env == "production" && (cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "") {
		return nil, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in production")
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// getEnvSlice splits a comma separated variable, dropping empty items.
func getEnvSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
